package runner

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"
)

// taskIDGenerator is a singleton that generates unique task IDs.
//
// It uses a cryptographically secure random number generator to initialize the
// starting ID and atomically increments the ID to ensure uniqueness in concurrent
// environments.
type taskIDGenerator struct {
	id atomic.Uint64
}

func newTaskIDGenerator() *taskIDGenerator {
	inst := &taskIDGenerator{}
	var buf [8]byte
	_, err := io.ReadFull(rand.Reader, buf[:])
	if err != nil {
		return inst
	}
	// Keep the seed in the lower half so IDs do not wrap early.
	inst.id.Store(binary.LittleEndian.Uint64(buf[:]) >> 1)
	return inst
}

func (g *taskIDGenerator) genID() TaskID {
	return TaskID(g.id.Add(1))
}

var (
	genInst = &taskIDGenerator{}
	genOnce sync.Once
)

func getTaskIDGenerator() *taskIDGenerator {
	genOnce.Do(func() {
		genInst = newTaskIDGenerator()
	})
	return genInst
}

// nextTaskID returns a unique task ID.
func nextTaskID() TaskID {
	return getTaskIDGenerator().genID()
}

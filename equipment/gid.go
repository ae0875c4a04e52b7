package equipment

import (
	"bytes"
	"runtime"
	"strconv"
)

// curGoroutineID parses the current goroutine ID out of the runtime stack header
// ("goroutine 123 [running]:"). It is used only to detect observer callbacks
// re-entering the state machine on the goroutine that is already notifying.
func curGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

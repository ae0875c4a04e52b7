package instrument

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockInstrument is a testify mock of the Instrument capability.
type MockInstrument struct {
	mock.Mock
}

var _ Instrument = (*MockInstrument)(nil)

func NewMockInstrument() *MockInstrument {
	return &MockInstrument{}
}

func (m *MockInstrument) Connect(ctx context.Context, address string) error {
	args := m.Called(ctx, address)
	return args.Error(0)
}

func (m *MockInstrument) Disconnect() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockInstrument) Write(cmd string) error {
	args := m.Called(cmd)
	return args.Error(0)
}

func (m *MockInstrument) Query(cmd string) (string, error) {
	args := m.Called(cmd)
	return args.String(0), args.Error(1)
}

func (m *MockInstrument) Status() (Status, error) {
	args := m.Called()
	return args.Get(0).(Status), args.Error(1)
}

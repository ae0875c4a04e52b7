package instrument

import "errors"

var (
	// ErrNotConnected indicates an operation on an instrument that has no open
	// connection.
	ErrNotConnected = errors.New("instrument not connected")

	// ErrAlreadyConnected indicates a Connect call on an instrument that already has
	// an open connection.
	ErrAlreadyConnected = errors.New("instrument already connected")

	// ErrConnection indicates that opening the instrument connection or querying its
	// identity failed.
	ErrConnection = errors.New("instrument connection failed")

	// ErrCommand indicates that a single instrument transaction failed.
	ErrCommand = errors.New("instrument command failed")

	// ErrCommunication indicates that communication with the instrument was lost, for
	// example an unexpected disconnect detected on an I/O attempt.
	ErrCommunication = errors.New("instrument communication lost")
)

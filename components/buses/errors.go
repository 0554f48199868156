package buses

import "github.com/pkg/errors"

var (
	// ErrTimeout is returned when the hardware does not report an expected status within the
	// polling budget.
	ErrTimeout = errors.New("bus timeout")

	// ErrPrecondition is returned when a call violates the bus contract, for example naming a
	// chip-select line other than the configured one.
	ErrPrecondition = errors.New("bus precondition violated")

	// ErrBusy is returned when a transaction is issued while another one is in flight.
	ErrBusy = errors.New("bus is busy")

	// ErrClosed is returned by any call made after the bus was closed.
	ErrClosed = errors.New("bus is closed")
)

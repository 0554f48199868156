// Package buses defines the shareable SPI bus surface implemented by the bus master drivers.
package buses

import (
	"context"
)

// SPI represents a shareable SPI bus bound to one chip-select line.
type SPI interface {
	// OpenHandle locks the shared bus and returns a handle interface that MUST be closed when done.
	OpenHandle() (SPIHandle, error)
	Close(ctx context.Context) error
}

// SPIHandle is similar to an io handle. It MUST be closed to release the bus.
type SPIHandle interface {
	// Xfer performs a single SPI transfer, that is, the complete transaction from chipselect
	// enable to chipselect disable. SPI transfers are synchronous, number of bytes received will
	// be equal to the number of bytes sent. Write-only transfers can usually just discard the
	// returned bytes. Read-only transfers usually transmit a request/address and continue with
	// some number of dummy bytes to equal the expected size of the returning data.
	//
	// chipSelect names the line the caller expects to be driven; it must be the line the bus
	// was configured with. baud is the fastest clock the device accepts and mode the SPI mode
	// it expects.
	Xfer(
		ctx context.Context,
		baud uint,
		chipSelect string,
		mode uint,
		tx []byte,
	) ([]byte, error)

	// Close closes the handle and releases the lock on the bus.
	Close() error
}

// RegisterBus reads and writes registers of the single device attached to a bus. Each call is a
// complete transaction: the first byte clocked out is the register address and the rest is
// payload (write) or dummy bytes (read).
type RegisterBus interface {
	WriteRegister(ctx context.Context, register byte, payload []byte) error
	ReadRegister(ctx context.Context, register byte, p []byte) error
}

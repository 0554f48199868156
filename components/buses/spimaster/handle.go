package spimaster

import (
	"context"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"go.viam.com/spimaster/chip/stm32l0"
	"go.viam.com/spimaster/components/buses"
)

type spiHandle struct {
	m        *Master
	isClosed bool
}

// OpenHandle locks the bus for the caller until the handle is closed. Other handles wait; other
// transactions fail with buses.ErrBusy.
func (m *Master) OpenHandle() (buses.SPIHandle, error) {
	m.handleMu.Lock()
	if m.closed.Load() {
		m.handleMu.Unlock()
		return nil, buses.ErrClosed
	}
	m.handleOpen.Store(true)
	return &spiHandle{m: m}, nil
}

// Xfer runs tx as one transaction. chipSelect must name the master's line, mode must be 0 and
// baud, when not zero, must be no slower than the bus. An empty tx leaves the bus untouched.
func (sh *spiHandle) Xfer(ctx context.Context, baud uint, chipSelect string, mode uint, tx []byte) ([]byte, error) {
	if sh.isClosed {
		return nil, errors.Wrap(buses.ErrClosed, "can't use Xfer() on an already closed SPIHandle")
	}
	pin, err := stm32l0.ParsePin(chipSelect)
	if err != nil {
		return nil, errors.Wrapf(buses.ErrPrecondition, "chip select: %v", err)
	}
	if pin != sh.m.s.chipSelect {
		return nil, errors.Wrapf(buses.ErrPrecondition, "chip select %s requested, bus is bound to %s",
			pin, sh.m.s.chipSelect)
	}
	if err := sh.m.checkRequest(physic.Frequency(baud)*physic.Hertz, spi.Mode(mode)); err != nil {
		return nil, err
	}
	rx := make([]byte, len(tx))
	if err := sh.m.lockBus(true); err != nil {
		return nil, err
	}
	defer sh.m.mu.Unlock()
	if err := sh.m.frame(ctx, tx, rx); err != nil {
		return nil, err
	}
	return rx, nil
}

func (sh *spiHandle) Close() error {
	if sh.isClosed {
		return nil
	}
	sh.isClosed = true
	sh.m.handleOpen.Store(false)
	sh.m.handleMu.Unlock()
	return nil
}

// Package spimaster drives SPI1 of an STM32L0x3 in master mode, polling the status register for
// every byte. A Master owns one chip-select line and runs self-contained register transactions:
// chip select low, peripheral on, full-duplex byte exchange, drain, chip select high, peripheral
// off.
package spimaster

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"go.viam.com/spimaster/chip/stm32l0"
	"go.viam.com/spimaster/components/buses"
	"go.viam.com/spimaster/logging"
	"go.viam.com/spimaster/mmio"
	"go.viam.com/spimaster/timing"
)

const (
	// dummyByte is clocked out while reading.
	dummyByte = 0xff

	// The context and the deadline are consulted once every ctxCheckInterval status reads.
	ctxCheckInterval = 64
)

type busPin struct {
	pin  stm32l0.Pin
	role string
}

// SCK, MOSI and MISO are fixed to AF0 on these lines.
var busPins = []busPin{
	{stm32l0.Pin{Port: stm32l0.PortA, Line: 5}, "SCK"},
	{stm32l0.Pin{Port: stm32l0.PortA, Line: 7}, "MOSI"},
	{stm32l0.Pin{Port: stm32l0.PortB, Line: 4}, "MISO"},
}

const busPinAltFunc = 0

var (
	_ buses.SPI         = (*Master)(nil)
	_ buses.RegisterBus = (*Master)(nil)
)

// Master is an SPI1 master bound to one chip-select line. Transactions never overlap: a call
// made while another transaction is in flight, or while a handle is open, fails with
// buses.ErrBusy.
type Master struct {
	mu         sync.Mutex
	handleMu   sync.Mutex
	handleOpen atomic.Bool
	closed     atomic.Bool

	spi    stm32l0.SPIRegs
	cs     *Line
	s      settings
	delay  timing.Service
	clk    clock.Clock
	logger logging.Logger
}

// NewMaster initializes SPI1 and the chip-select line described by conf and returns the
// master. The peripheral is left disabled and chip select is left high. A nil clk means the
// wall clock.
func NewMaster(
	w mmio.Window,
	conf *Config,
	delay timing.Service,
	clk clock.Clock,
	logger logging.Logger,
) (*Master, error) {
	s, err := conf.resolve()
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	if delay == nil {
		delay = timing.New(clk)
	}
	m := &Master{
		spi:    stm32l0.NewSPI1(w),
		cs:     newLine(w, s.chipSelect),
		s:      s,
		delay:  delay,
		clk:    clk,
		logger: logger,
	}
	if err := m.initialize(w); err != nil {
		return nil, err
	}
	logger.Infow("SPI1 master initialized",
		"chip_select", s.chipSelect.String(),
		"speed", m.Speed().String(),
		"cr1", m.spi.CR1().String(),
	)
	return m, nil
}

func (m *Master) initialize(w mmio.Window) error {
	rcc := stm32l0.NewRCC(w)
	rcc.EnableAPB2(stm32l0.SPI1EN)
	for _, p := range busPins {
		rcc.EnablePort(p.pin.Port)
	}
	rcc.EnablePort(m.s.chipSelect.Port)

	for _, p := range busPins {
		port := stm32l0.NewGPIO(w, p.pin.Port)
		port.SetAltFunc(p.pin.Line, busPinAltFunc)
		port.SetSpeed(p.pin.Line, stm32l0.SpeedVeryHigh)
		port.SetMode(p.pin.Line, stm32l0.ModeAlternate)
	}

	// Latch the idle level before the line becomes an output so the device never sees a
	// spurious select.
	if err := m.cs.Out(gpio.High); err != nil {
		return err
	}
	cs := stm32l0.NewGPIO(w, m.s.chipSelect.Port)
	cs.SetPushPull(m.s.chipSelect.Line)
	cs.DisablePull(m.s.chipSelect.Line)
	cs.SetSpeed(m.s.chipSelect.Line, stm32l0.SpeedVeryHigh)
	cs.SetMode(m.s.chipSelect.Line, stm32l0.ModeOutput)

	// Software slave management with the internal select high must be in place before MSTR,
	// otherwise the block raises a mode fault.
	m.spi.ModifyCR1(stm32l0.SSM|stm32l0.SSI,
		stm32l0.SPE|stm32l0.CPOL|stm32l0.CPHA|stm32l0.DFF|stm32l0.LSBFIRST|
			stm32l0.RXONLY|stm32l0.BIDIMODE|stm32l0.CRCEN)
	m.spi.SetBaudRate(m.s.baudRate)
	m.spi.ModifyCR1(stm32l0.MSTR, 0)
	m.spi.ModifyCR2(0, stm32l0.FRF)

	if sr := m.spi.SR(); sr.Has(stm32l0.MODF) {
		return errors.Errorf("SPI1 reported a mode fault during initialization (status %s)", sr)
	}
	if cr1 := m.spi.CR1(); !cr1.Has(stm32l0.MSTR | stm32l0.SSM | stm32l0.SSI) {
		return errors.Errorf("SPI1 did not accept master configuration (CR1 %s)", cr1)
	}
	return nil
}

// Speed returns the serial clock frequency.
func (m *Master) Speed() physic.Frequency {
	return m.s.inputClock / physic.Frequency(m.s.baudRate.Divider())
}

// ChipSelect returns the chip-select line the master drives.
func (m *Master) ChipSelect() gpio.PinOut {
	return m.cs
}

func (m *Master) String() string {
	return fmt.Sprintf("SPI1.%s", m.s.chipSelect)
}

// WriteRegister clocks out the register address followed by payload. Received bytes are
// discarded.
func (m *Master) WriteRegister(ctx context.Context, register byte, payload []byte) error {
	m.logger.CDebugw(ctx, "SPI register write", "register", hexByte(register), "length", len(payload))
	w := make([]byte, 0, len(payload)+1)
	w = append(w, register)
	w = append(w, payload...)
	if err := m.transact(ctx, w, nil); err != nil {
		return errors.Wrapf(err, "writing register %s", hexByte(register))
	}
	return nil
}

// ReadRegister clocks out the register address followed by one dummy byte per byte of p and
// stores the bytes received during the dummy phase in p. An empty p performs only the address
// phase.
func (m *Master) ReadRegister(ctx context.Context, register byte, p []byte) error {
	m.logger.CDebugw(ctx, "SPI register read", "register", hexByte(register), "length", len(p))
	w := make([]byte, len(p)+1)
	w[0] = register
	for i := 1; i < len(w); i++ {
		w[i] = dummyByte
	}
	r := make([]byte, len(w))
	if err := m.transact(ctx, w, r); err != nil {
		return errors.Wrapf(err, "reading register %s", hexByte(register))
	}
	copy(p, r[1:])
	return nil
}

// transact runs one chip-select assertion over w, filling r when it is not nil.
func (m *Master) transact(ctx context.Context, w, r []byte) error {
	if err := m.acquire(); err != nil {
		return err
	}
	defer m.mu.Unlock()
	return m.frame(ctx, w, r)
}

func (m *Master) acquire() error {
	return m.lockBus(false)
}

// lockBus takes mu for one transaction. Only the holder of the open handle may pass
// viaHandle.
func (m *Master) lockBus(viaHandle bool) error {
	if m.closed.Load() {
		return buses.ErrClosed
	}
	if !viaHandle && m.handleOpen.Load() {
		return errors.Wrap(buses.ErrBusy, "bus is held by an open handle")
	}
	if !m.mu.TryLock() {
		return buses.ErrBusy
	}
	switch {
	case m.closed.Load():
		m.mu.Unlock()
		return buses.ErrClosed
	case !viaHandle && m.handleOpen.Load():
		m.mu.Unlock()
		return errors.Wrap(buses.ErrBusy, "bus is held by an open handle")
	}
	return nil
}

// frame must be called with mu held. The bus is returned to idle even when a wait times out.
// An empty w leaves the bus untouched.
func (m *Master) frame(ctx context.Context, w, r []byte) error {
	if len(w) == 0 {
		return nil
	}
	m.begin()
	err := m.shift(ctx, w, r)
	if err == nil {
		err = m.drain(ctx)
	}
	m.end()
	return err
}

func (m *Master) begin() {
	m.cs.low()
	m.spi.ModifyCR1(stm32l0.SPE, 0)
}

func (m *Master) shift(ctx context.Context, w, r []byte) error {
	for i, b := range w {
		rx, err := m.exchangeByte(ctx, b)
		if err != nil {
			return errors.Wrapf(err, "byte %d of %d", i+1, len(w))
		}
		if r != nil {
			r[i] = rx
		}
	}
	return nil
}

// exchangeByte loads one frame and returns the frame received while it was shifted out.
func (m *Master) exchangeByte(ctx context.Context, tx byte) (byte, error) {
	m.spi.WriteDR(tx)
	if err := m.waitFlag(ctx, stm32l0.TXE, true); err != nil {
		return 0, err
	}
	if err := m.waitFlag(ctx, stm32l0.RXNE, true); err != nil {
		return 0, err
	}
	return m.spi.ReadDR(), nil
}

// drain waits until the last frame has left the shift register.
func (m *Master) drain(ctx context.Context) error {
	if err := m.waitFlag(ctx, stm32l0.RXNE, false); err != nil {
		return errors.Wrap(err, "draining")
	}
	if err := m.waitFlag(ctx, stm32l0.TXE, true); err != nil {
		return errors.Wrap(err, "draining")
	}
	if err := m.waitFlag(ctx, stm32l0.BSY, false); err != nil {
		return errors.Wrap(err, "draining")
	}
	return nil
}

func (m *Master) end() {
	m.cs.high()
	m.delay.DelayMicroseconds(m.s.releaseDelay)
	m.spi.ModifyCR1(0, stm32l0.SPE)
	// A frame that completed after a timed out wait stays latched across SPE. The next
	// transaction must start with an empty receive buffer.
	if m.spi.SR().Has(stm32l0.RXNE) {
		m.spi.ReadDR()
	}
}

// waitFlag polls SR until flag reads as want. It gives up after the attempt budget is spent,
// the deadline passes or ctx is done, whichever comes first.
func (m *Master) waitFlag(ctx context.Context, flag stm32l0.SR, want bool) error {
	deadline := m.clk.Now().Add(m.s.pollTimeout)
	var sr stm32l0.SR
	for attempt := 1; ; attempt++ {
		sr = m.spi.SR()
		if sr.Has(flag) == want {
			return nil
		}
		if attempt >= m.s.pollAttempts {
			break
		}
		if attempt%ctxCheckInterval == 0 {
			if ctx.Err() != nil || m.clk.Now().After(deadline) {
				break
			}
		}
	}
	state := "clear"
	if want {
		state = "set"
	}
	m.logger.Warnw("timed out waiting for SPI status",
		"flag", flag.Name(),
		"want", state,
		"status", sr.String(),
	)
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(buses.ErrTimeout, "waiting for %s %s: %v", flag.Name(), state, err)
	}
	return errors.Wrapf(buses.ErrTimeout, "waiting for %s %s (status %s)", flag.Name(), state, sr)
}

// Close disables the peripheral and releases chip select. Further calls fail with
// buses.ErrClosed.
func (m *Master) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed.Swap(true) {
		return nil
	}
	m.spi.ModifyCR1(0, stm32l0.SPE)
	err := multierr.Combine(m.cs.Out(gpio.High), m.cs.Halt())
	m.logger.CDebugw(ctx, "SPI1 master closed", "chip_select", m.s.chipSelect.String())
	return err
}

func hexByte(b byte) string {
	return fmt.Sprintf("0x%02x", b)
}

// Package fake implements a simulated STM32L0 register block: clock gating, GPIO ports and an
// SPI1 shift engine wired to a simulated device. It satisfies mmio.Window, so bus drivers run
// against it unchanged.
package fake

import (
	"fmt"
	"sync"

	"go.viam.com/spimaster/chip/stm32l0"
	"go.viam.com/spimaster/mmio"
	"go.viam.com/spimaster/timing"
)

// Register offsets mirrored from the reference manual.
const (
	rccIOPENR  = stm32l0.RCCBase + 0x2c
	rccAPB2ENR = stm32l0.RCCBase + 0x34

	spiCR1 = stm32l0.SPI1Base + 0x00
	spiCR2 = stm32l0.SPI1Base + 0x04
	spiSR  = stm32l0.SPI1Base + 0x08
	spiDR  = stm32l0.SPI1Base + 0x0c

	gpioMODER   = 0x00
	gpioOTYPER  = 0x04
	gpioOSPEEDR = 0x08
	gpioPUPDR   = 0x0c
	gpioIDR     = 0x10
	gpioODR     = 0x14
	gpioBSRR    = 0x18
	gpioLCKR    = 0x1c
	gpioAFRL    = 0x20
	gpioAFRH    = 0x24
	gpioBRR     = 0x28

	// A frame floats high when no device drives MISO.
	floatingMISO = 0xff
)

// Device is the simulated device on the other end of the bus. Exchange is called once per
// frame while the chip-select line is low and returns the byte the device shifts out.
type Device interface {
	Select()
	Exchange(mosi byte) (miso byte)
	Deselect()
}

// Cycle is one completed transfer frame.
type Cycle struct {
	MOSI     byte
	MISO     byte
	Selected bool
}

func (c Cycle) String() string {
	cs := "cs-high"
	if c.Selected {
		cs = "cs-low"
	}
	return fmt.Sprintf("0x%02x/0x%02x %s", c.MOSI, c.MISO, cs)
}

// Faults make the simulated hardware withhold a status flag.
type Faults struct {
	// StallTXE keeps the loaded frame in the transmit buffer forever.
	StallTXE bool
	// StallRXNE drops received frames without raising RXNE.
	StallRXNE bool
	// StallBusy leaves BSY set after the last frame.
	StallBusy bool
	// LateRXNE finishes the frame in the shift register when SPE is cleared, so its RXNE
	// stays latched into the next transaction.
	LateRXNE bool
}

type gpioPort struct {
	moder, otyper, ospeedr, pupdr, odr, lckr, afrl, afrh uint32
}

// Peripheral is the simulated register block.
type Peripheral struct {
	mu sync.Mutex

	apb2enr uint32
	iopenr  uint32
	ports   [stm32l0.PortH + 1]gpioPort

	cr1, cr2 uint32
	sr       stm32l0.SR
	txBuf    byte
	txFull   bool
	shiftReg byte
	shifting int
	rxBuf    byte

	cs       stm32l0.Pin
	selected bool
	device   Device

	// CyclesPerFrame is the number of status reads a frame spends in the shift register.
	CyclesPerFrame int
	faults         Faults

	cycles   []Cycle
	events   []string
	overruns int
}

var _ mmio.Window = (*Peripheral)(nil)

// NewPeripheral returns a peripheral out of reset with dev selected by the cs line.
func NewPeripheral(cs stm32l0.Pin, dev Device) *Peripheral {
	p := &Peripheral{
		cs:             cs,
		device:         dev,
		sr:             stm32l0.SRReset,
		CyclesPerFrame: 2,
	}
	for i := range p.ports {
		// Lines come out of reset in analog mode.
		p.ports[i].moder = 0xffffffff
	}
	return p
}

// SetFaults replaces the injected faults.
func (p *Peripheral) SetFaults(f Faults) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.faults = f
	if f.StallBusy {
		p.sr |= stm32l0.BSY
	}
}

// Load32 implements mmio.Window.
func (p *Peripheral) Load32(addr uint32) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch addr {
	case rccIOPENR:
		return p.iopenr
	case rccAPB2ENR:
		return p.apb2enr
	case spiCR1:
		return p.cr1
	case spiCR2:
		return p.cr2
	case spiSR:
		p.step()
		return uint32(p.sr)
	case spiDR:
		p.sr &^= stm32l0.RXNE
		return uint32(p.rxBuf)
	}
	if port, offset, ok := decodeGPIO(addr); ok {
		g := &p.ports[port]
		switch offset {
		case gpioMODER:
			return g.moder
		case gpioOTYPER:
			return g.otyper
		case gpioOSPEEDR:
			return g.ospeedr
		case gpioPUPDR:
			return g.pupdr
		case gpioIDR, gpioODR:
			return g.odr
		case gpioLCKR:
			return g.lckr
		case gpioAFRL:
			return g.afrl
		case gpioAFRH:
			return g.afrh
		case gpioBSRR, gpioBRR:
			return 0
		}
	}
	panic(fmt.Sprintf("fake: load from unmodeled address %#08x", addr))
}

// Store32 implements mmio.Window. Writes to a block whose clock is gated off are dropped.
func (p *Peripheral) Store32(addr, value uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch addr {
	case rccIOPENR:
		p.iopenr = value
		return
	case rccAPB2ENR:
		p.apb2enr = value
		return
	case spiCR1, spiCR2, spiSR, spiDR:
		if p.apb2enr&uint32(stm32l0.SPI1EN) == 0 {
			p.events = append(p.events, "dropped SPI1 write")
			return
		}
		p.storeSPI(addr, value)
		return
	}
	port, offset, ok := decodeGPIO(addr)
	if !ok {
		panic(fmt.Sprintf("fake: store to unmodeled address %#08x", addr))
	}
	if p.iopenr&uint32(stm32l0.IOPEN(port)) == 0 {
		p.events = append(p.events, fmt.Sprintf("dropped %s write", port))
		return
	}
	g := &p.ports[port]
	switch offset {
	case gpioMODER:
		g.moder = value
	case gpioOTYPER:
		g.otyper = value
	case gpioOSPEEDR:
		g.ospeedr = value
	case gpioPUPDR:
		g.pupdr = value
	case gpioODR:
		g.odr = value & 0xffff
	case gpioBSRR:
		// Set wins over reset when both halves name the same line.
		g.odr = (g.odr &^ (value >> 16)) | (value & 0xffff)
	case gpioBRR:
		g.odr &^= value & 0xffff
	case gpioLCKR:
		g.lckr = value
	case gpioAFRL:
		g.afrl = value
	case gpioAFRH:
		g.afrh = value
	case gpioIDR:
	}
	p.updateChipSelect()
}

func decodeGPIO(addr uint32) (stm32l0.Port, uint32, bool) {
	if addr < stm32l0.GPIOABase || addr >= stm32l0.PortH.Base()+0x400 {
		return 0, 0, false
	}
	port := stm32l0.Port((addr - stm32l0.GPIOABase) / 0x400)
	if !port.Valid() {
		return 0, 0, false
	}
	return port, addr - port.Base(), true
}

// The device sees the line low only when it is configured as an output driving low; otherwise
// the line is pulled high on the device side.
func (p *Peripheral) updateChipSelect() {
	g := p.ports[p.cs.Port]
	shift := 2 * uint32(p.cs.Line)
	output := (g.moder>>shift)&0b11 == uint32(stm32l0.ModeOutput)
	selected := output && g.odr&(1<<uint32(p.cs.Line)) == 0
	if selected == p.selected {
		return
	}
	p.selected = selected
	if selected {
		p.events = append(p.events, "cs-low")
		if p.device != nil {
			p.device.Select()
		}
		return
	}
	p.events = append(p.events, "cs-high")
	if p.device != nil {
		p.device.Deselect()
	}
}

func (p *Peripheral) storeSPI(addr, value uint32) {
	switch addr {
	case spiCR1:
		was := stm32l0.CR1(p.cr1)
		now := stm32l0.CR1(value)
		if now.Has(stm32l0.MSTR|stm32l0.SSM) && !now.Has(stm32l0.SSI) {
			// Internal slave select low on a master is a mode fault: the block drops back to
			// slave and disables itself.
			p.sr |= stm32l0.MODF
			now &^= stm32l0.MSTR | stm32l0.SPE
			p.events = append(p.events, "mode-fault")
		}
		p.cr1 = uint32(now)
		switch {
		case !was.Has(stm32l0.SPE) && now.Has(stm32l0.SPE):
			p.events = append(p.events, "spe-on")
		case was.Has(stm32l0.SPE) && !now.Has(stm32l0.SPE):
			p.events = append(p.events, "spe-off")
			if p.shifting > 0 && p.faults.LateRXNE {
				p.completeFrame()
			}
			p.shifting = 0
			if !p.faults.StallBusy {
				p.sr &^= stm32l0.BSY
			}
		}
	case spiCR2:
		p.cr2 = value
	case spiDR:
		p.txBuf = byte(value)
		p.txFull = true
		p.sr &^= stm32l0.TXE
		p.events = append(p.events, fmt.Sprintf("tx 0x%02x", byte(value)))
	case spiSR:
		// Status flags are read-only here.
	}
}

// step advances the shift engine by one status read.
func (p *Peripheral) step() {
	cr1 := stm32l0.CR1(p.cr1)
	if !cr1.Has(stm32l0.SPE | stm32l0.MSTR) {
		return
	}
	if p.shifting > 0 {
		p.shifting--
		if p.shifting == 0 {
			p.completeFrame()
		}
		return
	}
	if p.txFull && !p.faults.StallTXE {
		p.shiftReg = p.txBuf
		p.txFull = false
		p.sr |= stm32l0.TXE | stm32l0.BSY
		p.shifting = p.CyclesPerFrame
		if p.shifting < 1 {
			p.shifting = 1
		}
	}
}

func (p *Peripheral) completeFrame() {
	miso := byte(floatingMISO)
	if p.selected && p.device != nil {
		miso = p.device.Exchange(p.shiftReg)
	}
	p.cycles = append(p.cycles, Cycle{MOSI: p.shiftReg, MISO: miso, Selected: p.selected})

	if !p.faults.StallRXNE {
		if p.sr.Has(stm32l0.RXNE) {
			// The unread frame is kept and the new one is lost.
			p.sr |= stm32l0.OVR
			p.overruns++
		} else {
			p.rxBuf = miso
			p.sr |= stm32l0.RXNE
		}
	}
	if !p.txFull && !p.faults.StallBusy {
		p.sr &^= stm32l0.BSY
	}
}

// Timing returns a delay service that records each delay in the event trace instead of
// sleeping.
func (p *Peripheral) Timing() timing.Service {
	return &recordingTiming{p}
}

type recordingTiming struct {
	p *Peripheral
}

func (t *recordingTiming) DelayMicroseconds(n int) {
	t.p.record(fmt.Sprintf("delay %dus", n))
}

func (t *recordingTiming) DelayMilliseconds(n int) {
	t.p.record(fmt.Sprintf("delay %dms", n))
}

func (p *Peripheral) record(event string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

// Cycles returns the frames clocked since the last ResetTrace.
func (p *Peripheral) Cycles() []Cycle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Cycle(nil), p.cycles...)
}

// Transmitted returns the MOSI byte of every recorded frame.
func (p *Peripheral) Transmitted() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]byte, 0, len(p.cycles))
	for _, c := range p.cycles {
		out = append(out, c.MOSI)
	}
	return out
}

// Events returns the ordered trace of chip-select, enable, load and delay events.
func (p *Peripheral) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// Overruns returns how many frames arrived while the previous one was still unread.
func (p *Peripheral) Overruns() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overruns
}

// ResetTrace clears recorded cycles, events and overruns.
func (p *Peripheral) ResetTrace() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cycles = nil
	p.events = nil
	p.overruns = 0
}

// Selected reports whether the device currently sees its chip-select line low.
func (p *Peripheral) Selected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selected
}

// Enabled reports whether SPE is set.
func (p *Peripheral) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return stm32l0.CR1(p.cr1).Has(stm32l0.SPE)
}

// Status returns SR without advancing the shift engine.
func (p *Peripheral) Status() stm32l0.SR {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sr
}

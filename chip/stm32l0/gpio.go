package stm32l0

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"go.viam.com/spimaster/mmio"
)

// Port identifies a GPIO port. Ports F and G do not exist on this family.
type Port uint8

// GPIO ports.
const (
	PortA Port = 0
	PortB Port = 1
	PortC Port = 2
	PortD Port = 3
	PortE Port = 4
	PortH Port = 7
)

// Valid reports whether the port exists.
func (p Port) Valid() bool {
	return p <= PortE || p == PortH
}

// Base returns the port's register block address.
func (p Port) Base() uint32 {
	return GPIOABase + uint32(p)*gpioStride
}

func (p Port) String() string {
	return fmt.Sprintf("GPIO%c", 'A'+rune(p))
}

// Pin is a single GPIO line such as PA4.
type Pin struct {
	Port Port
	Line uint8
}

// Validate reports whether the pin exists.
func (p Pin) Validate() error {
	if !p.Port.Valid() {
		return errors.Errorf("no such GPIO port %c", 'A'+rune(p.Port))
	}
	if p.Line > 15 {
		return errors.Errorf("GPIO line %d out of range [0, 15]", p.Line)
	}
	return nil
}

func (p Pin) String() string {
	return fmt.Sprintf("P%c%d", 'A'+rune(p.Port), p.Line)
}

// ParsePin parses names of the form "PA4" or "pb12".
func ParsePin(name string) (Pin, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if len(upper) < 3 || upper[0] != 'P' || upper[1] < 'A' || upper[1] > 'Z' {
		return Pin{}, errors.Errorf("malformed pin name %q, expected something like PA4", name)
	}
	line, err := strconv.ParseUint(upper[2:], 10, 8)
	if err != nil {
		return Pin{}, errors.Wrapf(err, "malformed pin name %q", name)
	}
	p := Pin{Port: Port(upper[1] - 'A'), Line: uint8(line)}
	if err := p.Validate(); err != nil {
		return Pin{}, errors.Wrapf(err, "bad pin name %q", name)
	}
	return p, nil
}

// Mode is the two-bit MODER setting of a line.
type Mode uint32

// Line modes. Analog is the reset mode of most lines.
const (
	ModeInput     Mode = 0
	ModeOutput    Mode = 1
	ModeAlternate Mode = 2
	ModeAnalog    Mode = 3
)

// Speed is the two-bit OSPEEDR setting of a line.
type Speed uint32

// Output slew rates.
const (
	SpeedLow      Speed = 0
	SpeedMedium   Speed = 1
	SpeedHigh     Speed = 2
	SpeedVeryHigh Speed = 3
)

// GPIORegs is a view of one GPIO port.
type GPIORegs struct {
	w    mmio.Window
	base uint32
}

// NewGPIO returns a view of the given port.
func NewGPIO(w mmio.Window, p Port) GPIORegs {
	return GPIORegs{w: w, base: p.Base()}
}

func (g GPIORegs) field2(offset uint32, line uint8) uint32 {
	return (g.w.Load32(g.base+offset) >> (2 * uint32(line))) & 0b11
}

func (g GPIORegs) setField2(offset uint32, line uint8, v uint32) {
	shift := 2 * uint32(line)
	modify(g.w, g.base+offset, (v&0b11)<<shift, 0b11<<shift)
}

// Mode returns the mode of a line.
func (g GPIORegs) Mode(line uint8) Mode {
	return Mode(g.field2(gpioMODER, line))
}

// SetMode sets the mode of a line.
func (g GPIORegs) SetMode(line uint8, m Mode) {
	g.setField2(gpioMODER, line, uint32(m))
}

// Speed returns the output speed of a line.
func (g GPIORegs) Speed(line uint8) Speed {
	return Speed(g.field2(gpioOSPEEDR, line))
}

// SetSpeed sets the output speed of a line.
func (g GPIORegs) SetSpeed(line uint8, s Speed) {
	g.setField2(gpioOSPEEDR, line, uint32(s))
}

// OpenDrain reports whether a line is open-drain rather than push-pull.
func (g GPIORegs) OpenDrain(line uint8) bool {
	return g.w.Load32(g.base+gpioOTYPER)&(1<<uint32(line)) != 0
}

// SetPushPull configures a line as a push-pull output.
func (g GPIORegs) SetPushPull(line uint8) {
	modify(g.w, g.base+gpioOTYPER, 0, 1<<uint32(line))
}

// DisablePull removes any pull-up or pull-down from a line.
func (g GPIORegs) DisablePull(line uint8) {
	g.setField2(gpioPUPDR, line, 0)
}

func (g GPIORegs) afrAddr(line uint8) (uint32, uint32) {
	if line < 8 {
		return g.base + gpioAFRL, 4 * uint32(line)
	}
	return g.base + gpioAFRH, 4 * uint32(line-8)
}

// AltFunc returns the alternate function number routed to a line.
func (g GPIORegs) AltFunc(line uint8) uint8 {
	addr, shift := g.afrAddr(line)
	return uint8((g.w.Load32(addr) >> shift) & 0xf)
}

// SetAltFunc routes alternate function af to a line.
func (g GPIORegs) SetAltFunc(line, af uint8) {
	addr, shift := g.afrAddr(line)
	modify(g.w, addr, uint32(af&0xf)<<shift, 0xf<<shift)
}

// Set drives a line high through the bit set/reset register.
func (g GPIORegs) Set(line uint8) {
	g.w.Store32(g.base+gpioBSRR, 1<<uint32(line))
}

// Reset drives a line low through the bit reset register.
func (g GPIORegs) Reset(line uint8) {
	g.w.Store32(g.base+gpioBRR, 1<<uint32(line))
}

// Output returns the driven level of a line.
func (g GPIORegs) Output(line uint8) bool {
	return g.w.Load32(g.base+gpioODR)&(1<<uint32(line)) != 0
}

// Input returns the sampled level of a line.
func (g GPIORegs) Input(line uint8) bool {
	return g.w.Load32(g.base+gpioIDR)&(1<<uint32(line)) != 0
}

package spimaster

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"go.viam.com/spimaster/chip/stm32l0"
	"go.viam.com/spimaster/mmio"
)

var _ gpio.PinOut = (*Line)(nil)

// Line is a push-pull output driven through the port's set and reset registers.
type Line struct {
	pin  stm32l0.Pin
	port stm32l0.GPIORegs
}

func newLine(w mmio.Window, pin stm32l0.Pin) *Line {
	return &Line{pin: pin, port: stm32l0.NewGPIO(w, pin.Port)}
}

func (l *Line) String() string {
	return l.pin.String()
}

// Name implements pin.Pin.
func (l *Line) Name() string {
	return l.pin.String()
}

// Number returns the line's index counting 16 lines per port from PA0.
func (l *Line) Number() int {
	return int(l.pin.Port)*16 + int(l.pin.Line)
}

// Function implements pin.Pin.
func (l *Line) Function() string {
	switch l.port.Mode(l.pin.Line) {
	case stm32l0.ModeInput:
		return "In"
	case stm32l0.ModeOutput:
		return "Out/" + l.Read().String()
	case stm32l0.ModeAlternate:
		return "ALT"
	default:
		return "Analog"
	}
}

// Halt implements conn.Resource. There is nothing running on the line to stop.
func (l *Line) Halt() error {
	return nil
}

// Out drives the line.
func (l *Line) Out(level gpio.Level) error {
	if level == gpio.High {
		l.high()
	} else {
		l.low()
	}
	return nil
}

// PWM is not supported on a chip-select line.
func (l *Line) PWM(duty gpio.Duty, f physic.Frequency) error {
	return errors.Errorf("%s: PWM is not supported on a chip-select line", l.pin)
}

// Read returns the level the line is driving.
func (l *Line) Read() gpio.Level {
	return gpio.Level(l.port.Output(l.pin.Line))
}

func (l *Line) high() {
	l.port.Set(l.pin.Line)
}

func (l *Line) low() {
	l.port.Reset(l.pin.Line)
}

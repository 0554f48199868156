package stm32l0

import "go.viam.com/spimaster/mmio"

// APB2ENR is the APB2 peripheral clock enable register.
type APB2ENR uint32

// SPI1EN gates the SPI1 peripheral clock.
const SPI1EN APB2ENR = 1 << 12

// IOPENR is the GPIO port clock enable register. Bit n gates port n.
type IOPENR uint32

// IOPEN returns the IOPENR bit gating port p.
func IOPEN(p Port) IOPENR {
	return 1 << uint32(p)
}

// RCCRegs is a view of the reset and clock controller.
type RCCRegs struct {
	w mmio.Window
}

// NewRCC returns a view of the RCC block.
func NewRCC(w mmio.Window) RCCRegs {
	return RCCRegs{w: w}
}

// APB2ENR returns the APB2 clock gates.
func (r RCCRegs) APB2ENR() APB2ENR {
	return APB2ENR(r.w.Load32(RCCBase + rccAPB2ENR))
}

// EnableAPB2 sets the given APB2 clock gates.
func (r RCCRegs) EnableAPB2(bits APB2ENR) {
	modify(r.w, RCCBase+rccAPB2ENR, uint32(bits), 0)
}

// IOPENR returns the GPIO port clock gates.
func (r RCCRegs) IOPENR() IOPENR {
	return IOPENR(r.w.Load32(RCCBase + rccIOPENR))
}

// EnablePort gates the clock of the given GPIO port.
func (r RCCRegs) EnablePort(p Port) {
	modify(r.w, RCCBase+rccIOPENR, uint32(IOPEN(p)), 0)
}

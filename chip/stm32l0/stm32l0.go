// Package stm32l0 describes the STM32L0x3 registers used by the SPI1 master: the reset and
// clock controller gates, the GPIO ports and the SPI1 block. Register views read and write
// through an mmio.Window, so the same code drives physical memory or the simulated peripheral.
package stm32l0

import (
	"strings"

	"go.viam.com/spimaster/mmio"
)

// Peripheral base addresses.
const (
	RCCBase   uint32 = 0x40021000
	SPI1Base  uint32 = 0x40013000
	GPIOABase uint32 = 0x50000000

	gpioStride uint32 = 0x400
	blockSize         = 0x400
)

// Register offsets within each block.
const (
	rccIOPENR  = 0x2c
	rccAPB2ENR = 0x34

	gpioMODER   = 0x00
	gpioOTYPER  = 0x04
	gpioOSPEEDR = 0x08
	gpioPUPDR   = 0x0c
	gpioIDR     = 0x10
	gpioODR     = 0x14
	gpioBSRR    = 0x18
	gpioAFRL    = 0x20
	gpioAFRH    = 0x24
	gpioBRR     = 0x28

	spiCR1 = 0x00
	spiCR2 = 0x04
	spiSR  = 0x08
	spiDR  = 0x0c
)

// Regions returns the register blocks touched by the SPI1 master, suitable for
// mmio.MapPhysical.
func Regions() []mmio.Region {
	return []mmio.Region{
		{Name: "RCC", Base: RCCBase, Size: blockSize},
		{Name: "SPI1", Base: SPI1Base, Size: blockSize},
		{Name: "GPIO", Base: GPIOABase, Size: int(gpioStride) * int(PortH+1)},
	}
}

type bitName struct {
	mask uint32
	name string
}

// renderFlags prints each named bit as NAME+ when set and NAME- when clear.
func renderFlags(v uint32, names []bitName) string {
	parts := make([]string, 0, len(names))
	for _, n := range names {
		if v&n.mask != 0 {
			parts = append(parts, n.name+"+")
		} else {
			parts = append(parts, n.name+"-")
		}
	}
	return strings.Join(parts, " ")
}

func modify(w mmio.Window, addr, set, clr uint32) {
	w.Store32(addr, (w.Load32(addr)&^clr)|set)
}

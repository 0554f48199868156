package stm32l0

import (
	"fmt"

	"github.com/pkg/errors"

	"go.viam.com/spimaster/mmio"
)

// CR1 is SPI control register 1.
type CR1 uint32

// CR1 bits.
const (
	CPHA     CR1 = 1 << 0 // Clock phase: 0 samples on the leading edge.
	CPOL     CR1 = 1 << 1 // Clock polarity: 0 idles low.
	MSTR     CR1 = 1 << 2 // Master selection.
	SPE      CR1 = 1 << 6 // Peripheral enable.
	LSBFIRST CR1 = 1 << 7
	SSI      CR1 = 1 << 8 // Internal slave select level, used when SSM is set.
	SSM      CR1 = 1 << 9 // Software slave management.
	RXONLY   CR1 = 1 << 10
	DFF      CR1 = 1 << 11 // 16-bit frames when set.
	CRCNEXT  CR1 = 1 << 12
	CRCEN    CR1 = 1 << 13
	BIDIOE   CR1 = 1 << 14
	BIDIMODE CR1 = 1 << 15

	brShift      = 3
	brMask   CR1 = 0b111 << brShift
)

var cr1Names = []bitName{
	{uint32(BIDIMODE), "BIDIMODE"},
	{uint32(DFF), "DFF"},
	{uint32(SSM), "SSM"},
	{uint32(SSI), "SSI"},
	{uint32(LSBFIRST), "LSBFIRST"},
	{uint32(SPE), "SPE"},
	{uint32(MSTR), "MSTR"},
	{uint32(CPOL), "CPOL"},
	{uint32(CPHA), "CPHA"},
}

// Has reports whether every bit in mask is set.
func (c CR1) Has(mask CR1) bool {
	return c&mask == mask
}

// BaudRate returns the BR field.
func (c CR1) BaudRate() BaudRate {
	return BaudRate((c & brMask) >> brShift)
}

// WithBaudRate returns c with the BR field replaced.
func (c CR1) WithBaudRate(br BaudRate) CR1 {
	return (c &^ brMask) | (CR1(br)<<brShift)&brMask
}

func (c CR1) String() string {
	return fmt.Sprintf("%s BR:/%d", renderFlags(uint32(c), cr1Names), c.BaudRate().Divider())
}

// BaudRate is the three-bit prescaler code: f_sck = f_pclk / 2^(BR+1).
type BaudRate uint32

// Divider returns the clock division the code selects.
func (b BaudRate) Divider() int {
	return 2 << (b & 0b111)
}

// BaudRateFor returns the code for a prescaler of 2, 4, ... 256.
func BaudRateFor(prescaler int) (BaudRate, error) {
	for br := BaudRate(0); br <= 7; br++ {
		if br.Divider() == prescaler {
			return br, nil
		}
	}
	return 0, errors.Errorf("prescaler %d is not a power of two in [2, 256]", prescaler)
}

// CR2 is SPI control register 2.
type CR2 uint32

// CR2 bits.
const (
	RXDMAEN CR2 = 1 << 0
	TXDMAEN CR2 = 1 << 1
	SSOE    CR2 = 1 << 2
	FRF     CR2 = 1 << 4 // TI frame format when set, Motorola when clear.
	ERRIE   CR2 = 1 << 5
	RXNEIE  CR2 = 1 << 6
	TXEIE   CR2 = 1 << 7
)

var cr2Names = []bitName{
	{uint32(TXEIE), "TXEIE"},
	{uint32(RXNEIE), "RXNEIE"},
	{uint32(ERRIE), "ERRIE"},
	{uint32(FRF), "FRF"},
	{uint32(SSOE), "SSOE"},
	{uint32(TXDMAEN), "TXDMAEN"},
	{uint32(RXDMAEN), "RXDMAEN"},
}

// Has reports whether every bit in mask is set.
func (c CR2) Has(mask CR2) bool {
	return c&mask == mask
}

func (c CR2) String() string {
	return renderFlags(uint32(c), cr2Names)
}

// SR is the SPI status register.
type SR uint32

// SR bits.
const (
	RXNE   SR = 1 << 0 // Receive buffer not empty.
	TXE    SR = 1 << 1 // Transmit buffer empty.
	CHSIDE SR = 1 << 2
	UDR    SR = 1 << 3
	CRCERR SR = 1 << 4
	MODF   SR = 1 << 5 // Mode fault.
	OVR    SR = 1 << 6 // Overrun.
	BSY    SR = 1 << 7
	FRE    SR = 1 << 8

	// SRReset is the status register value out of reset.
	SRReset = TXE
)

var srNames = []bitName{
	{uint32(FRE), "FRE"},
	{uint32(BSY), "BSY"},
	{uint32(OVR), "OVR"},
	{uint32(MODF), "MODF"},
	{uint32(TXE), "TXE"},
	{uint32(RXNE), "RXNE"},
}

// Has reports whether every bit in mask is set.
func (s SR) Has(mask SR) bool {
	return s&mask == mask
}

func (s SR) String() string {
	return renderFlags(uint32(s), srNames)
}

// Name returns the name of a single status flag.
func (s SR) Name() string {
	for _, n := range srNames {
		if n.mask == uint32(s) {
			return n.name
		}
	}
	return fmt.Sprintf("SR(%#x)", uint32(s))
}

// SPIRegs is a view of an SPI block.
type SPIRegs struct {
	w    mmio.Window
	base uint32
}

// NewSPI1 returns a view of SPI1.
func NewSPI1(w mmio.Window) SPIRegs {
	return SPIRegs{w: w, base: SPI1Base}
}

// CR1 reads control register 1.
func (s SPIRegs) CR1() CR1 {
	return CR1(s.w.Load32(s.base + spiCR1))
}

// ModifyCR1 sets then clears bits of control register 1 in one write.
func (s SPIRegs) ModifyCR1(set, clr CR1) {
	modify(s.w, s.base+spiCR1, uint32(set), uint32(clr))
}

// SetBaudRate replaces the BR field of control register 1.
func (s SPIRegs) SetBaudRate(br BaudRate) {
	modify(s.w, s.base+spiCR1, uint32(CR1(0).WithBaudRate(br)), uint32(brMask))
}

// CR2 reads control register 2.
func (s SPIRegs) CR2() CR2 {
	return CR2(s.w.Load32(s.base + spiCR2))
}

// ModifyCR2 sets then clears bits of control register 2 in one write.
func (s SPIRegs) ModifyCR2(set, clr CR2) {
	modify(s.w, s.base+spiCR2, uint32(set), uint32(clr))
}

// SR reads the status register.
func (s SPIRegs) SR() SR {
	return SR(s.w.Load32(s.base + spiSR))
}

// WriteDR loads a frame into the transmit buffer.
func (s SPIRegs) WriteDR(b byte) {
	s.w.Store32(s.base+spiDR, uint32(b))
}

// ReadDR reads the receive buffer, clearing RXNE.
func (s SPIRegs) ReadDR() byte {
	return byte(s.w.Load32(s.base + spiDR))
}

package fake

import (
	"testing"

	"go.viam.com/test"

	"go.viam.com/spimaster/chip/stm32l0"
)

var csPin = stm32l0.Pin{Port: stm32l0.PortA, Line: 4}

func newEnabledPeripheral(dev Device) (*Peripheral, stm32l0.SPIRegs, stm32l0.GPIORegs) {
	p := NewPeripheral(csPin, dev)
	rcc := stm32l0.NewRCC(p)
	rcc.EnableAPB2(stm32l0.SPI1EN)
	rcc.EnablePort(stm32l0.PortA)
	gpio := stm32l0.NewGPIO(p, stm32l0.PortA)
	gpio.Set(csPin.Line)
	gpio.SetMode(csPin.Line, stm32l0.ModeOutput)
	spi := stm32l0.NewSPI1(p)
	spi.ModifyCR1(stm32l0.SSM|stm32l0.SSI, 0)
	spi.ModifyCR1(stm32l0.MSTR, 0)
	return p, spi, gpio
}

func exchange(t *testing.T, spi stm32l0.SPIRegs, tx byte) byte {
	t.Helper()
	spi.WriteDR(tx)
	for i := 0; !spi.SR().Has(stm32l0.TXE); i++ {
		test.That(t, i, test.ShouldBeLessThan, 10)
	}
	for i := 0; !spi.SR().Has(stm32l0.RXNE); i++ {
		test.That(t, i, test.ShouldBeLessThan, 10)
	}
	return spi.ReadDR()
}

func TestClockGating(t *testing.T) {
	p := NewPeripheral(csPin, nil)
	spi := stm32l0.NewSPI1(p)
	spi.ModifyCR1(stm32l0.MSTR, 0)
	test.That(t, spi.CR1(), test.ShouldEqual, stm32l0.CR1(0))

	gpio := stm32l0.NewGPIO(p, stm32l0.PortA)
	gpio.SetMode(4, stm32l0.ModeOutput)
	test.That(t, gpio.Mode(4), test.ShouldEqual, stm32l0.ModeAnalog)
	test.That(t, p.Events(), test.ShouldResemble, []string{"dropped SPI1 write", "dropped GPIOA write"})

	stm32l0.NewRCC(p).EnableAPB2(stm32l0.SPI1EN)
	spi.ModifyCR1(stm32l0.SSM|stm32l0.SSI|stm32l0.MSTR, 0)
	test.That(t, spi.CR1().Has(stm32l0.MSTR), test.ShouldBeTrue)
}

func TestChipSelectTracking(t *testing.T) {
	p, _, gpio := newEnabledPeripheral(NewRegisterDevice(nil))
	test.That(t, p.Selected(), test.ShouldBeFalse)

	gpio.Reset(csPin.Line)
	test.That(t, p.Selected(), test.ShouldBeTrue)
	gpio.Set(csPin.Line)
	test.That(t, p.Selected(), test.ShouldBeFalse)
	test.That(t, p.Events(), test.ShouldResemble, []string{"cs-low", "cs-high"})

	// Another line on the same port does not move chip select.
	gpio.SetMode(5, stm32l0.ModeOutput)
	gpio.Reset(5)
	test.That(t, p.Selected(), test.ShouldBeFalse)
}

func TestFrameExchange(t *testing.T) {
	dev := NewRegisterDevice(map[byte]byte{0x50: 0x60, 0x51: 0x61})
	p, spi, gpio := newEnabledPeripheral(dev)

	gpio.Reset(csPin.Line)
	spi.ModifyCR1(stm32l0.SPE, 0)
	test.That(t, exchange(t, spi, 0xd0), test.ShouldEqual, byte(0xff))
	test.That(t, exchange(t, spi, 0xff), test.ShouldEqual, byte(0x60))
	test.That(t, exchange(t, spi, 0xff), test.ShouldEqual, byte(0x61))

	sr := spi.SR()
	test.That(t, sr.Has(stm32l0.TXE), test.ShouldBeTrue)
	test.That(t, sr.Has(stm32l0.BSY), test.ShouldBeFalse)
	test.That(t, sr.Has(stm32l0.RXNE), test.ShouldBeFalse)

	spi.ModifyCR1(0, stm32l0.SPE)
	gpio.Set(csPin.Line)

	test.That(t, p.Transmitted(), test.ShouldResemble, []byte{0xd0, 0xff, 0xff})
	test.That(t, p.Cycles()[1], test.ShouldResemble, Cycle{MOSI: 0xff, MISO: 0x60, Selected: true})
	test.That(t, p.Events(), test.ShouldResemble, []string{
		"cs-low", "spe-on", "tx 0xd0", "tx 0xff", "tx 0xff", "spe-off", "cs-high",
	})
}

func TestRegisterDeviceWrite(t *testing.T) {
	dev := NewRegisterDevice(nil)
	_, spi, gpio := newEnabledPeripheral(dev)

	gpio.Reset(csPin.Line)
	spi.ModifyCR1(stm32l0.SPE, 0)
	exchange(t, spi, 0x7f)
	exchange(t, spi, 0xaa)
	exchange(t, spi, 0xbb)
	gpio.Set(csPin.Line)

	test.That(t, dev.Register(0x7f), test.ShouldEqual, byte(0xaa))
	test.That(t, dev.Register(0x00), test.ShouldEqual, byte(0xbb))
	test.That(t, dev.Writes(), test.ShouldEqual, 2)
}

func TestDeselectedDeviceSeesNothing(t *testing.T) {
	dev := NewRegisterDevice(nil)
	p, spi, _ := newEnabledPeripheral(dev)
	spi.ModifyCR1(stm32l0.SPE, 0)
	test.That(t, exchange(t, spi, 0x01), test.ShouldEqual, byte(0xff))
	exchange(t, spi, 0x02)
	test.That(t, dev.Writes(), test.ShouldEqual, 0)
	test.That(t, p.Cycles()[0].Selected, test.ShouldBeFalse)
}

func TestOverrun(t *testing.T) {
	p, spi, _ := newEnabledPeripheral(nil)
	spi.ModifyCR1(stm32l0.SPE, 0)
	exchange(t, spi, 0x01)

	// Leave RXNE set by skipping the data register read.
	spi.WriteDR(0x02)
	for i := 0; i < 5; i++ {
		spi.SR()
	}
	test.That(t, spi.SR().Has(stm32l0.OVR), test.ShouldBeFalse)
	test.That(t, p.Overruns(), test.ShouldEqual, 0)

	spi.ReadDR()
	spi.WriteDR(0x03)
	for i := 0; i < 5; i++ {
		spi.SR()
	}
	spi.WriteDR(0x04)
	for i := 0; i < 5; i++ {
		spi.SR()
	}
	test.That(t, spi.SR().Has(stm32l0.OVR), test.ShouldBeTrue)
	test.That(t, p.Overruns(), test.ShouldEqual, 1)
}

func TestModeFault(t *testing.T) {
	p := NewPeripheral(csPin, nil)
	stm32l0.NewRCC(p).EnableAPB2(stm32l0.SPI1EN)
	spi := stm32l0.NewSPI1(p)
	spi.ModifyCR1(stm32l0.SSM|stm32l0.MSTR|stm32l0.SPE, 0)

	test.That(t, spi.SR().Has(stm32l0.MODF), test.ShouldBeTrue)
	test.That(t, spi.CR1().Has(stm32l0.MSTR), test.ShouldBeFalse)
	test.That(t, p.Enabled(), test.ShouldBeFalse)
}

func TestFaults(t *testing.T) {
	t.Run("txe", func(t *testing.T) {
		p, spi, _ := newEnabledPeripheral(nil)
		p.SetFaults(Faults{StallTXE: true})
		spi.ModifyCR1(stm32l0.SPE, 0)
		spi.WriteDR(0x01)
		for i := 0; i < 10; i++ {
			test.That(t, spi.SR().Has(stm32l0.TXE), test.ShouldBeFalse)
		}
		test.That(t, p.Cycles(), test.ShouldBeEmpty)
	})

	t.Run("rxne", func(t *testing.T) {
		p, spi, _ := newEnabledPeripheral(nil)
		p.SetFaults(Faults{StallRXNE: true})
		spi.ModifyCR1(stm32l0.SPE, 0)
		spi.WriteDR(0x01)
		for i := 0; i < 10; i++ {
			test.That(t, spi.SR().Has(stm32l0.RXNE), test.ShouldBeFalse)
		}
		test.That(t, p.Cycles(), test.ShouldHaveLength, 1)
	})

	t.Run("busy", func(t *testing.T) {
		p, spi, _ := newEnabledPeripheral(nil)
		p.SetFaults(Faults{StallBusy: true})
		spi.ModifyCR1(stm32l0.SPE, 0)
		exchange(t, spi, 0x01)
		test.That(t, spi.SR().Has(stm32l0.BSY), test.ShouldBeTrue)
		spi.ModifyCR1(0, stm32l0.SPE)
		test.That(t, p.Status().Has(stm32l0.BSY), test.ShouldBeTrue)
	})

	t.Run("late rxne", func(t *testing.T) {
		p, spi, _ := newEnabledPeripheral(nil)
		p.CyclesPerFrame = 100
		p.SetFaults(Faults{LateRXNE: true})
		spi.ModifyCR1(stm32l0.SPE, 0)
		spi.WriteDR(0x01)
		test.That(t, spi.SR().Has(stm32l0.RXNE), test.ShouldBeFalse)
		spi.ModifyCR1(0, stm32l0.SPE)
		test.That(t, p.Cycles(), test.ShouldHaveLength, 1)
		test.That(t, p.Status().Has(stm32l0.RXNE), test.ShouldBeTrue)
		test.That(t, p.Status().Has(stm32l0.BSY), test.ShouldBeFalse)
	})
}

func TestTimingRecorder(t *testing.T) {
	p := NewPeripheral(csPin, nil)
	delay := p.Timing()
	delay.DelayMicroseconds(1)
	delay.DelayMilliseconds(3)
	test.That(t, p.Events(), test.ShouldResemble, []string{"delay 1us", "delay 3ms"})
	p.ResetTrace()
	test.That(t, p.Events(), test.ShouldBeEmpty)
}

func TestUnmodeledAddressPanics(t *testing.T) {
	p := NewPeripheral(csPin, nil)
	test.That(t, func() { p.Load32(0x1000) }, test.ShouldPanic)
}

package mmio

import (
	"testing"

	"go.viam.com/test"
)

func newTestPhysical(regions ...Region) *Physical {
	p := &Physical{}
	for _, r := range regions {
		p.regions = append(p.regions, mappedRegion{Region: r, words: make([]uint32, r.Size/4)})
	}
	return p
}

func TestLoadStore(t *testing.T) {
	p := newTestPhysical(
		Region{Name: "rcc", Base: 0x40021000, Size: 0x400},
		Region{Name: "gpio", Base: 0x50000000, Size: 0x2000},
	)

	p.Store32(0x40021034, 1<<12)
	p.Store32(0x50000418, 0x10)
	test.That(t, p.Load32(0x40021034), test.ShouldEqual, uint32(1<<12))
	test.That(t, p.Load32(0x50000418), test.ShouldEqual, uint32(0x10))
	test.That(t, p.regions[0].words[0x34/4], test.ShouldEqual, uint32(1<<12))
	test.That(t, p.regions[1].words[0x418/4], test.ShouldEqual, uint32(0x10))

	test.That(t, p.Close(), test.ShouldBeNil)
	test.That(t, p.regions, test.ShouldBeNil)
}

func TestOutOfWindow(t *testing.T) {
	p := newTestPhysical(Region{Name: "spi1", Base: 0x40013000, Size: 0x400})

	test.That(t, func() { p.Load32(0x40013400) }, test.ShouldPanicWith,
		"mmio: address 0x40013400 is outside every mapped region")
	test.That(t, func() { p.Store32(0x40013002, 1) }, test.ShouldPanicWith,
		"mmio: unaligned register access at 0x40013002")
}

func TestMapPhysicalRejectsBadRegions(t *testing.T) {
	_, err := MapPhysical(Region{Name: "odd", Base: 0x40013000, Size: 3})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "region odd has invalid size 3")
}

// Package mmio gives typed register views access to 32-bit memory-mapped peripheral registers.
package mmio

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/host/v3/pmem"
)

// Window reads and writes 32-bit registers by absolute bus address.
type Window interface {
	Load32(addr uint32) uint32
	Store32(addr, value uint32)
}

// A Region is a contiguous block of peripheral registers.
type Region struct {
	Name string
	Base uint32
	Size int
}

func (r Region) contains(addr uint32) bool {
	return addr >= r.Base && uint64(addr) < uint64(r.Base)+uint64(r.Size)
}

type mappedRegion struct {
	Region
	view  *pmem.View
	words []uint32
}

// Physical is a Window backed by physical memory mapped through /dev/mem.
type Physical struct {
	regions []mappedRegion
}

var _ Window = (*Physical)(nil)

// MapPhysical maps every region into the process. It requires access to /dev/mem.
func MapPhysical(regions ...Region) (*Physical, error) {
	p := &Physical{}
	for _, r := range regions {
		if r.Size <= 0 || r.Size%4 != 0 {
			return nil, multierr.Combine(errors.Errorf("region %s has invalid size %d", r.Name, r.Size), p.Close())
		}
		view, err := pmem.Map(uint64(r.Base), r.Size)
		if err != nil {
			return nil, multierr.Combine(errors.Wrapf(err, "mapping %s at %#08x", r.Name, r.Base), p.Close())
		}
		p.regions = append(p.regions, mappedRegion{Region: r, view: view, words: view.Uint32()})
	}
	return p, nil
}

// Load32 reads the register at addr.
func (p *Physical) Load32(addr uint32) uint32 {
	words, idx := p.locate(addr)
	return atomic.LoadUint32(&words[idx])
}

// Store32 writes the register at addr.
func (p *Physical) Store32(addr, value uint32) {
	words, idx := p.locate(addr)
	atomic.StoreUint32(&words[idx], value)
}

// Accessing an unmapped or unaligned address is a programming error in a register view.
func (p *Physical) locate(addr uint32) ([]uint32, int) {
	if addr%4 != 0 {
		panic(fmt.Sprintf("mmio: unaligned register access at %#08x", addr))
	}
	for _, r := range p.regions {
		if r.contains(addr) {
			return r.words, int(addr-r.Base) / 4
		}
	}
	panic(fmt.Sprintf("mmio: address %#08x is outside every mapped region", addr))
}

// Close unmaps every region.
func (p *Physical) Close() error {
	var err error
	for _, r := range p.regions {
		if r.view != nil {
			err = multierr.Combine(err, errors.Wrapf(r.view.Close(), "unmapping %s", r.Name))
		}
	}
	p.regions = nil
	return err
}

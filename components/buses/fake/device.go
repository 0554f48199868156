package fake

import "sync"

const (
	registerCount = 128
	readBit       = 0x80
)

// RegisterDevice is a device exposing a flat file of 128 one-byte registers. The first frame
// after chip select is the address: bit 7 set selects a read, the low seven bits pick the
// starting register. Every following frame reads or writes one register and advances the
// address, wrapping at the end of the file.
type RegisterDevice struct {
	mu        sync.Mutex
	regs      [registerCount]byte
	addressed bool
	reading   bool
	next      byte
	writes    int
}

// NewRegisterDevice returns a device with the given registers preloaded. Keys are masked to
// seven bits.
func NewRegisterDevice(initial map[byte]byte) *RegisterDevice {
	d := &RegisterDevice{}
	for addr, v := range initial {
		d.regs[addr&^readBit] = v
	}
	return d
}

// Select implements Device.
func (d *RegisterDevice) Select() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addressed = false
}

// Deselect implements Device.
func (d *RegisterDevice) Deselect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addressed = false
}

// Exchange implements Device.
func (d *RegisterDevice) Exchange(mosi byte) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.addressed {
		d.addressed = true
		d.reading = mosi&readBit != 0
		d.next = mosi &^ readBit
		return 0xff
	}
	addr := d.next
	d.next = (d.next + 1) % registerCount
	if d.reading {
		return d.regs[addr]
	}
	d.regs[addr] = mosi
	d.writes++
	return 0xff
}

// Register returns the current value of a register.
func (d *RegisterDevice) Register(addr byte) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[addr&^readBit]
}

// Writes returns how many register writes the device has accepted.
func (d *RegisterDevice) Writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}

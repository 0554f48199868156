package spimaster

import (
	"context"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"go.viam.com/spimaster/components/buses"
)

var (
	_ spi.Port = (*Master)(nil)
	_ spi.Conn = (*spiConn)(nil)
)

// Connect implements spi.Port. The bus runs in mode 0 with 8-bit frames at a fixed speed, so
// the request is only checked against it: maxHz must be zero or at least Speed.
func (m *Master) Connect(maxHz physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	if err := m.checkRequest(maxHz, mode); err != nil {
		return nil, err
	}
	if bits != 8 {
		return nil, errors.Wrapf(buses.ErrPrecondition, "%d bits per word requested, only 8 is supported", bits)
	}
	return &spiConn{m: m}, nil
}

func (m *Master) checkRequest(maxHz physic.Frequency, mode spi.Mode) error {
	if m.closed.Load() {
		return buses.ErrClosed
	}
	if mode != spi.Mode0 {
		return errors.Wrapf(buses.ErrPrecondition, "SPI mode %s requested, only mode 0 is supported", mode)
	}
	if maxHz != 0 && m.Speed() > maxHz {
		return errors.Wrapf(buses.ErrPrecondition, "bus runs at %s, faster than the requested %s", m.Speed(), maxHz)
	}
	return nil
}

type spiConn struct {
	m *Master
}

func (c *spiConn) String() string {
	return c.m.String()
}

func (c *spiConn) Duplex() conn.Duplex {
	return conn.Full
}

// Tx runs one transaction. r may be nil to discard what is received. An empty w leaves the bus
// untouched.
func (c *spiConn) Tx(w, r []byte) error {
	if len(r) != 0 && len(r) != len(w) {
		return errors.Wrapf(buses.ErrPrecondition, "read buffer holds %d bytes, write buffer %d", len(r), len(w))
	}
	if len(r) == 0 {
		r = nil
	}
	return c.m.transact(context.Background(), w, r)
}

// TxPackets runs the packets in order within one bus acquisition. Chip select stays low from
// a packet with KeepCS set into the next one.
func (c *spiConn) TxPackets(packets []spi.Packet) error {
	for i, p := range packets {
		if p.BitsPerWord != 0 && p.BitsPerWord != 8 {
			return errors.Wrapf(buses.ErrPrecondition, "packet %d asks for %d bits per word", i, p.BitsPerWord)
		}
		if len(p.R) != 0 && len(p.R) != len(p.W) {
			return errors.Wrapf(buses.ErrPrecondition, "packet %d: read buffer holds %d bytes, write buffer %d",
				i, len(p.R), len(p.W))
		}
	}

	if err := c.m.acquire(); err != nil {
		return err
	}
	defer c.m.mu.Unlock()

	ctx := context.Background()
	for start := 0; start < len(packets); {
		end := start
		for end < len(packets)-1 && packets[end].KeepCS {
			end++
		}
		w, r, scatter := joinPackets(packets[start : end+1])
		if err := c.m.frame(ctx, w, r); err != nil {
			return errors.Wrapf(err, "packets %d-%d", start, end)
		}
		scatter()
		start = end + 1
	}
	return nil
}

// joinPackets returns the concatenated write buffer and a receiver scattering the received
// bytes back into each packet's read buffer.
func joinPackets(packets []spi.Packet) ([]byte, []byte, func()) {
	var w []byte
	for _, p := range packets {
		w = append(w, p.W...)
	}
	r := make([]byte, len(w))
	return w, r, func() {
		off := 0
		for _, p := range packets {
			if len(p.R) != 0 {
				copy(p.R, r[off:off+len(p.W)])
			}
			off += len(p.W)
		}
	}
}

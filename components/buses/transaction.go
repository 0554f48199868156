package buses

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// Direction is the direction of a register transaction.
type Direction int

// Transaction directions.
const (
	Write Direction = iota
	Read
)

func (d Direction) String() string {
	switch d {
	case Write:
		return "write"
	case Read:
		return "read"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// Transaction describes one register operation. For a write, Data is the payload; for a read,
// Data is the buffer to fill and its length is the number of bytes to read.
type Transaction struct {
	Direction Direction
	Register  byte
	Data      []byte
}

func (tx Transaction) String() string {
	return fmt.Sprintf("%s 0x%02x [%d bytes]", tx.Direction, tx.Register, len(tx.Data))
}

// Do performs the transaction on the bus.
func (tx Transaction) Do(ctx context.Context, bus RegisterBus) error {
	switch tx.Direction {
	case Write:
		return bus.WriteRegister(ctx, tx.Register, tx.Data)
	case Read:
		return bus.ReadRegister(ctx, tx.Register, tx.Data)
	}
	return errors.Wrapf(ErrPrecondition, "unknown transaction direction %v", tx.Direction)
}

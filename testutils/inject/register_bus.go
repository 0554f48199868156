package inject

import (
	"context"

	"go.viam.com/spimaster/components/buses"
)

// RegisterBus is an injected RegisterBus.
type RegisterBus struct {
	buses.RegisterBus
	WriteRegisterFunc func(ctx context.Context, register byte, payload []byte) error
	ReadRegisterFunc  func(ctx context.Context, register byte, p []byte) error
}

// WriteRegister calls the injected WriteRegister or the real version.
func (b *RegisterBus) WriteRegister(ctx context.Context, register byte, payload []byte) error {
	if b.WriteRegisterFunc == nil {
		return b.RegisterBus.WriteRegister(ctx, register, payload)
	}
	return b.WriteRegisterFunc(ctx, register, payload)
}

// ReadRegister calls the injected ReadRegister or the real version.
func (b *RegisterBus) ReadRegister(ctx context.Context, register byte, p []byte) error {
	if b.ReadRegisterFunc == nil {
		return b.RegisterBus.ReadRegister(ctx, register, p)
	}
	return b.ReadRegisterFunc(ctx, register, p)
}

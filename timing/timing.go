// Package timing provides the blocking delay service consumed by the bus drivers.
package timing

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Service blocks the caller for a calibrated amount of time.
type Service interface {
	DelayMicroseconds(n int)
	DelayMilliseconds(n int)
}

// New returns a Service that sleeps on the given clock. A nil clock means the wall clock.
func New(clk clock.Clock) Service {
	if clk == nil {
		clk = clock.New()
	}
	return &clockService{clk: clk}
}

type clockService struct {
	clk clock.Clock
}

// DelayMicroseconds blocks for n microseconds. Non-positive values return immediately.
func (s *clockService) DelayMicroseconds(n int) {
	s.delay(time.Duration(n) * time.Microsecond)
}

// DelayMilliseconds blocks for n milliseconds. Non-positive values return immediately.
func (s *clockService) DelayMilliseconds(n int) {
	s.delay(time.Duration(n) * time.Millisecond)
}

func (s *clockService) delay(d time.Duration) {
	if d <= 0 {
		return
	}
	s.clk.Sleep(d)
}

package timing

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"
)

func runAsync(do func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		do()
		close(done)
	}()
	return done
}

func TestDelayOnMockClock(t *testing.T) {
	mock := clock.NewMock()
	svc := New(mock)

	done := runAsync(func() { svc.DelayMilliseconds(5) })

	// Give the goroutine a chance to register its timer before advancing.
	time.Sleep(5 * time.Millisecond)

	// The sleeper must not return before the mock clock reaches the deadline.
	mock.Add(4 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("delay returned early")
	case <-time.After(10 * time.Millisecond):
	}

	mock.Add(time.Millisecond)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("delay never returned")
	}
}

func TestDelayMicroseconds(t *testing.T) {
	mock := clock.NewMock()
	svc := New(mock)

	done := runAsync(func() { svc.DelayMicroseconds(1) })
	// Give the goroutine a chance to register its timer before advancing.
	time.Sleep(5 * time.Millisecond)
	mock.Add(time.Microsecond)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("delay never returned")
	}
}

func TestNonPositiveDelay(t *testing.T) {
	svc := New(clock.NewMock())
	// Neither call may block on a clock that never advances.
	svc.DelayMicroseconds(0)
	svc.DelayMilliseconds(-3)
}

func TestWallClockDefault(t *testing.T) {
	svc := New(nil)
	start := time.Now()
	svc.DelayMicroseconds(50)
	test.That(t, time.Since(start), test.ShouldBeGreaterThanOrEqualTo, 50*time.Microsecond)
}

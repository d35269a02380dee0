package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeTimer struct {
	requested time.Duration
	fire      chan time.Time
	stopped   bool
}

func useFakeTimer(t *testing.T, fireNow bool) *fakeTimer {
	t.Helper()

	ft := &fakeTimer{fire: make(chan time.Time, 1)}
	if fireNow {
		ft.fire <- time.Now()
	}

	original := newTimer
	newTimer = func(d time.Duration) (<-chan time.Time, func() bool) {
		ft.requested = d
		return ft.fire, func() bool {
			ft.stopped = true
			return true
		}
	}
	t.Cleanup(func() { newTimer = original })

	return ft
}

func TestWaitForZeroDuration(t *testing.T) {
	ft := useFakeTimer(t, false)

	if err := WaitFor(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ft.requested != 0 {
		t.Fatalf("expected no timer for zero duration")
	}
}

func TestWaitForCancelledStopsTimer(t *testing.T) {
	ft := useFakeTimer(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitFor(ctx, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !ft.stopped {
		t.Fatalf("expected timer to be stopped on cancel")
	}
}

func TestWaitForCompletes(t *testing.T) {
	ft := useFakeTimer(t, true)

	if err := WaitFor(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ft.requested != 2*time.Second {
		t.Fatalf("expected a 2s timer, got %s", ft.requested)
	}
}

func TestWaitForRealTimer(t *testing.T) {
	if err := WaitFor(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

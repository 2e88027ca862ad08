package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

var errBoom = errors.New("boom")

func newTestBreaker(clock *fakeClock, transitions *[]State) *CircuitBreaker {
	return NewCircuitBreaker("test", Config{
		MaxRequests:      1,
		Timeout:          time.Minute,
		FailureThreshold: 2,
		SuccessThreshold: 1,
		OnStateChange: func(_ string, _ State, to State) {
			*transitions = append(*transitions, to)
		},
		now: clock.now,
	})
}

func fail() error    { return errBoom }
func succeed() error { return nil }

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	var transitions []State
	cb := newTestBreaker(clock, &transitions)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := cb.Execute(ctx, fail); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: err = %v", i, err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Fatal("function ran while the breaker was open")
	}
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	var transitions []State
	cb := newTestBreaker(clock, &transitions)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	clock.advance(2 * time.Minute)

	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %s, want half-open", cb.State())
	}
	if err := cb.Execute(ctx, succeed); err != nil {
		t.Fatalf("half-open trial call failed: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %s, want closed", cb.State())
	}

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", transitions, want)
		}
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	var transitions []State
	cb := newTestBreaker(clock, &transitions)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	clock.advance(2 * time.Minute)

	_ = cb.Execute(ctx, fail)
	if cb.State() != StateOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}
}

func TestBreaker_CallerCancellationIsNotAFailure(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	var transitions []State
	cb := newTestBreaker(clock, &transitions)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, func() error { return ctx.Err() })
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %s, want closed", cb.State())
	}
	if got := cb.Counts().TotalFailures; got != 0 {
		t.Fatalf("failures = %d, want 0", got)
	}
}

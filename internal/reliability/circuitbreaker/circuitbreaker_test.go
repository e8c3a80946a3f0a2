package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(s Settings) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := New(s)
	b.now = clock.now
	return b, clock
}

func TestExecuteTripsAndRecovers(t *testing.T) {
	var transitions []string
	b, clock := newTestBreaker(Settings{
		Name:             "kv",
		FailureThreshold: 2,
		SuccessThreshold: 1,
		OpenTimeout:      time.Second,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		if err := b.Execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open after threshold, got %s", b.State())
	}

	called := false
	if err := b.Execute(func() error { called = true; return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Fatalf("fn must not run while open")
	}

	clock.advance(time.Second)
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected half-open trial to pass, got %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after success, got %s", b.State())
	}

	want := []string{"kv:closed->open", "kv:open->half_open", "kv:half_open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", transitions, want)
		}
	}
}

func TestFailedTrialReopens(t *testing.T) {
	b, clock := newTestBreaker(Settings{FailureThreshold: 1, OpenTimeout: time.Second})
	b.Execute(func() error { return errors.New("down") })
	clock.advance(time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}
	b.Execute(func() error { return errors.New("still down") })
	if b.State() != StateOpen {
		t.Fatalf("expected open after failed trial, got %s", b.State())
	}
}

func TestIgnoredErrorsDoNotTrip(t *testing.T) {
	miss := errors.New("miss")
	b, _ := newTestBreaker(Settings{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, miss) },
	})
	for i := 0; i < 3; i++ {
		if err := b.Execute(func() error { return miss }); !errors.Is(err, miss) {
			t.Fatalf("expected miss to pass through, got %v", err)
		}
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %s", b.State())
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(Settings{FailureThreshold: 2})
	boom := errors.New("boom")
	b.Execute(func() error { return boom })
	b.Execute(func() error { return nil })
	b.Execute(func() error { return boom })
	if b.State() != StateClosed {
		t.Fatalf("non-consecutive failures must not trip, got %s", b.State())
	}
}

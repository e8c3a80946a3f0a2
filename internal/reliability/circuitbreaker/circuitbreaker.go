package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State of a breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// ErrOpen is returned by Execute while the breaker rejects calls
var ErrOpen = errors.New("circuit breaker open")

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// Settings configures a Breaker. Zero values get defaults.
type Settings struct {
	Name string
	// consecutive failures that open a closed breaker
	FailureThreshold int
	// consecutive successes that close a half-open breaker
	SuccessThreshold int
	// how long an open breaker waits before letting a trial request through
	OpenTimeout time.Duration
	// IsFailure decides which errors count against the breaker; nil counts all
	IsFailure     func(error) bool
	OnStateChange func(name string, from, to State)
}

// Breaker fails fast after a store has failed repeatedly
type Breaker struct {
	settings Settings
	now      func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

// New creates a closed breaker
func New(s Settings) *Breaker {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.SuccessThreshold <= 0 {
		s.SuccessThreshold = 1
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 10 * time.Second
	}
	if s.IsFailure == nil {
		s.IsFailure = func(err error) bool { return err != nil }
	}
	return &Breaker{settings: s, now: time.Now}
}

// Name returns the configured name
func (b *Breaker) Name() string {
	return b.settings.Name
}

// State returns the current state, moving an expired open breaker to half-open
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked()
	return b.state
}

// Execute runs fn when the breaker allows it and records the outcome.
// Errors that IsFailure rejects are returned without affecting the breaker.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allow() {
		return ErrOpen
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked()
	return b.state != StateOpen
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil && b.settings.IsFailure(err) {
		b.successes = 0
		switch b.state {
		case StateClosed:
			b.failures++
			if b.failures >= b.settings.FailureThreshold {
				b.setLocked(StateOpen)
			}
		case StateHalfOpen:
			b.setLocked(StateOpen)
		}
		return
	}

	b.failures = 0
	if b.state == StateHalfOpen {
		b.successes++
		if b.successes >= b.settings.SuccessThreshold {
			b.setLocked(StateClosed)
		}
	}
}

func (b *Breaker) expireLocked() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.settings.OpenTimeout {
		b.setLocked(StateHalfOpen)
	}
}

func (b *Breaker) setLocked(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.failures = 0
	b.successes = 0
	if to == StateOpen {
		b.openedAt = b.now()
	}
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.settings.Name, from, to)
	}
}

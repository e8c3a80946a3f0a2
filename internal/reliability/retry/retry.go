package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Policy describes how often and how patiently an operation is retried
type Policy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
	// Jitter is the fraction of each delay that is randomized, 0 to 1
	Jitter float64
}

// StartupPolicy is used while the server waits for its stores to come up
func StartupPolicy() Policy {
	return Policy{Attempts: 6, Base: 500 * time.Millisecond, Max: 10 * time.Second, Jitter: 0.2}
}

type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying; Do returns the wrapped error at once
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, the attempts run out
// or ctx is done
func Do[T any](ctx context.Context, p Policy, log *slog.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if log == nil {
		log = slog.Default()
	}
	if p.Attempts <= 0 {
		p.Attempts = 1
	}

	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		var result T
		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
		var perm permanent
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if attempt == p.Attempts {
			break
		}

		wait := p.delay(attempt)
		log.Warn("retrying",
			slog.String("operation", op),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", p.Attempts),
			slog.Duration("backoff", wait),
			slog.String("error", err.Error()),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, fmt.Errorf("%s: gave up after %d attempts: %w", op, p.Attempts, err)
}

// delay doubles Base per attempt (1-based), caps at Max and applies jitter
func (p Policy) delay(attempt int) time.Duration {
	d := p.Base
	for i := 1; i < attempt && d < p.Max; i++ {
		d *= 2
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	if p.Jitter > 0 && d > 0 {
		spread := float64(d) * p.Jitter
		d = time.Duration(float64(d) - spread + rand.Float64()*2*spread)
	}
	return d
}

package outbox

import (
	"time"

	"github.com/d60-Lab/clearstack/internal/model"
)

const (
	// DefaultMaxRetries is the attempt budget; an event fails once try_count exceeds it.
	DefaultMaxRetries = 5
	// MaxBackoff caps the delay between two attempts.
	MaxBackoff = 60 * time.Minute
)

// Backoff returns min(2^n, 60) minutes for the n-th failed attempt.
func Backoff(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	// 2^6 minutes already exceeds the cap
	if n >= 6 {
		return MaxBackoff
	}
	d := time.Duration(1<<n) * time.Minute
	if d > MaxBackoff {
		return MaxBackoff
	}
	return d
}

// Policy decides the next state of a pending event after a failed attempt.
type Policy struct {
	MaxRetries int
}

func DefaultPolicy() Policy { return Policy{MaxRetries: DefaultMaxRetries} }

// Outcome is the state an event moves to after an attempt.
type Outcome struct {
	Status        model.EventStatus
	TryCount      int
	NextAttemptAt time.Time
}

// OnSuccess records a delivered attempt.
func (p Policy) OnSuccess(tryCount int, now time.Time) Outcome {
	return Outcome{Status: model.EventStatusSent, TryCount: tryCount + 1, NextAttemptAt: now}
}

// OnFailure increments the attempt count and either schedules a retry or gives up.
func (p Policy) OnFailure(tryCount int, now time.Time) Outcome {
	max := p.MaxRetries
	if max <= 0 {
		max = DefaultMaxRetries
	}
	next := tryCount + 1
	if next > max {
		return Outcome{Status: model.EventStatusFailed, TryCount: next, NextAttemptAt: now}
	}
	return Outcome{Status: model.EventStatusPending, TryCount: next, NextAttemptAt: now.Add(Backoff(next))}
}

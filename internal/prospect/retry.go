package prospect

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/d60-Lab/clearstack/internal/model"
)

// RetryOptions bounds PostWithRetry.
type RetryOptions struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxTries        uint
}

func DefaultRetryOptions() RetryOptions {
	return RetryOptions{InitialInterval: 500 * time.Millisecond, MaxInterval: 5 * time.Second, MaxTries: 3}
}

// PostWithRetry retries a single synchronous post with capped exponential
// backoff. Only one-shot paths (test events, health checks) use it; queued
// events are retried by the dispatcher.
func PostWithRetry(ctx context.Context, sink Sink, eventType model.EventType, payload []byte, opts RetryOptions) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.InitialInterval
	b.MaxInterval = opts.MaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := sink.Post(ctx, eventType, payload)
		if errors.Is(err, ErrMissingCredential) || errors.Is(err, ErrUnsupportedEventType) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(opts.MaxTries),
	)
	return err
}

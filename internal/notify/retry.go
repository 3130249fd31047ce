package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"storefront/internal/logging"
	"storefront/internal/metrics"
)

var errNoRecipient = errors.New("message has no recipient")

// ErrInterrupted is returned by deliver when its context ends before the
// retry budget is spent. Such a message is not a dead letter.
var ErrInterrupted = errors.New("delivery interrupted")

// RetryPolicy bounds how hard a single message is pushed through a Sink.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy(maxAttempts int) RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return RetryPolicy{
		MaxAttempts:     maxAttempts,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// deliver sends msg through sink, retrying per policy. It returns the last error
// once the budget is spent; the caller decides what a dead letter means.
func deliver(ctx context.Context, sink Sink, msg Message, policy RetryPolicy) error {
	attempts := 0
	op := func() error {
		if msg.To == "" {
			return backoff.Permanent(errNoRecipient)
		}
		attempts++
		return sink.Send(ctx, msg)
	}
	notifyRetry := func(err error, wait time.Duration) {
		metrics.RecordNotification("retried")
		log.Printf("[NOTIFY] [WARN] send %s failed (attempt %d), retrying in %s: %v", msg.ID, attempts, wait, err)
	}

	err := backoff.RetryNotify(op, policy.backOff(ctx), notifyRetry)
	if err == nil {
		metrics.RecordNotification("sent")
		return nil
	}

	if ctx.Err() != nil && !errors.Is(err, errNoRecipient) {
		metrics.RecordNotification("interrupted")
		log.Printf("[NOTIFY] [INFO] send %s interrupted after %d attempt(s): %v", msg.ID, attempts, err)
		return fmt.Errorf("%w: %v", ErrInterrupted, err)
	}

	metrics.RecordNotification("dead_letter")
	logging.Warn(logging.Fields{
		Event:     "notification.dead_letter",
		MessageID: msg.ID,
		Attempts:  attempts,
		Message:   err.Error(),
	})
	return err
}

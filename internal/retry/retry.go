// Package retry provides the bounded, fixed-backoff retry loop shared
// by session creation, QR capture, refresh, and notification delivery.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Do invokes op up to attempts times, sleeping backoff between
// attempts. It returns nil on the first success, the context error if
// the context is cancelled while waiting, or the last operation error
// once the attempt budget is exhausted.
func Do(ctx context.Context, attempts int, backoff time.Duration, op func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, err)
}

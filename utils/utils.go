package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/rafnixschaf/iota-sub000/log"
)

// Retry runs f up to attempts times, waiting backoff*n after the n-th
// failure. It gives up early when ctx is done.
func Retry(ctx context.Context, attempts int, backoff time.Duration, f func() error) error {
	var err error
	for i := 1; ; i++ {
		if err = f(); err == nil {
			return nil
		}
		if i >= attempts {
			break
		}
		log.Debugf("attempt %d/%d failed: %v", i, attempts, err)

		select {
		case <-time.After(backoff * time.Duration(i)):
		case <-ctx.Done():
			return fmt.Errorf("retry canceled after %d attempts: %w", i, err)
		}
	}
	return fmt.Errorf("after %d attempts, last error: %w", attempts, err)
}

// Schedule calls f immediately and then every interval until ctx is done.
func Schedule(ctx context.Context, interval time.Duration, f func()) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			f()
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
}

package db

import (
	"context"
	"fmt"
	"time"
)

// ReadyPollInterval is the delay between readiness pings.
const ReadyPollInterval = 100 * time.Millisecond

// PollReady pings p right away, then every interval until it answers or timeout
// expires. The timeout error carries the last ping failure.
func PollReady(ctx context.Context, p Pinger, timeout, interval time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		lastErr := p.Ping(ctx)
		if lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("store not ready: %w (last error: %v)", ctx.Err(), lastErr)
		case <-ticker.C:
		}
	}
}

package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestPollReady_RecoversAfterFailures(t *testing.T) {
	calls := 0
	p := pingFunc(func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("LOADING")
		}
		return nil
	})

	if err := PollReady(context.Background(), p, time.Second, time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 pings, got %d", calls)
	}
}

func TestPollReady_TimeoutCarriesLastError(t *testing.T) {
	p := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	err := PollReady(context.Background(), p, 30*time.Millisecond, 5*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("last ping error missing from %q", err)
	}
}

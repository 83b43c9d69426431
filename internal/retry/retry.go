// Package retry wraps remote operations with a stateless-between-calls
// retry shell: retries happen exclusively on the rate-limit
// classification, with escalating 1s/2s/4s backoff, and a shared
// "next-earliest-start" instant keeps concurrent workers from storming
// the API while one of them is backing off. Every other classified error
// propagates immediately.
package retry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/PatD42/confluence-sync/internal/remote"
)

// Shell wraps RemoteAPI calls with the retry policy above. The zero value
// is ready to use; create one Shell per Orchestrator run and share it
// across all workers so the backoff gate is actually shared.
type Shell struct {
	mu           sync.Mutex
	nextEarliest time.Time
	sleep        func(context.Context, time.Duration) error // overridable for tests
}

// NewShell returns a ready-to-use Shell.
func NewShell() *Shell {
	return &Shell{sleep: sleepCtx}
}

func (s *Shell) sleepFn() func(context.Context, time.Duration) error {
	if s.sleep != nil {
		return s.sleep
	}
	return sleepCtx
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var backoffSchedule = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// Call invokes op, retrying up to three times exclusively on a RateLimit
// classification. A fourth RateLimit becomes NetworkError{rate_limit_exhausted}.
// Any other classified error returns immediately (fail-fast, no retry).
func (s *Shell) Call(ctx context.Context, op func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		if err := s.awaitGate(ctx); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		var rl *remote.RateLimit
		if !errors.As(err, &rl) {
			return err
		}

		if attempt >= len(backoffSchedule) {
			return &remote.NetworkError{Cause: "rate_limit_exhausted"}
		}

		wait := backoffSchedule[attempt]
		if hint := time.Duration(rl.RetryHintSeconds) * time.Second; hint > wait {
			wait = hint
		}

		s.raiseGate(wait)
		if sleepErr := s.sleepFn()(ctx, wait); sleepErr != nil {
			return sleepErr
		}
	}
}

// awaitGate blocks until the shared next-earliest-start instant has
// passed, so a worker that starts a new call right after another worker
// observed a rate limit doesn't immediately collide with it again.
func (s *Shell) awaitGate(ctx context.Context) error {
	s.mu.Lock()
	wait := time.Until(s.nextEarliest)
	s.mu.Unlock()
	if wait <= 0 {
		return nil
	}
	return s.sleepFn()(ctx, wait)
}

// raiseGate advances the shared next-earliest-start instant so every other
// worker currently about to start a call also waits out this backoff.
func (s *Shell) raiseGate(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	candidate := time.Now().Add(d)
	if candidate.After(s.nextEarliest) {
		s.nextEarliest = candidate
	}
}

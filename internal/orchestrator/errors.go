package orchestrator

import (
	"context"
	"errors"

	"github.com/PatD42/confluence-sync/internal/remote"
)

// Tier is the fatal/recoverable classification a phase dispatch loop uses
// to decide whether to abort the run or record-and-continue. Retryable
// rate-limit errors never reach this tier: the retry shell absorbs them
// before a classified error propagates this far.
type Tier int

const (
	Recoverable Tier = iota
	Fatal
)

// classifyOutcome maps a classified remote/filesystem error to a Tier.
func classifyOutcome(err error) Tier {
	if err == nil {
		return Recoverable
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Fatal
	}

	var authErr *remote.AuthFailure
	if errors.As(err, &authErr) {
		return Fatal
	}
	var netErr *remote.NetworkError
	if errors.As(err, &netErr) {
		return Fatal
	}
	var cfgErr *remote.ConfigError
	if errors.As(err, &cfgErr) {
		return Fatal
	}

	// Per-page failures: not found, conversion, move conflict, merge
	// unresolved, version conflict (already re-fetched once by the
	// caller) are all recoverable — the run continues with other pages.
	return Recoverable
}

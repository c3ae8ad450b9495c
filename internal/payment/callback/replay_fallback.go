package callback

import (
	"context"
	"log/slog"

	"racereg/pkg/platform/circuit"
)

// FallbackGuard routes claims to a process-local guard while the primary
// guard keeps failing. The primary is still tried on every call so the
// circuit can close once it recovers; while open, its answers are ignored.
type FallbackGuard struct {
	primary  ReplayGuard
	fallback ReplayGuard
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewFallbackGuard(primary, fallback ReplayGuard, breaker *circuit.Breaker, logger *slog.Logger) *FallbackGuard {
	if breaker == nil {
		breaker = circuit.New("replay-guard")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackGuard{
		primary:  primary,
		fallback: fallback,
		breaker:  breaker,
		logger:   logger,
	}
}

func (g *FallbackGuard) Claim(ctx context.Context, key string) (bool, error) {
	claimed, err := g.primary.Claim(ctx, key)
	if err != nil {
		useFallback, change := g.breaker.RecordFailure()
		if change.Opened {
			g.logger.WarnContext(ctx, "replay guard degraded to process-local claims",
				"breaker", g.breaker.Name(),
				"error", err,
			)
		}
		if useFallback {
			return g.fallback.Claim(ctx, key)
		}
		return false, err
	}

	usePrimary, change := g.breaker.RecordSuccess()
	if change.Closed {
		g.logger.InfoContext(ctx, "replay guard recovered", "breaker", g.breaker.Name())
	}
	if !usePrimary {
		return g.fallback.Claim(ctx, key)
	}
	return claimed, nil
}

// Release drops the claim from both guards. Only the primary's error is
// reported.
func (g *FallbackGuard) Release(ctx context.Context, key string) error {
	_ = g.fallback.Release(ctx, key)
	return g.primary.Release(ctx, key)
}

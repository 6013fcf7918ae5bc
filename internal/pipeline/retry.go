package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/billfold-ai/invoice-engine/internal/config"
	"github.com/billfold-ai/invoice-engine/internal/domain"
	"github.com/billfold-ai/invoice-engine/internal/observability"
)

// stage binds a named unit of pipeline work to its retry budget.
type stage struct {
	name   string
	policy config.StagePolicy
}

// runStage executes fn under the stage's retry policy: each attempt gets its
// own timeout, transient failures back off exponentially, and deterministic
// failures stop retrying immediately.
func runStage(ctx context.Context, s stage, logger *observability.Logger, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= s.policy.Attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.policy.Timeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if !domain.Retryable(err) {
			logger.Debug().
				Str("stage", s.name).
				Str("kind", string(domain.KindOf(err))).
				Msg("Stage failed with non-retryable error")
			return err
		}

		if attempt == s.policy.Attempts {
			break
		}

		backoff := stageBackoff(s.policy, attempt)
		logger.Warn().
			Str("stage", s.name).
			Int("attempt", attempt).
			Int("max_attempts", s.policy.Attempts).
			Dur("backoff", backoff).
			Err(err).
			Msg("Stage attempt failed, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s stage aborted: %w", s.name, ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%s stage failed after %d attempts: %w", s.name, s.policy.Attempts, lastErr)
}

// stageBackoff returns the delay before the next attempt, doubling from the
// initial backoff and capped at the policy maximum.
func stageBackoff(p config.StagePolicy, attempt int) time.Duration {
	backoff := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if backoff > p.MaxBackoff {
		return p.MaxBackoff
	}
	return backoff
}

package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billfold-ai/invoice-engine/internal/config"
	"github.com/billfold-ai/invoice-engine/internal/domain"
	"github.com/billfold-ai/invoice-engine/internal/observability"
)

func TestStageBackoff(t *testing.T) {
	policy := config.StagePolicy{
		InitialBackoff: 30 * time.Second,
		MaxBackoff:     120 * time.Second,
	}

	assert.Equal(t, 30*time.Second, stageBackoff(policy, 1))
	assert.Equal(t, 60*time.Second, stageBackoff(policy, 2))
	assert.Equal(t, 120*time.Second, stageBackoff(policy, 3))
	assert.Equal(t, 120*time.Second, stageBackoff(policy, 4))
}

func TestRunStageAttemptTimeout(t *testing.T) {
	s := stage{
		name: "extract",
		policy: config.StagePolicy{
			Attempts:       2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
			Timeout:        10 * time.Millisecond,
		},
	}

	attempts := 0
	err := runStage(context.Background(), s, observability.Nop(), func(ctx context.Context) error {
		attempts++
		<-ctx.Done()
		return ctx.Err()
	})

	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestRunStageStopsOnDeterministicError(t *testing.T) {
	s := stage{
		name: "extract",
		policy: config.StagePolicy{
			Attempts:       3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
			Timeout:        time.Second,
		},
	}

	attempts := 0
	err := runStage(context.Background(), s, observability.Nop(), func(ctx context.Context) error {
		attempts++
		return domain.DecodeError("response does not match extraction schema", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, domain.KindDecode, domain.KindOf(err))
}

func TestRunStageCancelledParentContext(t *testing.T) {
	s := stage{
		name: "render",
		policy: config.StagePolicy{
			Attempts:       5,
			InitialBackoff: time.Hour,
			MaxBackoff:     time.Hour,
			Timeout:        time.Second,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runStage(ctx, s, observability.Nop(), func(ctx context.Context) error {
		return domain.RenderingError("transient", nil)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

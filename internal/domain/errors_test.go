package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := ValidationError("bad field", nil)

	assert.Equal(t, KindValidation, KindOf(base))
	assert.Equal(t, KindValidation, KindOf(fmt.Errorf("stage failed: %w", base)))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"validation is deterministic", ValidationError("x", nil), false},
		{"reconciliation is deterministic", ReconciliationError("x", nil), false},
		{"decode is deterministic", DecodeError("x", nil), false},
		{"duplicate run is deterministic", DuplicateRunError("x"), false},
		{"manifest is deterministic", ManifestError("x", nil), false},
		{"missing artifact is deterministic", MissingArtifactError("x"), false},
		{"extraction is transient", ExtractionError("x", nil), true},
		{"rendering is transient", RenderingError("x", nil), true},
		{"persistence is transient", PersistenceError("x", nil), true},
		{"unclassified is transient", errors.New("timeout"), true},
		{"wrapped deterministic stays deterministic", fmt.Errorf("wrap: %w", DecodeError("x", nil)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestStatusMachine(t *testing.T) {
	assert.True(t, StatusPending.CanTransition(StatusProcessing))
	assert.True(t, StatusProcessing.CanTransition(StatusCompleted))
	assert.True(t, StatusProcessing.CanTransition(StatusFailed))

	assert.False(t, StatusPending.CanTransition(StatusCompleted))
	assert.False(t, StatusCompleted.CanTransition(StatusProcessing))
	assert.False(t, StatusFailed.CanTransition(StatusPending))

	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := PersistenceError("write failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "persistence")
	assert.Contains(t, err.Error(), "disk full")
}

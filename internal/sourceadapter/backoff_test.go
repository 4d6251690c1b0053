package sourceadapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoindex/internal/model"
)

func TestWithBackoffRetriesThenSucceeds(t *testing.T) {
	calls := 0
	result, err := withBackoff(context.Background(), func() (string, error) {
		calls++
		if calls < 3 {
			return "", RateLimited{Wait: time.Millisecond}
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestWithBackoffExhaustsRetries(t *testing.T) {
	calls := 0
	_, err := withBackoff(context.Background(), func() (string, error) {
		calls++
		return "", RateLimited{Wait: time.Millisecond}
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrRateLimited))
	assert.Equal(t, backoffRetries, calls)
}

func TestWithBackoffPassesThroughNonRateLimitErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := withBackoff(context.Background(), func() (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
}

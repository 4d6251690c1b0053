package state

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetMissingReturnsZeroState(t *testing.T) {
	s := openTestStore(t)
	st, err := s.Get(context.Background(), "telegram_main")
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.LastTimestamp)
	assert.Empty(t, st.Metadata)
}

func TestSetThenGetRoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "telegram_main", 1000, map[string]any{"runs": float64(1)}))

	st, err := s.Get(ctx, "telegram_main")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), st.LastTimestamp)
	assert.Equal(t, float64(1), st.Metadata["runs"])
}

func TestUpdateMetadataMergesAndLeavesTimestamp(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "whatsapp_main", 5000, map[string]any{"runs": float64(1)}))

	require.NoError(t, s.UpdateMetadata(ctx, "whatsapp_main", map[string]any{"status": "ok"}))

	st, err := s.Get(ctx, "whatsapp_main")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), st.LastTimestamp)
	assert.Equal(t, float64(1), st.Metadata["runs"])
	assert.Equal(t, "ok", st.Metadata["status"])
}

func TestListIngestorsAndDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "a", 1, nil))
	require.NoError(t, s.Set(ctx, "b", 2, nil))

	ids, err := s.ListIngestors(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)

	require.NoError(t, s.Delete(ctx, "a"))
	ids, err = s.ListIngestors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}

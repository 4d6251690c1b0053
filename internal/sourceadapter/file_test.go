package sourceadapter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileAdapterPendingSkipsProcessed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(`{"source":"telegram","messages":[]}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(`{"source":"telegram","messages":[]}`), 0o600))

	f := FileAdapter{Dir: dir}
	require.NoError(t, f.MarkProcessed("a.json"))

	pending, err := f.Pending(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.json"}, pending)
}

func TestFileAdapterPendingRespectsLimit(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.json", "b.json", "c.json"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(`{}`), 0o600))
	}
	f := FileAdapter{Dir: dir}
	pending, err := f.Pending(2)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestFileAdapterReadParsesRecord(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(`{"source":"telegram","messages":[{"ConversationID":"c1","MessageID":"m1"}]}`), 0o600))

	f := FileAdapter{Dir: dir}
	rec, err := f.Read("a.json")
	require.NoError(t, err)
	assert.Equal(t, "telegram", rec.Source)
	require.Len(t, rec.Messages, 1)
	assert.Equal(t, "c1", rec.Messages[0].ConversationID)
}

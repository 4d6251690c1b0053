package vectorstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoindex/internal/model"
)

func testDocs() []model.Document {
	return []model.Document{
		{ID: "d1", Text: "the quick brown fox jumps over the lazy dog"},
		{ID: "d2", Text: "the dog barks at the moon"},
		{ID: "d3", Text: "completely unrelated text about spreadsheets"},
	}
}

func TestBM25SearchRanksByScoreThenInsertionOrder(t *testing.T) {
	idx, err := newBM25Index("default", t.TempDir(), 1.5, 0.75, "")
	require.NoError(t, err)
	require.NoError(t, idx.build(testDocs()))

	results := idx.search("dog", 10, nil)
	require.Len(t, results, 2)
	assert.Equal(t, "d2", results[0].ID) // shorter doc, higher term density
	assert.Equal(t, "d1", results[1].ID)
}

func TestBM25SearchIgnoresDocsWithNoQueryTokens(t *testing.T) {
	idx, err := newBM25Index("default", t.TempDir(), 1.5, 0.75, "")
	require.NoError(t, err)
	require.NoError(t, idx.build(testDocs()))

	results := idx.search("spreadsheets", 10, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "d3", results[0].ID)
}

func TestBM25BusyDuringBuild(t *testing.T) {
	idx, err := newBM25Index("default", t.TempDir(), 1.5, 0.75, "")
	require.NoError(t, err)

	prev, ok := idx.tryEnter(bm25Building)
	require.True(t, ok)
	assert.Equal(t, bm25Idle, prev)

	_, ok = idx.tryEnter(bm25Updating)
	assert.False(t, ok, "a second transition while BUILDING must be a no-op")

	idx.leave(bm25Idle)
	_, ok = idx.tryEnter(bm25Updating)
	assert.True(t, ok)
}

func TestBM25SaveRestoresPriorState(t *testing.T) {
	idx, err := newBM25Index("default", t.TempDir(), 1.5, 0.75, "")
	require.NoError(t, err)

	_, ok := idx.tryEnter(bm25Building)
	require.True(t, ok)

	require.NoError(t, idx.save())
	assert.Equal(t, bm25Building, idx.currentState(), "save must restore the pre-save state")

	idx.leave(bm25Idle)
}

func TestBM25SaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	idx, err := newBM25Index("default", dir, 1.5, 0.75, "")
	require.NoError(t, err)
	require.NoError(t, idx.build(testDocs()))
	require.NoError(t, idx.save())

	loaded, err := newBM25Index("default", dir, 1.5, 0.75, "")
	require.NoError(t, err)
	require.NoError(t, loaded.load())

	assert.Equal(t, idx.totalDocs, loaded.totalDocs)
	assert.Equal(t, idx.docLengths, loaded.docLengths)
}

func TestBM25LoadPreservesInsertionOrderForTieBreaking(t *testing.T) {
	dir := t.TempDir()
	idx, err := newBM25Index("default", dir, 1.5, 0.75, "")
	require.NoError(t, err)
	// Insert in reverse-alphabetical id order so a sorted-ids fallback
	// would disagree with true insertion order.
	require.NoError(t, idx.build([]model.Document{
		{ID: "z", Text: "shared term"},
		{ID: "a", Text: "shared term"},
	}))
	require.NoError(t, idx.save())

	loaded, err := newBM25Index("default", dir, 1.5, 0.75, "")
	require.NoError(t, err)
	require.NoError(t, loaded.load())
	loaded.rehydrate([]model.Document{
		{ID: "z", Text: "shared term"},
		{ID: "a", Text: "shared term"},
	})

	results := loaded.search("shared term", 10, nil)
	require.Len(t, results, 2)
	assert.Equal(t, "z", results[0].ID, "equal-score tie-break must follow insertion order, not alphabetical")
	assert.Equal(t, "a", results[1].ID)
}

func TestBM25RehydrateRepopulatesTextAndMetadata(t *testing.T) {
	dir := t.TempDir()
	idx, err := newBM25Index("default", dir, 1.5, 0.75, "")
	require.NoError(t, err)
	require.NoError(t, idx.build([]model.Document{{ID: "a", Text: "find this document", Metadata: map[string]string{"k": "v"}}}))
	require.NoError(t, idx.save())

	loaded, err := newBM25Index("default", dir, 1.5, 0.75, "")
	require.NoError(t, err)
	require.NoError(t, loaded.load())

	// Before rehydration, the snapshot schema omits text/metadata.
	results := loaded.search("find", 10, nil)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Text)

	loaded.rehydrate([]model.Document{{ID: "a", Text: "find this document", Metadata: map[string]string{"k": "v"}}})

	results = loaded.search("find", 10, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "find this document", results[0].Text)
	assert.Equal(t, "v", results[0].Metadata["k"])
}

func TestBM25LoadFailsOnCollectionMismatch(t *testing.T) {
	dir := t.TempDir()
	idx, err := newBM25Index("collA", dir, 1.5, 0.75, "")
	require.NoError(t, err)
	require.NoError(t, idx.build(testDocs()))
	require.NoError(t, idx.save())

	other, err := newBM25Index("collB", dir, 1.5, 0.75, "")
	require.NoError(t, err)
	require.Error(t, other.load())
}

func TestBM25UpdateUpsertsByID(t *testing.T) {
	idx, err := newBM25Index("default", t.TempDir(), 1.5, 0.75, "")
	require.NoError(t, err)
	require.NoError(t, idx.build(testDocs()))

	require.NoError(t, idx.update([]model.Document{{ID: "d1", Text: "totally different content now"}}))
	assert.Equal(t, 3, idx.totalDocs)

	results := idx.search("dog", 10, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "d2", results[0].ID)
}

func TestBM25SnapshotPathFormat(t *testing.T) {
	idx, err := newBM25Index("telegram_messages", "/tmp/vs", 1.5, 0.75, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/vs", "bm25_index_telegram_messages.json"), idx.snapshotPath())
}

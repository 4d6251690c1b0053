package retrieve

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoindex/internal/embedder"
	"convoindex/internal/model"
	"convoindex/internal/vectorstore"
)

func newTestRetriever(t *testing.T) *Retriever {
	t.Helper()
	vs, err := vectorstore.Open(vectorstore.Options{
		PersistDirectory: t.TempDir(),
		CollectionName:   "telegram_messages",
		EnableBM25:       true,
		BM25K1:           1.5,
		BM25B:            0.75,
		TokenizerPattern: `\w+`,
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { vs.Close() })

	emb := embedder.NewDeterministic(16, true, 1)

	docs := []model.Document{
		{ID: "d1", Text: "the cat sat on the mat", Metadata: map[string]string{"source": "telegram"}},
		{ID: "d2", Text: "dogs are loyal companions", Metadata: map[string]string{"source": "telegram"}},
		{ID: "d3", Text: "the stock market rallied today", Metadata: map[string]string{"source": "telegram"}},
	}
	vectors := make([][]float32, len(docs))
	for i, d := range docs {
		v, _ := emb.EmbedBatch(context.Background(), []string{d.Text})
		vectors[i] = v[0]
	}
	_, err = vs.AddDocuments(context.Background(), docs, vectors, "")
	require.NoError(t, err)

	return &Retriever{Vectors: vs, Embedder: emb, Log: zerolog.Nop()}
}

func TestRouteSourceStripsKnownToken(t *testing.T) {
	stripped, src, ok := routeSource("what did alice say from:telegram yesterday")
	require.True(t, ok)
	assert.Equal(t, model.SourceTelegram, src)
	assert.NotContains(t, stripped, "from:telegram")
}

func TestRouteSourceLeavesUnknownTokenUntouched(t *testing.T) {
	stripped, _, ok := routeSource("where did this gift come from:mystery")
	assert.False(t, ok)
	assert.Equal(t, "where did this gift come from:mystery", stripped)
}

func TestRouteSourceAcceptsSourceAlias(t *testing.T) {
	_, src, ok := routeSource("source:github open issues")
	require.True(t, ok)
	assert.Equal(t, model.SourceGitHub, src)
}

func TestRetrieveReturnsRankedResults(t *testing.T) {
	r := newTestRetriever(t)
	docs, err := r.Retrieve(context.Background(), "tell me about cats", 5, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, docs)
}

func TestFuseAccumulatesReciprocalRankAcrossLists(t *testing.T) {
	listA := []hit{{id: "x"}, {id: "y"}}
	listB := []hit{{id: "y"}, {id: "x"}}
	fused := fuse([][]hit{listA, listB})
	require.Len(t, fused, 2)
	assert.InDelta(t, fused[0].score, fused[1].score, 1e-9)
}

func TestFuseRanksEarlierHitsHigher(t *testing.T) {
	list := []hit{{id: "first"}, {id: "second"}, {id: "third"}}
	fused := fuse([][]hit{list})
	require.Len(t, fused, 3)
	assert.Equal(t, "first", fused[0].doc.ID)
	assert.Equal(t, "third", fused[2].doc.ID)
}

func TestSyntheticIDIsStableForSameInput(t *testing.T) {
	meta := map[string]string{"a": "1"}
	assert.Equal(t, syntheticID("hello", meta), syntheticID("hello", meta))
}

func TestTopKAppliesThresholdAndLimit(t *testing.T) {
	fused := []fusedDoc{
		{doc: model.Document{ID: "a"}, score: 0.5},
		{doc: model.Document{ID: "b"}, score: 0.1},
		{doc: model.Document{ID: "c"}, score: 0.05},
	}
	out := topK(fused, 0.1, 1)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)
}

package orchestrator

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoindex/internal/config"
	"convoindex/internal/embedder"
	"convoindex/internal/generator"
	"convoindex/internal/model"
	"convoindex/internal/promptbuilder"
	"convoindex/internal/retrieve"
	"convoindex/internal/validator"
	"convoindex/internal/vectorstore"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	log := zerolog.Nop()

	vs, err := vectorstore.Open(vectorstore.Options{
		PersistDirectory: t.TempDir(),
		CollectionName:   "telegram_messages",
		EnableBM25:       true,
		BM25K1:           1.5,
		BM25B:            0.75,
		TokenizerPattern: `\w+`,
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { vs.Close() })

	emb := embedder.NewDeterministic(16, true, 1)
	docs := []model.Document{
		{ID: "d1", Text: "alice asks about deployment status", Metadata: map[string]string{
			model.MetaSource: "telegram", model.MetaConversationID: "c1", model.MetaMessageID: "m1",
			model.MetaAuthor: "alice", model.MetaTimestamp: "100",
		}},
	}
	vectors := make([][]float32, len(docs))
	for i, d := range docs {
		v, _ := emb.EmbedBatch(context.Background(), []string{d.Text})
		vectors[i] = v[0]
	}
	_, err = vs.AddDocuments(context.Background(), docs, vectors, "")
	require.NoError(t, err)

	v := validator.New([]string{"telegram"}, nil, false)
	r := &retrieve.Retriever{Vectors: vs, Embedder: emb, Log: log}
	b := promptbuilder.NewBuilder(config.PromptBuilderConfig{})

	return &Orchestrator{
		Validator:  v,
		Retriever:  r,
		Builder:    b,
		Generator:  generator.Echo{},
		NumResults: 5,
		Threshold:  0,
		Log:        log,
	}
}

func TestHandleReturnsAnswerForAllowedSource(t *testing.T) {
	o := newTestOrchestrator(t)
	result, err := o.Handle(context.Background(), Request{Query: "what is the deployment status?", Source: "telegram"})
	require.NoError(t, err)
	assert.Contains(t, result.Answer, "echo:")
	assert.NotEmpty(t, result.Prompt)
}

func TestHandleRejectsDisallowedSource(t *testing.T) {
	o := newTestOrchestrator(t)
	_, err := o.Handle(context.Background(), Request{Query: "hello", Source: "discord"})
	assert.Error(t, err)
}

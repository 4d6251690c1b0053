// Package ingestpipeline handles per-source registration, run
// orchestration, batching, backpressure, and state updates.
package ingestpipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"convoindex/internal/embedder"
	"convoindex/internal/model"
	"convoindex/internal/preprocess"
	"convoindex/internal/sourceadapter"
	"convoindex/internal/state"
	"convoindex/internal/vectorstore"
)

const (
	defaultBatchSize       = 100
	maxParallelEmbedCalls  = 4
	defaultAuthWaitTimeout = 300 * time.Second
)

// Registration pairs one ingestor id with its adapter and preprocessor.
type Registration struct {
	IngestorID   string
	Adapter      sourceadapter.Adapter
	Preprocessor preprocess.Preprocessor
}

// RunResult is the summary returned by RunIngestion.
type RunResult struct {
	Success                bool
	DocumentsProcessed     int
	Errors                 []string
	AuthenticationRequired bool
	StartTime              time.Time
	EndTime                time.Time
	Duration               time.Duration
}

// Pipeline owns a registry of ingestors plus the shared
// embedder and vector store; ingestor state is owned
// by the Store it's given, never cached here.
type Pipeline struct {
	Store     *state.Store
	Vectors   *vectorstore.Store
	Embedder  embedder.Embedder
	BatchSize int
	Log       zerolog.Logger

	registry map[string]Registration
}

// NewPipeline constructs an empty pipeline ready for Register calls.
func NewPipeline(store *state.Store, vectors *vectorstore.Store, emb embedder.Embedder, batchSize int, log zerolog.Logger) *Pipeline {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Pipeline{
		Store:     store,
		Vectors:   vectors,
		Embedder:  emb,
		BatchSize: batchSize,
		Log:       log,
		registry:  map[string]Registration{},
	}
}

// Register adds or replaces an ingestor's adapter/preprocessor pair.
func (p *Pipeline) Register(reg Registration) {
	p.registry[reg.IngestorID] = reg
}

// Start iterates every registered ingestor and runs each sequentially;
// a failing ingestor does not abort the others.
func (p *Pipeline) Start(ctx context.Context) map[string]RunResult {
	results := make(map[string]RunResult, len(p.registry))
	for id := range p.registry {
		result, err := p.RunIngestion(ctx, id)
		if err != nil {
			p.Log.Error().Err(err).Str("ingestor_id", id).Msg("ingestion run failed")
		}
		results[id] = result
	}
	return results
}

// Stop is advisory: this pipeline is not long-running, so there is
// nothing to actually halt. The method exists for API compatibility
// with a future streaming driver.
func (p *Pipeline) Stop() {}

// RunIngestion drives one fetch/preprocess/embed/store run for ingestorID.
func (p *Pipeline) RunIngestion(ctx context.Context, ingestorID string) (RunResult, error) {
	start := time.Now()
	result := RunResult{StartTime: start}

	reg, ok := p.registry[ingestorID]
	if !ok {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(start)
		return result, fmt.Errorf("ingestpipeline: unknown ingestor %q", ingestorID)
	}

	st, err := p.Store.Get(ctx, ingestorID)
	if err != nil {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(start)
		return result, err
	}

	if auth, ok := reg.Adapter.(sourceadapter.AuthRequired); ok {
		if err := auth.WaitForAuth(ctx, defaultAuthWaitTimeout); err != nil {
			result.AuthenticationRequired = true
			result.Success = true
			result.EndTime = time.Now()
			result.Duration = result.EndTime.Sub(start)
			return result, nil
		}
	}

	var raw []preprocess.RawMessage
	if st.LastTimestamp == 0 {
		raw, err = reg.Adapter.FetchFull(ctx)
	} else {
		raw, err = reg.Adapter.FetchSince(ctx, time.Unix(st.LastTimestamp, 0).UTC())
	}
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(start)
		return result, nil
	}
	if len(raw) == 0 {
		result.Success = true
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(start)
		return result, nil
	}

	docs, err := reg.Preprocessor.Preprocess(raw)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(start)
		return result, nil
	}
	if len(docs) == 0 {
		result.Success = true
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(start)
		return result, nil
	}

	targetCollection := p.Vectors.FindCollectionName(reg.Adapter.SourceName())
	latestTS := st.LastTimestamp
	processed := 0

	for _, batch := range splitIntoBatches(docs, p.BatchSize) {
		vectors, err := p.embedBatch(ctx, batch)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}

		if _, err := p.Vectors.AddDocuments(ctx, batch, vectors, targetCollection); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}

		processed += len(batch)
		for _, d := range batch {
			if ts, ok := model.ParseTimestamp(d.Metadata[model.MetaTimestampSec]); ok && ts > latestTS {
				latestTS = ts
			}
		}
	}

	result.DocumentsProcessed = processed
	result.Success = true

	if latestTS > st.LastTimestamp && processed > 0 {
		meta := st.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		if total, ok := meta["total_documents_processed"].(float64); ok {
			meta["total_documents_processed"] = total + float64(processed)
		} else {
			meta["total_documents_processed"] = float64(processed)
		}
		meta["last_run"] = time.Now().UTC().Format(time.RFC3339)

		if err := p.Store.Set(ctx, ingestorID, latestTS, meta); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(start)
	return result, nil
}

// embedBatch calls Embed for every document in batch, in strictly
// ascending conversation order for the store write that follows, but
// MAY parallelize the embedding calls themselves up to a small bound.
func (p *Pipeline) embedBatch(ctx context.Context, batch []model.Document) ([][]float32, error) {
	vectors := make([][]float32, len(batch))
	texts := make([]string, len(batch))
	for i, d := range batch {
		texts[i] = d.Text
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelEmbedCalls)
	chunks := splitIndices(len(batch), 1)
	for _, idx := range chunks {
		idx := idx
		g.Go(func() error {
			out, err := p.Embedder.EmbedBatch(gctx, []string{texts[idx]})
			if err != nil {
				return fmt.Errorf("%w: embed doc %s: %v", model.ErrEmbedder, batch[idx].ID, err)
			}
			if len(out) > 0 {
				vectors[idx] = out[0]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func splitIntoBatches(docs []model.Document, size int) [][]model.Document {
	var batches [][]model.Document
	for i := 0; i < len(docs); i += size {
		end := i + size
		if end > len(docs) {
			end = len(docs)
		}
		batches = append(batches, docs[i:end])
	}
	return batches
}

func splitIndices(n, _ int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

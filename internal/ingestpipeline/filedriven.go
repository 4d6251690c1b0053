package ingestpipeline

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"convoindex/internal/model"
	"convoindex/internal/preprocess"
	"convoindex/internal/sourceadapter"
)

const fileDrivenBatchLimit = 10

// FileDrivenSchedule is a cron-ticked reader that drains a directory
// of pending files instead of talking to a remote source.
// Each file is all-or-nothing: its ".done" marker is only written once
// preprocessing, embedding, and storage all succeed for every record
// in the file.
type FileDrivenSchedule struct {
	Pipeline     *Pipeline
	Adapter      sourceadapter.FileAdapter
	Preprocessor map[model.Source]preprocess.Preprocessor
	Log          zerolog.Logger

	cron *cron.Cron
}

// NewFileDrivenSchedule wires a FileAdapter and per-source
// preprocessors to a cron scheduler that is not yet running; Start
// takes the tick spec and starts it.
func NewFileDrivenSchedule(p *Pipeline, adapter sourceadapter.FileAdapter, preprocessors map[model.Source]preprocess.Preprocessor, log zerolog.Logger) *FileDrivenSchedule {
	return &FileDrivenSchedule{
		Pipeline:     p,
		Adapter:      adapter,
		Preprocessor: preprocessors,
		Log:          log,
		cron:         cron.New(),
	}
}

// Start registers the tick and begins the cron scheduler. spec empty
// defaults to every 5 minutes.
func (f *FileDrivenSchedule) Start(ctx context.Context, spec string) error {
	if spec == "" {
		spec = "*/5 * * * *"
	}
	_, err := f.cron.AddFunc(spec, func() { f.tick(ctx) })
	if err != nil {
		return fmt.Errorf("ingestpipeline: bad file-driven schedule %q: %w", spec, err)
	}
	f.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for any in-flight tick to finish.
func (f *FileDrivenSchedule) Stop() {
	<-f.cron.Stop().Done()
}

// RunOnce performs a single tick's worth of work synchronously; Start
// calls this on each cron fire, but callers (and tests) can invoke it
// directly without a running scheduler.
func (f *FileDrivenSchedule) RunOnce(ctx context.Context) {
	f.tick(ctx)
}

func (f *FileDrivenSchedule) tick(ctx context.Context) {
	names, err := f.Adapter.Pending(fileDrivenBatchLimit)
	if err != nil {
		f.Log.Error().Err(err).Msg("file-driven tick: listing pending files failed")
		return
	}
	for _, name := range names {
		if err := f.processFile(ctx, name); err != nil {
			f.Log.Error().Err(err).Str("file", name).Msg("file-driven tick: file failed, leaving unmarked for retry")
		}
	}
}

func (f *FileDrivenSchedule) processFile(ctx context.Context, name string) error {
	rec, err := f.Adapter.Read(name)
	if err != nil {
		return err
	}

	if len(rec.Messages) == 0 {
		return f.Adapter.MarkProcessed(name)
	}

	source := model.Source(rec.Source)
	pre, ok := f.Preprocessor[source]
	if !ok {
		return fmt.Errorf("%w: no preprocessor registered for source %q", model.ErrPreprocessor, rec.Source)
	}

	docs, err := pre.Preprocess(rec.Messages)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return f.Adapter.MarkProcessed(name)
	}

	collection := f.Pipeline.Vectors.FindCollectionName(source)
	for _, batch := range splitIntoBatches(docs, f.Pipeline.BatchSize) {
		vectors, err := f.Pipeline.embedBatch(ctx, batch)
		if err != nil {
			return err
		}
		if _, err := f.Pipeline.Vectors.AddDocuments(ctx, batch, vectors, collection); err != nil {
			return err
		}
	}

	return f.Adapter.MarkProcessed(name)
}

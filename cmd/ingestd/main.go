// Command ingestd drives the ingestion pipeline: it fetches new
// documents from every registered source, embeds them, and writes
// them into the vector store, either once or on a recurring schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"convoindex/internal/config"
	"convoindex/internal/embedder"
	"convoindex/internal/ingestpipeline"
	"convoindex/internal/logging"
	"convoindex/internal/model"
	"convoindex/internal/preprocess"
	"convoindex/internal/sourceadapter"
	"convoindex/internal/state"
	"convoindex/internal/vectorstore"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to config.yaml")
	once := flag.Bool("once", false, "run one ingestion pass and exit instead of looping")
	fileDir := flag.String("file-source", "", "directory of file-driven conversation batches (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	log := logging.New(cfg.Logging)

	stateStore, err := state.Open(cfg.StateManager.DBPath, logging.Component(log, "state"))
	if err != nil {
		log.Error().Err(err).Msg("open state store")
		return 1
	}
	defer stateStore.Close()

	vectors, err := vectorstore.Open(vectorstore.Options{
		PersistDirectory: cfg.VectorStores.Chroma.PersistDirectory,
		CollectionName:   cfg.VectorStores.Chroma.CollectionName,
		EnableBM25:       cfg.VectorStores.Chroma.EnableBM25,
		BM25K1:           cfg.VectorStores.Chroma.BM25K1,
		BM25B:            cfg.VectorStores.Chroma.BM25B,
		TokenizerPattern: cfg.VectorStores.Chroma.TokenizerPattern,
	}, logging.Component(log, "vectorstore"))
	if err != nil {
		log.Error().Err(err).Msg("open vector store")
		return 1
	}
	defer vectors.Close()

	emb := buildEmbedder(cfg.Embedder, log)

	batchSize := cfg.Pipelines.Default.BatchSize
	pipeline := ingestpipeline.NewPipeline(stateStore, vectors, emb, batchSize, logging.Component(log, "ingestpipeline"))

	var fileSchedule *ingestpipeline.FileDrivenSchedule
	if *fileDir != "" {
		fileSchedule = ingestpipeline.NewFileDrivenSchedule(
			pipeline,
			sourceadapter.FileAdapter{Dir: *fileDir},
			map[model.Source]preprocess.Preprocessor{
				model.SourceTelegram: preprocess.Telegram{},
				model.SourceWhatsApp: preprocess.WhatsApp{},
				model.SourceGitHub:   preprocess.GitHub{},
			},
			logging.Component(log, "filedriven"),
		)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		results := pipeline.Start(ctx)
		logRunResults(log, results)
		if fileSchedule != nil {
			fileSchedule.RunOnce(ctx)
		}
		return 0
	}

	if fileSchedule != nil {
		if err := fileSchedule.Start(ctx, ""); err != nil {
			log.Error().Err(err).Msg("start file-driven schedule")
			return 1
		}
		defer fileSchedule.Stop()
	}

	interval := time.Duration(cfg.Pipelines.Default.Schedule.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("ingestd started")

	results := pipeline.Start(ctx)
	logRunResults(log, results)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("ingestd shutting down")
			return 130
		case <-ticker.C:
			results := pipeline.Start(ctx)
			logRunResults(log, results)
		}
	}
}

// buildEmbedder wires a remote embedder when an endpoint is configured,
// falling back to the deterministic hash-based embedder for local runs
// against the file-driven source with no external dependency.
func buildEmbedder(cfg config.EmbedderConfig, log zerolog.Logger) embedder.Embedder {
	if cfg.BaseURL == "" {
		log.Warn().Msg("embedder.base_url unset, using deterministic hash embedder")
		return embedder.NewDeterministic(cfg.Dimension, true, 0)
	}
	return embedder.NewRemoteEmbedder(cfg)
}

func logRunResults(log zerolog.Logger, results map[string]ingestpipeline.RunResult) {
	for id, r := range results {
		ev := log.Info()
		if !r.Success {
			ev = log.Warn()
		}
		ev.Str("ingestor", id).
			Int("documents", r.DocumentsProcessed).
			Bool("auth_required", r.AuthenticationRequired).
			Strs("errors", r.Errors).
			Dur("duration", r.Duration).
			Msg("ingestion run complete")
	}
}

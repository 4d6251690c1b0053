// Command queryd answers one question against the vector store: it
// validates the request, retrieves supporting documents, builds a
// prompt, and invokes the configured language model.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"convoindex/internal/config"
	"convoindex/internal/embedder"
	"convoindex/internal/generator"
	"convoindex/internal/logging"
	"convoindex/internal/orchestrator"
	"convoindex/internal/promptbuilder"
	"convoindex/internal/retrieve"
	"convoindex/internal/validator"
	"convoindex/internal/vectorstore"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to config.yaml")
	source := flag.String("source", "", "restrict/attribute the query to one source")
	permission := flag.Int("permission", 0, "caller's permission level")
	flag.Parse()

	query, err := readQuery(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "read query: %v\n", err)
		return 1
	}
	if strings.TrimSpace(query) == "" {
		fmt.Fprintln(os.Stderr, "no query given (pass as an argument or on stdin)")
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	log := logging.New(cfg.Logging)

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

	var emb embedder.Embedder
	if cfg.Embedder.BaseURL == "" {
		emb = embedder.NewDeterministic(cfg.Embedder.Dimension, true, 0)
	} else {
		emb = embedder.NewRemoteEmbedder(cfg.Embedder)
	}

	gen := generator.NewOpenAIGenerator(cfg.Generator)

	orc := &orchestrator.Orchestrator{
		Validator: validator.New(cfg.Orchestrator.DefaultAllowedSources, cfg.Orchestrator.ValidationRules[*source], cfg.Orchestrator.ShortCircuitRules),
		Retriever: &retrieve.Retriever{
			Vectors:  vectors,
			Embedder: emb,
			Expander: retrieve.LMExpander{Generator: gen},
			Log:      logging.Component(log, "retrieve"),
		},
		Builder:    promptbuilder.NewBuilder(cfg.PromptBuilder),
		Generator:  gen,
		NumResults: cfg.Orchestrator.NumResults,
		Threshold:  cfg.Orchestrator.SimilarityThreshold,
		Log:        logging.Component(log, "orchestrator"),
	}

	result, err := orc.Handle(context.Background(), orchestrator.Request{
		Query:           query,
		Source:          *source,
		PermissionLevel: *permission,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "query failed: %v\n", err)
		return 1
	}

	fmt.Println(result.Answer)
	return 0
}

// readQuery joins any positional arguments as the query; with none, it
// reads the entire query from stdin.
func readQuery(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	stat, err := os.Stdin.Stat()
	if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
		return "", nil
	}
	data, err := io.ReadAll(bufio.NewReader(os.Stdin))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

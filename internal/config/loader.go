package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"convoindex/internal/model"
)

// Load reads the YAML document at path, applies defaults for keys left
// unset, then lets a handful of environment variables override the
// result. Uses godotenv.Overload so a local .env file takes precedence
// over pre-existing OS environment variables.
func Load(path string) (Config, error) {
	_ = godotenv.Overload()

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("CONVOINDEX_PERSIST_DIRECTORY")); v != "" {
		cfg.VectorStores.Chroma.PersistDirectory = v
	}
	if v := strings.TrimSpace(os.Getenv("CONVOINDEX_STATE_DB_PATH")); v != "" {
		cfg.StateManager.DBPath = v
	}
	if v := strings.TrimSpace(os.Getenv("CONVOINDEX_GENERATOR_API_KEY")); v != "" {
		cfg.Generator.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("CONVOINDEX_GENERATOR_BASE_URL")); v != "" {
		cfg.Generator.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("CONVOINDEX_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("CONVOINDEX_LOG_FORMAT")); v != "" {
		cfg.Logging.Format = v
	}
	if v := strings.TrimSpace(os.Getenv("CONVOINDEX_BATCH_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipelines.Default.BatchSize = n
		}
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.VectorStores.Chroma.PersistDirectory == "" {
		return fmt.Errorf("%w: vector_stores.chroma.persist_directory is required", model.ErrConfiguration)
	}
	if cfg.StateManager.DBPath == "" {
		return fmt.Errorf("%w: state_manager.db_path is required", model.ErrConfiguration)
	}
	if cfg.VectorStores.Chroma.BM25K1 <= 0 {
		return fmt.Errorf("%w: vector_stores.chroma.bm25_k1 must be positive", model.ErrConfiguration)
	}
	if cfg.VectorStores.Chroma.BM25B < 0 || cfg.VectorStores.Chroma.BM25B > 1 {
		return fmt.Errorf("%w: vector_stores.chroma.bm25_b must be in [0,1]", model.ErrConfiguration)
	}
	if cfg.Pipelines.Default.BatchSize <= 0 {
		return fmt.Errorf("%w: pipelines.default.batch_size must be positive", model.ErrConfiguration)
	}
	return nil
}

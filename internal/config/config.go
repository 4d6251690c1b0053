// Package config loads the single hierarchical YAML document that
// drives every convoindex component. Each sub-tree is a typed struct
// rather than a generic map, favoring explicit config structs over a
// loosely-typed settings bag.
package config

// Config is the root configuration document.
type Config struct {
	VectorStores VectorStoresConfig `yaml:"vector_stores"`
	StateManager StateManagerConfig `yaml:"state_manager"`
	Pipelines    PipelinesConfig    `yaml:"pipelines"`
	Embedder     EmbedderConfig     `yaml:"embedder"`
	Generator    GeneratorConfig    `yaml:"generator"`
	PromptBuilder PromptBuilderConfig `yaml:"prompt_builder"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type VectorStoresConfig struct {
	Chroma ChromaConfig `yaml:"chroma"`
}

// ChromaConfig names the dense+BM25 hybrid collection store. The field
// name mirrors the config's dotted path (vector_stores.chroma) though
// the engine underneath is badger, not Chroma itself.
type ChromaConfig struct {
	PersistDirectory string  `yaml:"persist_directory"`
	CollectionName   string  `yaml:"collection_name"`
	EnableBM25       bool    `yaml:"enable_bm25"`
	BM25K1           float64 `yaml:"bm25_k1"`
	BM25B            float64 `yaml:"bm25_b"`
	TokenizerPattern string  `yaml:"tokenizer_pattern"`
}

type StateManagerConfig struct {
	DBPath string `yaml:"db_path"`
	Driver string `yaml:"driver"`
}

type PipelinesConfig struct {
	Default DefaultPipelineConfig `yaml:"default"`
}

type DefaultPipelineConfig struct {
	BatchSize int            `yaml:"batch_size"`
	Schedule  ScheduleConfig `yaml:"schedule"`
}

type ScheduleConfig struct {
	IntervalMinutes int `yaml:"interval_minutes"`
}

type EmbedderConfig struct {
	ModelName      string `yaml:"model_name"`
	Dimension      int    `yaml:"dimension"`
	BaseURL        string `yaml:"base_url"`
	Path           string `yaml:"path"`
	APIKey         string `yaml:"api_key"`
	APIHeader      string `yaml:"api_header"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MinDelayMillis int    `yaml:"min_delay_millis"`
}

type GeneratorConfig struct {
	Provider       string                `yaml:"provider"`
	Model          string                `yaml:"model"`
	APIKey         string                `yaml:"api_key"`
	BaseURL        string                `yaml:"base_url"`
	DefaultOptions GeneratorOptionsConfig `yaml:"default_options"`
}

type GeneratorOptionsConfig struct {
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TopP        float64 `yaml:"top_p"`
}

type PromptBuilderConfig struct {
	Template        string               `yaml:"template"`
	FallbackTemplate string              `yaml:"fallback_template"`
	ErrorTemplate   string                `yaml:"error_template"`
	UserReference   UserReferenceConfig  `yaml:"user_reference"`
}

type UserReferenceConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Terms    []string `yaml:"terms"`
	Template string   `yaml:"template"`
}

type OrchestratorConfig struct {
	NumResults            int                     `yaml:"num_results"`
	SimilarityThreshold   float64                 `yaml:"similarity_threshold"`
	DefaultAllowedSources []string                `yaml:"default_allowed_sources"`
	ShortCircuitRules     bool                    `yaml:"short_circuit_rules"`
	ValidationRules       map[string][]RuleConfig `yaml:"validation_rules"`
}

// RuleConfig is one validator rule. Only the fields relevant to Kind
// are populated; the rest are zero-valued.
type RuleConfig struct {
	Kind          string   `yaml:"kind"`
	Allowed       []string `yaml:"allowed"`
	Min           int      `yaml:"min"`
	Max           int      `yaml:"max"`
	Forbidden     []string `yaml:"forbidden"`
	Pattern       string   `yaml:"pattern"`
	StartHour     int      `yaml:"start_hour"`
	EndHour       int      `yaml:"end_hour"`
	Required      int      `yaml:"required"`
	ShortCircuit  bool     `yaml:"short_circuit"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() Config {
	var cfg Config
	cfg.VectorStores.Chroma.PersistDirectory = "./data/vectorstore"
	cfg.VectorStores.Chroma.CollectionName = "default"
	cfg.VectorStores.Chroma.EnableBM25 = true
	cfg.VectorStores.Chroma.BM25K1 = 1.5
	cfg.VectorStores.Chroma.BM25B = 0.75
	cfg.VectorStores.Chroma.TokenizerPattern = `\w+`
	cfg.StateManager.DBPath = "./data/state.db"
	cfg.StateManager.Driver = "sqlite"
	cfg.Pipelines.Default.BatchSize = 100
	cfg.Embedder.ModelName = "nomic-embed-text-v1.5"
	cfg.Embedder.Dimension = 768
	cfg.Embedder.Path = "/v1/embeddings"
	cfg.Embedder.APIHeader = "Authorization"
	cfg.Embedder.TimeoutSeconds = 30
	cfg.Orchestrator.NumResults = 10
	cfg.Orchestrator.SimilarityThreshold = 0
	cfg.Orchestrator.DefaultAllowedSources = []string{"telegram", "whatsapp", "github"}
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	return cfg
}

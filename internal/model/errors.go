package model

import "errors"

// Sentinel errors shared across packages. Components wrap these with
// context via fmt.Errorf("...: %w", ErrX) rather than defining one
// error type per package.
var (
	// ErrConfiguration marks a missing required key or invalid config value.
	// Fatal at initialization.
	ErrConfiguration = errors.New("configuration error")

	// ErrAdapterUnreachable marks a source adapter that could not be reached.
	ErrAdapterUnreachable = errors.New("source adapter unreachable")

	// ErrAuthRequired marks an adapter that needs interactive authorization
	// (e.g. WhatsApp QR pairing) before it can fetch.
	ErrAuthRequired = errors.New("adapter authentication required")

	// ErrRateLimited marks a source adapter backoff signal.
	ErrRateLimited = errors.New("source adapter rate limited")

	// ErrMalformedPayload marks a source adapter response that could not
	// be parsed into raw records.
	ErrMalformedPayload = errors.New("malformed source payload")

	// ErrPreprocessor marks a structurally invalid preprocessor input
	// batch (missing required top-level keys).
	ErrPreprocessor = errors.New("preprocessor error")

	// ErrEmbedder marks a persistent (non-retryable) embedding failure.
	ErrEmbedder = errors.New("embedder error")

	// ErrVectorStoreWrite marks a vector store write failure.
	ErrVectorStoreWrite = errors.New("vector store write error")

	// ErrBM25Busy marks a rejected BM25 state transition.
	ErrBM25Busy = errors.New("bm25 index busy")

	// ErrBM25Timeout marks a keyword_search_async wait that exceeded max_wait.
	ErrBM25Timeout = errors.New("bm25 index wait timed out")

	// ErrStateStore marks a state store I/O failure.
	ErrStateStore = errors.New("state store error")

	// ErrGenerator marks a language model invocation failure.
	ErrGenerator = errors.New("generator error")

	// ErrValidation marks a query that failed validator rules.
	ErrValidation = errors.New("query validation failed")
)

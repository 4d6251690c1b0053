package model

// IngestorState is the per-ingestor progress record the state store
// persists. Metadata is opaque JSON used for run counters,
// registration date, and per-source bookkeeping; the state store and
// pipeline treat it as a plain map so callers can stash arbitrary keys.
type IngestorState struct {
	LastTimestamp int64
	Metadata      map[string]any
}

// ZeroState returns the value a missing ingestor row reads as.
func ZeroState() IngestorState {
	return IngestorState{LastTimestamp: 0, Metadata: map[string]any{}}
}

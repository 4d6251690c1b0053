// Package sourceadapter defines the capability interfaces and thin
// concrete adapters for the sources this module understands. The
// adapters' own network clients are opaque external collaborators;
// these types only shape the fetch/healthcheck surface the ingestion
// pipeline drives.
package sourceadapter

import (
	"context"
	"time"

	"convoindex/internal/model"
	"convoindex/internal/preprocess"
)

// Adapter is the capability surface the ingestion pipeline drives per
// registered ingestor.
type Adapter interface {
	SourceName() model.Source
	FetchFull(ctx context.Context) ([]preprocess.RawMessage, error)
	FetchSince(ctx context.Context, since time.Time) ([]preprocess.RawMessage, error)
	Healthcheck(ctx context.Context) error
}

// AuthRequired is implemented by adapters whose fetch primitives may
// require interactive authorization (e.g. WhatsApp QR pairing) before
// they can be used.
type AuthRequired interface {
	WaitForAuth(ctx context.Context, timeout time.Duration) error
}

// RangeFetcher is implemented by adapters that can also fetch an
// explicit time range, independent of stored state.
type RangeFetcher interface {
	FetchRange(ctx context.Context, from, to time.Time) ([]preprocess.RawMessage, error)
}

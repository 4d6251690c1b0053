// Package vectorstore implements a per-collection hybrid store
// holding dense vectors (cosine similarity, badger-backed) alongside a
// from-scratch BM25 keyword index on the default collection.
package vectorstore

import "convoindex/internal/model"

// SearchResult is a single dense-search hit.
type SearchResult struct {
	ID       string
	Text     string
	Metadata map[string]string
	Score    float64 // cosine similarity, higher is closer
}

// KeywordResult is a single BM25 hit.
type KeywordResult struct {
	ID       string
	Text     string
	Metadata map[string]string
	Score    float64 // BM25 score, higher is more relevant
}

// HealthStatus is the result of Store.Healthcheck.
type HealthStatus struct {
	Healthy bool
	Details string
}

// Filter is an equality-only metadata filter applied during search,
// count, and delete. A nil/empty filter matches everything.
type Filter map[string]string

func (f Filter) matches(meta map[string]string) bool {
	for k, v := range f {
		if meta[k] != v {
			return false
		}
	}
	return true
}

// sourceCollections is the default source -> collection routing table
// (e.g. "telegram" -> "telegram_messages"), consulted by
// FindCollectionName before falling back to the configured default.
var sourceCollections = map[model.Source]string{
	model.SourceTelegram: "telegram_messages",
	model.SourceWhatsApp: "whatsapp_messages",
	model.SourceGitHub:   "github_messages",
}

package vectorstore

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"convoindex/internal/model"
)

// Options configures a Store (mirrors the vector_stores.chroma config tree).
type Options struct {
	PersistDirectory string
	CollectionName   string // default collection name
	EnableBM25       bool
	BM25K1           float64
	BM25B            float64
	TokenizerPattern string
}

// Store is a hybrid dense + BM25 vector store, divided into named
// collections, with one shared BM25 index over the default collection.
type Store struct {
	dense             *denseStore
	bm25              *bm25Index // nil when EnableBM25 is false
	defaultCollection string
	log               zerolog.Logger
}

// Open opens (or creates) the store at opt.PersistDirectory and, if
// enabled, loads or rebuilds the BM25 index for the default collection.
func Open(opt Options, log zerolog.Logger) (*Store, error) {
	dense, err := openDenseStore(filepath.Join(opt.PersistDirectory, "dense"))
	if err != nil {
		return nil, err
	}

	s := &Store{dense: dense, defaultCollection: opt.CollectionName, log: log}

	if opt.EnableBM25 {
		idx, err := newBM25Index(opt.CollectionName, opt.PersistDirectory, opt.BM25K1, opt.BM25B, opt.TokenizerPattern)
		if err != nil {
			dense.Close()
			return nil, err
		}
		s.bm25 = idx

		if err := idx.load(); err != nil {
			log.Warn().Err(err).Str("collection", opt.CollectionName).Msg("bm25 load failed, rebuilding from default collection")
			if berr := idx.build(dense.documents(opt.CollectionName)); berr != nil {
				log.Error().Err(berr).Msg("bm25 rebuild failed, keyword search degraded until next successful build")
			} else if serr := idx.save(); serr != nil {
				log.Warn().Err(serr).Msg("bm25 save after rebuild failed")
			}
		} else {
			idx.rehydrate(dense.documents(opt.CollectionName))
		}
	}

	return s, nil
}

// Close releases the dense store's resources.
func (s *Store) Close() error {
	return s.dense.Close()
}

// FindCollectionName returns the collection a source routes to,
// falling back to the configured default if unmapped.
func (s *Store) FindCollectionName(source model.Source) string {
	if name, ok := sourceCollections[source]; ok {
		return name
	}
	return s.defaultCollection
}

// AddDocuments upserts docs with their parallel vectors into
// collection (or the default collection if empty). Documents without
// an id are assigned a generated UUID. Returns the assigned ids. A
// failed document write does not stop the rest of the batch; the first
// such error is returned once the batch is done, and documents already
// written stay written.
func (s *Store) AddDocuments(ctx context.Context, docs []model.Document, vectors [][]float32, collection string) ([]string, error) {
	if collection == "" {
		collection = s.defaultCollection
	}
	if len(docs) != len(vectors) {
		return nil, fmt.Errorf("%w: docs and vectors must be equal length (%d vs %d)", model.ErrVectorStoreWrite, len(docs), len(vectors))
	}

	ids := make([]string, len(docs))
	var toIndex []model.Document
	var writeErr error
	for i, d := range docs {
		select {
		case <-ctx.Done():
			return ids, ctx.Err()
		default:
		}

		id := d.ID
		if id == "" {
			id = uuid.NewString()
		}
		ids[i] = id

		rec := denseRecord{Text: d.Text, Metadata: d.Metadata, Vector: vectors[i]}
		if err := s.dense.upsert(collection, id, rec); err != nil {
			s.log.Error().Err(err).Str("id", id).Msg("dense upsert failed, continuing with remaining batch")
			if writeErr == nil {
				writeErr = err
			}
			continue
		}
		if s.bm25 != nil && collection == s.defaultCollection {
			toIndex = append(toIndex, model.Document{ID: id, Text: d.Text, Metadata: d.Metadata})
		}
	}

	if len(toIndex) > 0 {
		if err := s.bm25.update(toIndex); err != nil {
			s.log.Warn().Err(err).Msg("bm25 update busy or failed, index will catch up on next successful update")
		} else if err := s.bm25.save(); err != nil {
			s.log.Warn().Err(err).Msg("bm25 save after update failed")
		}
	}
	return ids, writeErr
}

// StoreDocuments is a convenience wrapper over AddDocuments for
// documents that already carry their vector.
func (s *Store) StoreDocuments(ctx context.Context, docs []model.Document, collection string) ([]string, error) {
	vectors := make([][]float32, len(docs))
	for i, d := range docs {
		vectors[i] = d.Vector
	}
	return s.AddDocuments(ctx, docs, vectors, collection)
}

// Search performs dense nearest-neighbor search.
func (s *Store) Search(queryVec []float32, k int, filter Filter, collection string) []SearchResult {
	if collection == "" {
		collection = s.defaultCollection
	}
	results, ok := s.dense.search(collection, queryVec, k, filter)
	if !ok {
		s.log.Warn().Str("collection", collection).Msg("search on missing collection, returning empty")
		return nil
	}
	return results
}

// KeywordSearch performs BM25 search, restricted to the default
// collection: other collections yield empty + warning.
func (s *Store) KeywordSearch(query string, k int, filter Filter, collection string) []KeywordResult {
	if collection == "" {
		collection = s.defaultCollection
	}
	if s.bm25 == nil {
		return nil
	}
	if collection != s.defaultCollection {
		s.log.Warn().Str("collection", collection).Msg("keyword_search only supports the default collection")
		return nil
	}
	return s.bm25.search(query, k, filter)
}

// KeywordSearchAsync waits for the BM25 index to return to IDLE, up to
// maxWait, then performs KeywordSearch. Returns ErrBM25Timeout if the
// wait expires.
func (s *Store) KeywordSearchAsync(ctx context.Context, query string, k int, filter Filter, collection string, maxWait time.Duration) ([]KeywordResult, error) {
	if s.bm25 == nil {
		return nil, nil
	}
	done := make(chan bool, 1)
	go func() { done <- s.bm25.waitIdle(maxWait) }()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ok := <-done:
		if !ok {
			return nil, model.ErrBM25Timeout
		}
	}
	return s.KeywordSearch(query, k, filter, collection), nil
}

// Delete removes documents by id or by filter (mutually exclusive;
// ids take precedence if both given) from collection, and from the
// BM25 map if collection is the default one.
func (s *Store) Delete(ids []string, filter Filter, collection string) (int, error) {
	if collection == "" {
		collection = s.defaultCollection
	}
	var n int
	var err error
	if len(ids) > 0 {
		n, err = s.dense.delete(collection, ids)
	} else {
		for _, d := range s.dense.documents(collection) {
			if filter.matches(d.Metadata) {
				ids = append(ids, d.ID)
			}
		}
		n, err = s.dense.deleteByFilter(collection, filter)
	}
	if err != nil {
		return n, err
	}

	if s.bm25 != nil && collection == s.defaultCollection {
		if len(ids) > 0 {
			s.bm25.delete(ids)
		}
		if err := s.bm25.save(); err != nil {
			s.log.Warn().Err(err).Msg("bm25 save after delete failed")
		}
	}
	return n, nil
}

// Count returns the number of documents in collection matching filter.
func (s *Store) Count(filter Filter, collection string) int {
	if collection == "" {
		collection = s.defaultCollection
	}
	return s.dense.count(collection, filter)
}

// Healthcheck exercises a count operation against the default
// collection.
func (s *Store) Healthcheck() HealthStatus {
	n := s.Count(nil, s.defaultCollection)
	return HealthStatus{Healthy: true, Details: fmt.Sprintf("default collection %q holds %d documents", s.defaultCollection, n)}
}

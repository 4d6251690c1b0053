package vectorstore

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"convoindex/internal/model"
)

// denseRecord is the gob-encoded value badger stores per document.
type denseRecord struct {
	Text     string
	Metadata map[string]string
	Vector   []float32
}

// denseStore is the embedded, disk-backed dense vector side of a
// collection. Each collection is a badger key prefix; search loads the
// collection's vectors into memory and scores by cosine similarity —
// brute force, acceptable given ANN tuning is out of scope.
type denseStore struct {
	db *badger.DB

	mu    sync.RWMutex
	cache map[string]map[string]denseRecord // collection -> id -> record, mirrors badger for fast search
}

func openDenseStore(dir string) (*denseStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger at %s: %v", model.ErrVectorStoreWrite, dir, err)
	}
	ds := &denseStore{db: db, cache: map[string]map[string]denseRecord{}}
	if err := ds.warm(); err != nil {
		db.Close()
		return nil, err
	}
	return ds, nil
}

func (d *denseStore) Close() error {
	return d.db.Close()
}

func denseKey(collection, id string) []byte {
	return []byte(collection + "\x00" + id)
}

func splitDenseKey(key []byte) (collection, id string) {
	parts := bytes.SplitN(key, []byte("\x00"), 2)
	if len(parts) != 2 {
		return "", string(key)
	}
	return string(parts[0]), string(parts[1])
}

// warm loads every record from badger into the in-memory cache on open.
func (d *denseStore) warm() error {
	return d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			collection, id := splitDenseKey(item.Key())
			var rec denseRecord
			if err := item.Value(func(val []byte) error {
				return gob.NewDecoder(bytes.NewReader(val)).Decode(&rec)
			}); err != nil {
				return fmt.Errorf("decode dense record %s/%s: %w", collection, id, err)
			}
			d.putCache(collection, id, rec)
		}
		return nil
	})
}

func (d *denseStore) putCache(collection, id string, rec denseRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	bucket, ok := d.cache[collection]
	if !ok {
		bucket = map[string]denseRecord{}
		d.cache[collection] = bucket
	}
	bucket[id] = rec
}

func (d *denseStore) deleteCache(collection, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if bucket, ok := d.cache[collection]; ok {
		delete(bucket, id)
	}
}

// upsert writes (id) -> {text, metadata, vector} into collection.
func (d *denseStore) upsert(collection, id string, rec denseRecord) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return fmt.Errorf("%w: encode dense record: %v", model.ErrVectorStoreWrite, err)
	}
	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(denseKey(collection, id), buf.Bytes())
	})
	if err != nil {
		return fmt.Errorf("%w: write %s/%s: %v", model.ErrVectorStoreWrite, collection, id, err)
	}
	d.putCache(collection, id, rec)
	return nil
}

// delete removes ids from collection, returning the number removed.
func (d *denseStore) delete(collection string, ids []string) (int, error) {
	n := 0
	err := d.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			if _, err := txn.Get(denseKey(collection, id)); err != nil {
				if err == badger.ErrKeyNotFound {
					continue
				}
				return err
			}
			if err := txn.Delete(denseKey(collection, id)); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: delete from %s: %v", model.ErrVectorStoreWrite, collection, err)
	}
	for _, id := range ids {
		d.deleteCache(collection, id)
	}
	return n, nil
}

// deleteByFilter removes every document in collection whose metadata
// matches filter, returning the number removed.
func (d *denseStore) deleteByFilter(collection string, filter Filter) (int, error) {
	d.mu.RLock()
	var ids []string
	for id, rec := range d.cache[collection] {
		if filter.matches(rec.Metadata) {
			ids = append(ids, id)
		}
	}
	d.mu.RUnlock()
	return d.delete(collection, ids)
}

// count returns the number of documents in collection matching filter.
func (d *denseStore) count(collection string, filter Filter) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, rec := range d.cache[collection] {
		if filter.matches(rec.Metadata) {
			n++
		}
	}
	return n
}

// search returns up to k nearest neighbors to query by cosine
// similarity descending. Returns (nil, false) if the collection is
// unknown, so the caller can return empty + a warning.
func (d *denseStore) search(collection string, query []float32, k int, filter Filter) ([]SearchResult, bool) {
	d.mu.RLock()
	bucket, ok := d.cache[collection]
	if !ok {
		d.mu.RUnlock()
		return nil, false
	}
	type scored struct {
		id    string
		rec   denseRecord
		score float64
	}
	candidates := make([]scored, 0, len(bucket))
	for id, rec := range bucket {
		if filter != nil && !filter.matches(rec.Metadata) {
			continue
		}
		candidates = append(candidates, scored{id: id, rec: rec, score: cosineSimilarity(query, rec.Vector)})
	}
	d.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].id < candidates[j].id
	})
	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, SearchResult{ID: c.id, Text: c.rec.Text, Metadata: c.rec.Metadata, Score: c.score})
	}
	return results, true
}

// documents returns every document currently stored in collection, used
// by bm25 (re)build on startup.
func (d *denseStore) documents(collection string) []model.Document {
	d.mu.RLock()
	defer d.mu.RUnlock()
	bucket := d.cache[collection]
	docs := make([]model.Document, 0, len(bucket))
	for id, rec := range bucket {
		docs = append(docs, model.Document{ID: id, Text: rec.Text, Metadata: rec.Metadata, Vector: rec.Vector})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

package vectorstore

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"convoindex/internal/model"
)

// bm25State is the explicit lifecycle state machine guarding
// concurrent rebuilds, updates, saves, and loads.
type bm25State int

const (
	bm25Idle bm25State = iota
	bm25Building
	bm25Updating
	bm25Saving
	bm25Loading
)

func (s bm25State) String() string {
	switch s {
	case bm25Idle:
		return "IDLE"
	case bm25Building:
		return "BUILDING"
	case bm25Updating:
		return "UPDATING"
	case bm25Saving:
		return "SAVING"
	case bm25Loading:
		return "LOADING"
	default:
		return "UNKNOWN"
	}
}

// bm25Snapshot is the on-disk JSON shape of a persisted index. It omits
// document text and metadata by design: those live in the dense store
// and are rehydrated from there after load.
type bm25Snapshot struct {
	TermDocFreq    map[string]map[string]int `json:"term_doc_freq"`
	DocLengths     map[string]int            `json:"doc_lengths"`
	AvgDocLength   float64                   `json:"avg_doc_length"`
	TotalDocs      int                       `json:"total_docs"`
	DocIDMap       map[string]string         `json:"doc_id_map"`
	InsertOrder    []string                  `json:"insert_order"`
	Parameters     bm25Parameters            `json:"parameters"`
	CollectionName string                   `json:"collection_name"`
	CreatedAt      string                    `json:"created_at"`
}

type bm25Parameters struct {
	K1               float64 `json:"k1"`
	B                float64 `json:"b"`
	TokenizerPattern string  `json:"tokenizer_pattern"`
}

// bm25Index is a from-scratch BM25 keyword index. One instance
// guards the default collection of a Store; insertion order is
// tracked to break scoring ties stably.
type bm25Index struct {
	mu sync.Mutex

	state        bm25State
	collection   string
	persistDir   string
	k1, b        float64
	tokenizer    *regexp.Regexp
	tokenizerPat string

	termDocFreq  map[string]map[string]int // term -> docID -> freq
	docLengths   map[string]int            // docID -> token count
	docIDMap     map[string]string         // external id -> internal id (identity in this implementation)
	insertOrder  []string                  // docID insertion order, for stable tie-breaking
	docText      map[string]string         // docID -> text, kept for keyword_search result rendering
	docMeta      map[string]map[string]string
	totalDocs    int
	sumDocLength int
}

func newBM25Index(collection, persistDir string, k1, b float64, tokenizerPattern string) (*bm25Index, error) {
	if tokenizerPattern == "" {
		tokenizerPattern = `\w+`
	}
	re, err := regexp.Compile(tokenizerPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: compile tokenizer pattern %q: %v", model.ErrConfiguration, tokenizerPattern, err)
	}
	return &bm25Index{
		state:        bm25Idle,
		collection:   collection,
		persistDir:   persistDir,
		k1:           k1,
		b:            b,
		tokenizer:    re,
		tokenizerPat: tokenizerPattern,
		termDocFreq:  map[string]map[string]int{},
		docLengths:   map[string]int{},
		docIDMap:     map[string]string{},
		docText:      map[string]string{},
		docMeta:      map[string]map[string]string{},
	}, nil
}

func (idx *bm25Index) tokenize(text string) []string {
	return idx.tokenizer.FindAllString(strings.ToLower(text), -1)
}

// tryEnter attempts the state transition. Returns false (no-op) if
// the index is not in a state that permits it.
func (idx *bm25Index) tryEnter(target bm25State) (prev bm25State, ok bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	switch target {
	case bm25Building, bm25Updating, bm25Loading:
		if idx.state != bm25Idle {
			return idx.state, false
		}
	case bm25Saving:
		switch idx.state {
		case bm25Idle, bm25Building, bm25Updating:
		default:
			return idx.state, false
		}
	}
	prev = idx.state
	idx.state = target
	return prev, true
}

func (idx *bm25Index) leave(restore bm25State) {
	idx.mu.Lock()
	idx.state = restore
	idx.mu.Unlock()
}

func (idx *bm25Index) currentState() bm25State {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.state
}

// build rebuilds the index from scratch over the given documents.
func (idx *bm25Index) build(docs []model.Document) error {
	if _, ok := idx.tryEnter(bm25Building); !ok {
		return model.ErrBM25Busy
	}
	defer idx.leave(bm25Idle)

	idx.mu.Lock()
	idx.termDocFreq = map[string]map[string]int{}
	idx.docLengths = map[string]int{}
	idx.docIDMap = map[string]string{}
	idx.docText = map[string]string{}
	idx.docMeta = map[string]map[string]string{}
	idx.insertOrder = nil
	idx.totalDocs = 0
	idx.sumDocLength = 0
	idx.mu.Unlock()

	for _, d := range docs {
		idx.indexOne(d)
	}
	return nil
}

// update incrementally indexes the given documents without discarding
// the existing index (upsert semantics per doc id).
func (idx *bm25Index) update(docs []model.Document) error {
	if _, ok := idx.tryEnter(bm25Updating); !ok {
		return model.ErrBM25Busy
	}
	defer idx.leave(bm25Idle)

	for _, d := range docs {
		idx.removeOne(d.ID)
		idx.indexOne(d)
	}
	return nil
}

func (idx *bm25Index) indexOne(d model.Document) {
	tokens := idx.tokenize(d.Text)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.docLengths[d.ID]; !exists {
		idx.insertOrder = append(idx.insertOrder, d.ID)
		idx.totalDocs++
	} else {
		idx.sumDocLength -= idx.docLengths[d.ID]
	}

	idx.docLengths[d.ID] = len(tokens)
	idx.sumDocLength += len(tokens)
	idx.docIDMap[d.ID] = d.ID
	idx.docText[d.ID] = d.Text
	idx.docMeta[d.ID] = d.Metadata

	freq := map[string]int{}
	for _, t := range tokens {
		freq[t]++
	}
	for t, f := range freq {
		bucket, ok := idx.termDocFreq[t]
		if !ok {
			bucket = map[string]int{}
			idx.termDocFreq[t] = bucket
		}
		bucket[d.ID] = f
	}
}

// removeOne deletes a single document's contribution to the index.
// Caller must not hold idx.mu.
func (idx *bm25Index) removeOne(docID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeOneLocked(docID)
}

func (idx *bm25Index) removeOneLocked(docID string) {
	length, ok := idx.docLengths[docID]
	if !ok {
		return
	}
	delete(idx.docLengths, docID)
	delete(idx.docIDMap, docID)
	delete(idx.docText, docID)
	delete(idx.docMeta, docID)
	idx.sumDocLength -= length
	idx.totalDocs--

	for i, id := range idx.insertOrder {
		if id == docID {
			idx.insertOrder = append(idx.insertOrder[:i], idx.insertOrder[i+1:]...)
			break
		}
	}
	for term, bucket := range idx.termDocFreq {
		if _, present := bucket[docID]; present {
			delete(bucket, docID)
			if len(bucket) == 0 {
				delete(idx.termDocFreq, term)
			}
		}
	}
}

// delete removes the given ids from the index.
func (idx *bm25Index) delete(ids []string) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := idx.docLengths[id]; ok {
			idx.removeOneLocked(id)
			n++
		}
	}
	return n
}

// search scores every document containing at least one query token and
// returns the top k by descending BM25 score, ties broken by stable
// insertion order.
func (idx *bm25Index) search(query string, k int, filter Filter) []KeywordResult {
	tokens := idx.tokenize(query)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.totalDocs == 0 || len(tokens) == 0 {
		return nil
	}
	avgLen := float64(idx.sumDocLength) / float64(idx.totalDocs)

	scores := map[string]float64{}
	for _, t := range tokens {
		bucket, ok := idx.termDocFreq[t]
		if !ok {
			continue
		}
		df := len(bucket)
		idf := math.Log((float64(idx.totalDocs-df)+0.5)/(float64(df)+0.5) + 1)
		for docID, f := range bucket {
			ld := float64(idx.docLengths[docID])
			denom := float64(f) + idx.k1*(1-idx.b+idx.b*ld/avgLen)
			scores[docID] += idf * (float64(f) * (idx.k1 + 1)) / denom
		}
	}

	order := make(map[string]int, len(idx.insertOrder))
	for i, id := range idx.insertOrder {
		order[id] = i
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		if filter != nil && !filter.matches(idx.docMeta[id]) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return order[ids[i]] < order[ids[j]]
	})
	if k > 0 && len(ids) > k {
		ids = ids[:k]
	}

	results := make([]KeywordResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, KeywordResult{ID: id, Text: idx.docText[id], Metadata: idx.docMeta[id], Score: scores[id]})
	}
	return results
}

func (idx *bm25Index) snapshotPath() string {
	return filepath.Join(idx.persistDir, fmt.Sprintf("bm25_index_%s.json", idx.collection))
}

// save writes an atomic JSON snapshot reflecting the state at the
// moment the lock was acquired, never a mid-update partial.
func (idx *bm25Index) save() error {
	prev, ok := idx.tryEnter(bm25Saving)
	if !ok {
		return model.ErrBM25Busy
	}
	defer idx.leave(prev)

	idx.mu.Lock()
	insertOrder := make([]string, len(idx.insertOrder))
	copy(insertOrder, idx.insertOrder)
	snap := bm25Snapshot{
		TermDocFreq:    cloneTermDocFreq(idx.termDocFreq),
		DocLengths:     cloneIntMap(idx.docLengths),
		TotalDocs:      idx.totalDocs,
		DocIDMap:       cloneStringMap(idx.docIDMap),
		InsertOrder:    insertOrder,
		Parameters:     bm25Parameters{K1: idx.k1, B: idx.b, TokenizerPattern: idx.tokenizerPat},
		CollectionName: idx.collection,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
	}
	if idx.totalDocs > 0 {
		snap.AvgDocLength = float64(idx.sumDocLength) / float64(idx.totalDocs)
	}
	idx.mu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("%w: marshal bm25 snapshot: %v", model.ErrVectorStoreWrite, err)
	}

	if err := os.MkdirAll(idx.persistDir, 0o755); err != nil {
		return fmt.Errorf("%w: create persist dir: %v", model.ErrVectorStoreWrite, err)
	}
	path := idx.snapshotPath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("%w: write bm25 snapshot tmp: %v", model.ErrVectorStoreWrite, err)
	}
	if err := os.Chmod(tmp, 0o600); err != nil {
		return fmt.Errorf("%w: chmod bm25 snapshot tmp: %v", model.ErrVectorStoreWrite, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: rename bm25 snapshot: %v", model.ErrVectorStoreWrite, err)
	}
	return nil
}

// load reads the on-disk snapshot. It fails if the file is missing,
// unparseable, or names a different collection; callers fall back to
// build() in those cases.
func (idx *bm25Index) load() error {
	if _, ok := idx.tryEnter(bm25Loading); !ok {
		return model.ErrBM25Busy
	}
	defer idx.leave(bm25Idle)

	data, err := os.ReadFile(idx.snapshotPath())
	if err != nil {
		return err
	}
	var snap bm25Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse bm25 snapshot: %w", err)
	}
	if snap.CollectionName != idx.collection {
		return fmt.Errorf("bm25 snapshot names collection %q, want %q", snap.CollectionName, idx.collection)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.termDocFreq = snap.TermDocFreq
	if idx.termDocFreq == nil {
		idx.termDocFreq = map[string]map[string]int{}
	}
	idx.docLengths = snap.DocLengths
	if idx.docLengths == nil {
		idx.docLengths = map[string]int{}
	}
	idx.docIDMap = snap.DocIDMap
	if idx.docIDMap == nil {
		idx.docIDMap = map[string]string{}
	}
	idx.totalDocs = snap.TotalDocs
	idx.sumDocLength = 0
	for _, l := range idx.docLengths {
		idx.sumDocLength += l
	}

	// docText/docMeta are intentionally absent from the snapshot; the
	// caller rehydrates them from the dense store via rehydrate().
	idx.docText = map[string]string{}
	idx.docMeta = map[string]map[string]string{}

	idx.insertOrder = restoreInsertOrder(snap.InsertOrder, idx.docLengths)
	return nil
}

// restoreInsertOrder reconstructs insertion order from the persisted
// order, dropping ids no longer present and appending (sorted, for
// determinism) any present id the persisted order omitted so every
// indexed document still gets a stable tie-break position.
func restoreInsertOrder(persisted []string, docLengths map[string]int) []string {
	seen := make(map[string]bool, len(persisted))
	order := make([]string, 0, len(docLengths))
	for _, id := range persisted {
		if _, ok := docLengths[id]; ok && !seen[id] {
			order = append(order, id)
			seen[id] = true
		}
	}
	if len(order) == len(docLengths) {
		return order
	}
	var missing []string
	for id := range docLengths {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return append(order, missing...)
}

// rehydrate repopulates docText/docMeta for every currently-indexed id
// from docs, the authoritative dense-store copy. Ids with no match in
// docs are left without text (e.g. the dense record is itself missing).
func (idx *bm25Index) rehydrate(docs []model.Document) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, d := range docs {
		if _, ok := idx.docLengths[d.ID]; ok {
			idx.docText[d.ID] = d.Text
			idx.docMeta[d.ID] = d.Metadata
		}
	}
}

// waitIdle polls the state every 0.5s until IDLE or maxWait elapses.
// maxWait <= 0 means no waiting at all: return immediately. Used by
// keyword_search_async.
func (idx *bm25Index) waitIdle(maxWait time.Duration) bool {
	if idx.currentState() == bm25Idle {
		return true
	}
	if maxWait <= 0 {
		return false
	}
	deadline := time.Now().Add(maxWait)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		if idx.currentState() == bm25Idle {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
	}
	return false
}

func cloneTermDocFreq(m map[string]map[string]int) map[string]map[string]int {
	out := make(map[string]map[string]int, len(m))
	for k, v := range m {
		out[k] = cloneIntMap(v)
	}
	return out
}

func cloneIntMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Package retrieve implements the query retrieval core: source
// routing, query expansion, parallel dense+sparse retrieval, and
// reciprocal-rank fusion.
package retrieve

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"convoindex/internal/embedder"
	"convoindex/internal/model"
	"convoindex/internal/vectorstore"
)

const (
	rrfConstant       = 60
	minCandidateHits  = 5
	keywordWaitBudget = 5 * time.Second
)

// QueryExpander produces rephrasings of a query. An implementation
// backed by an external LM may call out to it; on error it is treated
// as unavailable and the original query is used alone.
type QueryExpander interface {
	Expand(ctx context.Context, query string) ([]string, error)
}

// Retriever runs the end-to-end retrieval pipeline.
type Retriever struct {
	Vectors  *vectorstore.Store
	Embedder embedder.Embedder
	Expander QueryExpander // optional
	Log      zerolog.Logger
}

var routingToken = regexp.MustCompile(`(?i)\b(from|source):(\S+)`)

var sourceAliases = map[string]model.Source{
	"telegram": model.SourceTelegram,
	"whatsapp": model.SourceWhatsApp,
	"github":   model.SourceGitHub,
}

// routeSource parses an optional from:<src>/source:<src> token
// (case-insensitive, either spelling). Unrecognized source names are
// left in the query untouched, since they don't disambiguate from
// ordinary English use of the word "from:".
func routeSource(query string) (stripped string, src model.Source, ok bool) {
	loc := routingToken.FindStringSubmatchIndex(query)
	if loc == nil {
		return query, "", false
	}
	token := query[loc[4]:loc[5]]
	if s, known := sourceAliases[strings.ToLower(token)]; known {
		stripped = strings.TrimSpace(query[:loc[0]] + " " + query[loc[1]:])
		return stripped, s, true
	}
	return query, "", false
}

// Retrieve runs the full retrieval pipeline and returns the top k documents.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, threshold float64) ([]model.Document, error) {
	if k <= 0 {
		k = 10
	}

	cleaned, src, routed := routeSource(query)
	searchQuery := query
	if routed {
		searchQuery = cleaned
	}
	collection := ""
	if routed {
		collection = r.Vectors.FindCollectionName(src)
	}

	variants := []string{searchQuery}
	if r.Expander != nil {
		if extra, err := r.Expander.Expand(ctx, searchQuery); err != nil {
			r.Log.Warn().Err(err).Msg("query expansion unavailable, using original query only")
		} else {
			variants = dedupe(append(variants, extra...))
		}
	}

	candidateK := k
	if candidateK < minCandidateHits {
		candidateK = minCandidateHits
	}

	hitLists, err := r.collectHitLists(ctx, variants, candidateK, collection)
	if err != nil {
		return nil, err
	}

	fused := fuse(hitLists)
	return topK(fused, threshold, k), nil
}

type hit struct {
	id       string
	text     string
	metadata map[string]string
}

func (r *Retriever) collectHitLists(ctx context.Context, variants []string, k int, collection string) ([][]hit, error) {
	var mu sync.Mutex
	lists := make([][]hit, 0, len(variants)*2)
	append_ := func(l []hit) {
		mu.Lock()
		lists = append(lists, l)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, v := range variants {
		v := v
		g.Go(func() error {
			vec, err := r.Embedder.EmbedBatch(gctx, []string{v})
			if err != nil || len(vec) == 0 {
				return nil
			}
			dense := r.Vectors.Search(vec[0], k, nil, collection)
			denseHits := make([]hit, len(dense))
			for i, d := range dense {
				denseHits[i] = hit{id: d.ID, text: d.Text, metadata: d.Metadata}
			}
			append_(denseHits)
			return nil
		})
		g.Go(func() error {
			sparse, err := r.Vectors.KeywordSearchAsync(gctx, v, k, nil, collection, keywordWaitBudget)
			if err != nil {
				r.Log.Warn().Err(err).Str("variant", v).Msg("keyword search unavailable for this variant")
				return nil
			}
			sparseHits := make([]hit, len(sparse))
			for i, s := range sparse {
				sparseHits[i] = hit{id: s.ID, text: s.Text, metadata: s.Metadata}
			}
			append_(sparseHits)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lists, nil
}

type fusedDoc struct {
	doc   model.Document
	score float64
}

// fuse applies reciprocal-rank fusion: every hit list
// contributes 1/(C+rank) to each document's accumulated score, where
// rank is 1-based position within that list.
func fuse(lists [][]hit) []fusedDoc {
	scores := map[string]float64{}
	docs := map[string]model.Document{}

	for _, list := range lists {
		for i, h := range list {
			id := h.id
			if id == "" {
				id = syntheticID(h.text, h.metadata)
			}
			rank := i + 1
			scores[id] += 1.0 / float64(rrfConstant+rank)
			if _, seen := docs[id]; !seen {
				docs[id] = model.Document{ID: id, Text: h.text, Metadata: h.metadata}
			}
		}
	}

	out := make([]fusedDoc, 0, len(scores))
	for id, score := range scores {
		out = append(out, fusedDoc{doc: docs[id], score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].score > out[j].score
	})
	return out
}

// syntheticID derives an id for a hit with no stable id:
// hash(text) xor hash(metadata).
func syntheticID(text string, metadata map[string]string) string {
	th := fnv.New64a()
	th.Write([]byte(text))
	textHash := th.Sum64()

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	mh := fnv.New64a()
	for _, k := range keys {
		mh.Write([]byte(k))
		mh.Write([]byte("="))
		mh.Write([]byte(metadata[k]))
		mh.Write([]byte(";"))
	}
	metaHash := mh.Sum64()

	combined := textHash ^ metaHash
	return fmt.Sprintf("synthetic_%016x", combined)
}

func topK(fused []fusedDoc, threshold float64, k int) []model.Document {
	out := make([]model.Document, 0, k)
	for _, f := range fused {
		if f.score < threshold {
			continue
		}
		out = append(out, f.doc)
		if len(out) >= k {
			break
		}
	}
	return out
}

func dedupe(items []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(items))
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

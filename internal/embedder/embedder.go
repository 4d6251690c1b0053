// Package embedder wraps the opaque embed(text) -> vector[D]
// capability behind a small interface so the ingestion pipeline and
// retrieval core never depend on a concrete embedding provider.
package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"convoindex/internal/config"
	"convoindex/internal/model"
)

// Embedder converts text to fixed-dimension vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
	Dimension() int
	Ping(ctx context.Context) error
}

// httpClient is a thin external-collaborator shape around an
// OpenAI-style embeddings endpoint. The embedding model's internals
// are out of scope here; this client only does request/response
// plumbing and rate limiting.
type httpClient struct {
	cfg config.EmbedderConfig
	dim int

	mu       sync.Mutex
	lastCall time.Time
	minDelay time.Duration

	do func(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// NewHTTPClient constructs an Embedder that calls an external
// embeddings endpoint via do. Production wiring passes a function
// backed by an HTTP client; tests pass a stub.
func NewHTTPClient(cfg config.EmbedderConfig, dim int, do func(ctx context.Context, model string, texts []string) ([][]float32, error)) Embedder {
	return &httpClient{cfg: cfg, dim: dim, do: do, minDelay: time.Duration(cfg.MinDelayMillis) * time.Millisecond}
}

func (c *httpClient) Name() string   { return c.cfg.ModelName }
func (c *httpClient) Dimension() int { return c.dim }

func (c *httpClient) Ping(ctx context.Context) error {
	_, err := c.EmbedBatch(ctx, []string{"ping"})
	return err
}

func (c *httpClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	c.mu.Lock()
	if !c.lastCall.IsZero() {
		if elapsed := time.Since(c.lastCall); elapsed < c.minDelay {
			time.Sleep(c.minDelay - elapsed)
		}
	}
	c.lastCall = time.Now()
	c.mu.Unlock()

	vectors, err := c.do(ctx, c.cfg.ModelName, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrEmbedder, err)
	}
	return vectors, nil
}

// deterministic is a hash-based embedder with no external calls, used
// in tests and as a degraded-mode fallback. It hashes byte 3-grams
// into a fixed-size vector and optionally L2-normalizes the result.
type deterministic struct {
	dim       int
	normalize bool
	seed      uint64
}

// NewDeterministic constructs a deterministic embedder of the given
// dimension (default 64 when dim <= 0).
func NewDeterministic(dim int, normalize bool, seed uint64) Embedder {
	if dim <= 0 {
		dim = 64
	}
	return &deterministic{dim: dim, normalize: normalize, seed: seed}
}

func (d *deterministic) Name() string   { return "deterministic" }
func (d *deterministic) Dimension() int { return d.dim }

func (d *deterministic) Ping(_ context.Context) error { return nil }

func (d *deterministic) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = d.embedOne(t)
	}
	return out, nil
}

func (d *deterministic) embedOne(s string) []float32 {
	v := make([]float32, d.dim)
	b := []byte(s)
	if len(b) == 0 {
		return v
	}
	if len(b) < 3 {
		addGram(d.seed, b, v)
	} else {
		for i := 0; i <= len(b)-3; i++ {
			addGram(d.seed, b[i:i+3], v)
		}
	}
	if d.normalize {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		if sum > 0 {
			inv := float32(1.0 / math.Sqrt(sum))
			for i := range v {
				v[i] *= inv
			}
		}
	}
	return v
}

func addGram(seed uint64, gram []byte, v []float32) {
	h := fnv.New64a()
	if seed != 0 {
		var tmp [8]byte
		for i := 0; i < 8; i++ {
			tmp[i] = byte(seed >> (8 * i))
		}
		_, _ = h.Write(tmp[:])
	}
	_, _ = h.Write(gram)
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	w := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += w
}

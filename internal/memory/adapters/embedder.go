package adapters

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"

	"github.com/antigravity/cogmem/internal/memory"
)

// embeddingCache is a never-invalidated concurrent text-hash -> vector cache
// owned by the Embedder adapter (design note §9; grounded on
// internal/memory/store.go's ShortTermStore RWMutex shape). It has no size
// limit: every distinct text embedded stays cached for the adapter's lifetime.
type embeddingCache struct {
	mu sync.RWMutex
	m  map[string][]float32
}

func newEmbeddingCache() *embeddingCache { return &embeddingCache{m: make(map[string][]float32)} }

func hashKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (c *embeddingCache) get(text string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[hashKey(text)]
	return v, ok
}

func (c *embeddingCache) put(text string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[hashKey(text)] = vec
}

// GeminiEmbedder generates embeddings via the Gemini embedContent endpoint,
// adapted directly from the teacher's internal/memory/embedder.go, wrapped
// with the embedding cache and a cosine Similarity so it satisfies
// memory.Embedder.
type GeminiEmbedder struct {
	apiKey string
	model  string
	dim    int
	client *http.Client
	cache  *embeddingCache
}

// NewGeminiEmbedder creates a Gemini-backed embedder. dim is the declared
// dimension D for this deployment (text-embedding-004 is 768).
func NewGeminiEmbedder(apiKey string, dim int) *GeminiEmbedder {
	if dim <= 0 {
		dim = 768
	}
	return &GeminiEmbedder{
		apiKey: apiKey,
		model:  "text-embedding-004",
		dim:    dim,
		client: &http.Client{},
		cache:  newEmbeddingCache(),
	}
}

func (e *GeminiEmbedder) Dimension() int { return e.dim }

type embeddingRequest struct {
	Model   string `json:"model"`
	Content struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"content"`
}

type embeddingResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed generates an embedding for text, serving from cache when present.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}
	if v, ok := e.cache.get(text); ok {
		return v, nil
	}

	url := fmt.Sprintf(
		"https://generativelanguage.googleapis.com/v1beta/models/%s:embedContent?key=%s",
		e.model, e.apiKey,
	)

	reqBody := embeddingRequest{Model: fmt.Sprintf("models/%s", e.model)}
	reqBody.Content.Parts = []struct {
		Text string `json:"text"`
	}{{Text: text}}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var embedResp embeddingResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if embedResp.Error != nil {
		return nil, fmt.Errorf("embedding API error: %s", embedResp.Error.Message)
	}

	e.cache.put(text, embedResp.Embedding.Values)
	return embedResp.Embedding.Values, nil
}

// EmbedBatch embeds each text in turn (spec C1; the Python original and the
// teacher's EmbedBatch both loop-call Embed — no batched endpoint is used).
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		results[i] = v
	}
	return results, nil
}

// Similarity returns cosine similarity rescaled to [0,1] (spec §6.1: "cosine
// is typical but the core must not assume it" — this adapter's choice, not
// an engine-level assumption).
func (e *GeminiEmbedder) Similarity(ctx context.Context, a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0, nil
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return (cos + 1) / 2, nil
}

var _ memory.Embedder = (*GeminiEmbedder)(nil)

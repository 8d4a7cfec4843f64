package rag

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Embedder turns text into a unit vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// hashEmbedder is a deterministic local embedder using feature hashing over
// word unigrams and bigrams. No external service, stable across runs, good
// enough for lexical-overlap retrieval and for tests.
type hashEmbedder struct {
	dim int
}

// NewHashEmbedder returns a deterministic embedder of the given dimension.
func NewHashEmbedder(dimension int) Embedder {
	if dimension <= 0 {
		dimension = 256
	}
	return hashEmbedder{dim: dimension}
}

func (e hashEmbedder) Dimension() int { return e.dim }

func (e hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	words := strings.Fields(strings.ToLower(text))
	for i, w := range words {
		addFeature(vec, w)
		if i+1 < len(words) {
			addFeature(vec, w+" "+words[i+1])
		}
	}
	l2normalize(vec)
	return vec, nil
}

func addFeature(vec []float32, feature string) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum32()
	idx := int(sum % uint32(len(vec)))
	// Sign from a high bit spreads features across both directions.
	if sum&0x80000000 != 0 {
		vec[idx] -= 1
	} else {
		vec[idx] += 1
	}
}

func l2normalize(v []float32) {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range v {
		v[i] *= inv
	}
}

// openaiEmbedder calls an OpenAI-compatible embedding endpoint, typically a
// locally hosted embedding server.
type openaiEmbedder struct {
	client *openai.Client
	model  string
	dim    int
}

// NewOpenAIEmbedder builds an embedder backed by an OpenAI-compatible API.
// baseURL may point at a local server; apiKey may be empty for such servers.
func NewOpenAIEmbedder(baseURL, apiKey, model string, dimension int) Embedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if dimension <= 0 {
		dimension = 1536
	}
	return &openaiEmbedder{client: openai.NewClientWithConfig(cfg), model: model, dim: dimension}
}

func (e *openaiEmbedder) Dimension() int { return e.dim }

func (e *openaiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New("cannot embed empty text")
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}
	v := make([]float32, len(resp.Data[0].Embedding))
	copy(v, resp.Data[0].Embedding)
	l2normalize(v)
	return v, nil
}

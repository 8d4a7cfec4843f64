package rag

import (
	"context"
	"time"

	"github.com/dlorp/synapse-engine-sub002/internal/tokens"
)

// Retriever is the retrieval contract the corrective controller drives.
type Retriever interface {
	// Retrieve runs one retrieval pass within the given token budget.
	// Partial and empty results are valid, non-error outcomes.
	Retrieve(ctx context.Context, query string, tokenBudget, maxArtifacts int) (RetrievalResult, error)
	// ScoreAgainst scores external chunks against the query, returning
	// copies with RelevanceScore set.
	ScoreAgainst(ctx context.Context, query string, chunks []DocumentChunk) ([]DocumentChunk, error)
}

// VectorRetriever retrieves chunks from an in-memory vector index.
type VectorRetriever struct {
	index        *Index
	embedder     Embedder
	counter      tokens.Counter
	minRelevance float64
	topK         int
}

// NewVectorRetriever wires a retriever. topK bounds the candidate pool and
// must be at least the largest maxArtifacts callers will ask for.
func NewVectorRetriever(index *Index, embedder Embedder, counter tokens.Counter, minRelevance float64, topK int) *VectorRetriever {
	if topK <= 0 {
		topK = 24
	}
	return &VectorRetriever{
		index:        index,
		embedder:     embedder,
		counter:      counter,
		minRelevance: minRelevance,
		topK:         topK,
	}
}

// Retrieve embeds the query, searches the index, normalizes scores, filters
// by minimum relevance and greedily packs chunks into the token budget.
func (r *VectorRetriever) Retrieve(ctx context.Context, query string, tokenBudget, maxArtifacts int) (RetrievalResult, error) {
	start := time.Now()
	if r.index.Size() == 0 {
		return RetrievalResult{RetrievalTimeMs: time.Since(start).Milliseconds()}, nil
	}
	qvec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return RetrievalResult{}, err
	}
	k := r.topK
	if k < maxArtifacts {
		k = maxArtifacts
	}
	candidates := r.index.Search(qvec, k)

	scored := make([]DocumentChunk, 0, len(candidates))
	topScores := make([]float64, 0, len(candidates))
	for _, c := range candidates {
		rel := normalizeScore(c.score)
		topScores = append(topScores, rel)
		if rel < r.minRelevance {
			continue
		}
		chunk := c.chunk
		chunk.RelevanceScore = rel
		scored = append(scored, chunk)
	}

	artifacts, used := packChunks(scored, r.counter, tokenBudget, maxArtifacts)
	return RetrievalResult{
		Artifacts:            artifacts,
		TokensUsed:           used,
		RetrievalTimeMs:      time.Since(start).Milliseconds(),
		CandidatesConsidered: len(candidates),
		TopScores:            topScores,
	}, nil
}

// ScoreAgainst embeds the query once and scores each chunk's content.
func (r *VectorRetriever) ScoreAgainst(ctx context.Context, query string, chunks []DocumentChunk) ([]DocumentChunk, error) {
	qvec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]DocumentChunk, 0, len(chunks))
	for _, ch := range chunks {
		cvec, err := r.embedder.Embed(ctx, ch.Content)
		if err != nil {
			return nil, err
		}
		scored := ch
		scored.RelevanceScore = normalizeScore(cosineSimilarity(qvec, cvec))
		out = append(out, scored)
	}
	return out, nil
}

// normalizeScore maps cosine similarity [-1,1] onto relevance [0,1].
func normalizeScore(cos float32) float64 {
	rel := (float64(cos) + 1) / 2
	if rel < 0 {
		rel = 0
	}
	if rel > 1 {
		rel = 1
	}
	return rel
}

// packChunks greedily packs chunks (assumed sorted by descending relevance)
// into the token budget. A chunk that alone exceeds the remaining budget is
// skipped rather than truncated, so chunk semantics stay intact.
func packChunks(chunks []DocumentChunk, counter tokens.Counter, tokenBudget, maxArtifacts int) ([]DocumentChunk, int) {
	var packed []DocumentChunk
	used := 0
	for _, ch := range chunks {
		if maxArtifacts > 0 && len(packed) >= maxArtifacts {
			break
		}
		n := counter.Count(ch.Content)
		if used+n > tokenBudget {
			continue
		}
		packed = append(packed, ch)
		used += n
	}
	return packed, used
}

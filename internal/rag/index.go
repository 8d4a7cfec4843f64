package rag

import (
	"math"
	"sort"
	"sync"
)

// Index is an in-memory vector index over document chunks. Brute-force
// cosine search; fine for the corpus sizes a single node serves.
type Index struct {
	mu     sync.RWMutex
	chunks []DocumentChunk
	vecs   [][]float32
	dim    int
}

// NewIndex creates an empty index for vectors of the given dimension.
func NewIndex(dimension int) *Index {
	return &Index{dim: dimension}
}

// Add appends a chunk with its embedding. Vectors of the wrong dimension
// are rejected silently by Search, so Add validates up front.
func (ix *Index) Add(chunk DocumentChunk, vec []float32) bool {
	if len(vec) != ix.dim {
		return false
	}
	ix.mu.Lock()
	ix.chunks = append(ix.chunks, chunk)
	ix.vecs = append(ix.vecs, vec)
	ix.mu.Unlock()
	return true
}

// Size returns the number of indexed chunks.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chunks)
}

// scoredChunk pairs a chunk with its raw cosine similarity.
type scoredChunk struct {
	chunk DocumentChunk
	score float32
}

// Search returns the topK most similar chunks, highest first. An empty
// index yields an empty slice, not an error.
func (ix *Index) Search(query []float32, topK int) []scoredChunk {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if len(query) != ix.dim || len(ix.chunks) == 0 {
		return nil
	}
	results := make([]scoredChunk, 0, len(ix.chunks))
	for i := range ix.chunks {
		results = append(results, scoredChunk{
			chunk: ix.chunks[i],
			score: cosineSimilarity(query, ix.vecs[i]),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results
}

// cosineSimilarity returns a value in [-1, 1]; 1 means identical direction.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}

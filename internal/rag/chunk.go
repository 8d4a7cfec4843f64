// Package rag implements the retrieval pipeline: chunk indexing, vector
// search, query expansion and the corrective controller that gates fallback
// branches on retrieval confidence.
package rag

import "time"

// LanguageWeb marks chunks derived from web search results.
const LanguageWeb = "web"

// DocumentChunk is one retrievable unit of source content. Immutable once
// scored; created by the indexer or the web augmenter.
type DocumentChunk struct {
	// Source file path, or URL for web-derived chunks.
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
	// Position of this chunk within its source.
	ChunkIndex int `json:"chunk_index"`
	// Character offsets into the source.
	StartPos int `json:"start_pos"`
	EndPos   int `json:"end_pos"`
	// Source language tag, or "web" for search-derived chunks.
	Language     string    `json:"language"`
	ModifiedTime time.Time `json:"modified_time"`
	// Normalized relevance in [0,1], set by scoring.
	RelevanceScore float64 `json:"relevance_score"`
}

// RetrievalResult is the output of one retrieval pass. Never mutated after
// construction.
type RetrievalResult struct {
	// Scored chunks in descending relevance order.
	Artifacts []DocumentChunk
	// Sum of artifact token counts; never exceeds the requested budget.
	TokensUsed      int
	RetrievalTimeMs int64
	// Raw candidate count before relevance filtering.
	CandidatesConsidered int
	// Diagnostic: scores of the top candidates before packing.
	TopScores []float64
}

// TopScore returns the best relevance score, or 0 for an empty result.
func (r RetrievalResult) TopScore() float64 {
	if len(r.TopScores) == 0 {
		return 0
	}
	return r.TopScores[0]
}

// Action records which corrective branch, if any, a retrieval took.
type Action string

const (
	ActionNone     Action = "none"
	ActionExpanded Action = "expanded"
	ActionWebAug   Action = "web_augmented"
)

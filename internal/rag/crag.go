package rag

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/dlorp/synapse-engine-sub002/internal/tokens"
)

// Relevance classifies one retrieval pass by its top score.
type Relevance int

const (
	Relevant Relevance = iota
	Partial
	Irrelevant
)

func (r Relevance) String() string {
	switch r {
	case Relevant:
		return "relevant"
	case Partial:
		return "partial"
	default:
		return "irrelevant"
	}
}

// RetrieveOptions tunes one corrective retrieval call.
type RetrieveOptions struct {
	TokenBudget  int
	MaxArtifacts int
	// Skip the web-search branch even when the local result is irrelevant.
	NoWebFallback bool
}

// Controller implements corrective retrieval: a linear three-branch decision
// over one base retrieval pass. At most one corrective action runs per call,
// bounding latency and preventing query drift.
type Controller struct {
	retriever Retriever
	expander  QueryExpander
	augmenter WebAugmenter
	counter   tokens.Counter
	// Top-score thresholds splitting relevant / partial / irrelevant.
	relevantAbove   float64
	irrelevantBelow float64
	log             zerolog.Logger
}

// NewController wires the corrective controller. augmenter may be nil when
// web fallback is disabled for the deployment.
func NewController(retriever Retriever, expander QueryExpander, augmenter WebAugmenter, counter tokens.Counter, relevantAbove, irrelevantBelow float64, log zerolog.Logger) *Controller {
	return &Controller{
		retriever:       retriever,
		expander:        expander,
		augmenter:       augmenter,
		counter:         counter,
		relevantAbove:   relevantAbove,
		irrelevantBelow: irrelevantBelow,
		log:             log,
	}
}

func (c *Controller) classify(res RetrievalResult) Relevance {
	if len(res.Artifacts) == 0 {
		return Irrelevant
	}
	top := res.TopScore()
	switch {
	case top >= c.relevantAbove:
		return Relevant
	case top >= c.irrelevantBelow:
		return Partial
	default:
		return Irrelevant
	}
}

// Retrieve runs the base retrieval, classifies its confidence and takes at
// most one corrective action. Retrieval errors propagate; corrective-branch
// failures degrade to the base result.
func (c *Controller) Retrieve(ctx context.Context, query string, opts RetrieveOptions) (RetrievalResult, Action, error) {
	base, err := c.retriever.Retrieve(ctx, query, opts.TokenBudget, opts.MaxArtifacts)
	if err != nil {
		return RetrievalResult{}, ActionNone, err
	}

	switch c.classify(base) {
	case Relevant:
		correctiveActions.WithLabelValues(string(ActionNone)).Inc()
		return base, ActionNone, nil

	case Partial:
		result := c.expandAndRetry(ctx, query, base, opts)
		correctiveActions.WithLabelValues(string(ActionExpanded)).Inc()
		return result, ActionExpanded, nil

	default:
		if opts.NoWebFallback || c.augmenter == nil {
			correctiveActions.WithLabelValues(string(ActionNone)).Inc()
			return base, ActionNone, nil
		}
		result := c.webAugment(ctx, query, base, opts)
		correctiveActions.WithLabelValues(string(ActionWebAug)).Inc()
		return result, ActionWebAug, nil
	}
}

// expandAndRetry reruns retrieval once with the expanded query and adopts
// the new result only if its top score improved.
func (c *Controller) expandAndRetry(ctx context.Context, query string, base RetrievalResult, opts RetrieveOptions) RetrievalResult {
	expanded := c.expander.Expand(query)
	if expanded == query {
		return base
	}
	retry, err := c.retriever.Retrieve(ctx, expanded, opts.TokenBudget, opts.MaxArtifacts)
	if err != nil {
		c.log.Warn().Err(err).Msg("expanded retrieval failed, keeping base result")
		return base
	}
	if retry.TopScore() > base.TopScore() {
		c.log.Debug().Str("expanded", expanded).
			Float64("base_top", base.TopScore()).Float64("retry_top", retry.TopScore()).
			Msg("adopting expanded retrieval")
		return retry
	}
	return base
}

// webAugment fetches external chunks, scores them against the query and
// merges them with the local candidates. Search failure is logged and the
// base result stands; this branch must never raise.
func (c *Controller) webAugment(ctx context.Context, query string, base RetrievalResult, opts RetrieveOptions) RetrievalResult {
	webChunks, err := c.augmenter.Augment(ctx, query)
	if err != nil {
		c.log.Warn().Err(err).Msg("web augmentation failed, keeping base result")
		return base
	}
	if len(webChunks) == 0 {
		return base
	}
	scored, err := c.retriever.ScoreAgainst(ctx, query, webChunks)
	if err != nil {
		c.log.Warn().Err(err).Msg("web chunk scoring failed, keeping base result")
		return base
	}

	merged := append(append([]DocumentChunk{}, base.Artifacts...), scored...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].RelevanceScore > merged[j].RelevanceScore
	})
	topScores := make([]float64, 0, len(merged))
	for _, ch := range merged {
		topScores = append(topScores, ch.RelevanceScore)
	}

	// Repack within the original budget so the merged set still honors it.
	artifacts, used := packChunks(merged, c.counter, opts.TokenBudget, opts.MaxArtifacts)
	return RetrievalResult{
		Artifacts:            artifacts,
		TokensUsed:           used,
		RetrievalTimeMs:      base.RetrievalTimeMs,
		CandidatesConsidered: base.CandidatesConsidered + len(webChunks),
		TopScores:            topScores,
	}
}

package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dlorp/synapse-engine-sub002/internal/tokens"
)

type fakeRetriever struct {
	results     []RetrievalResult
	retrieveErr error
	calls       int
	queries     []string
	scoreCalls  int
	scoreValue  float64
	scoreErr    error
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, _, _ int) (RetrievalResult, error) {
	f.calls++
	f.queries = append(f.queries, query)
	if f.retrieveErr != nil {
		return RetrievalResult{}, f.retrieveErr
	}
	i := f.calls - 1
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return f.results[i], nil
}

func (f *fakeRetriever) ScoreAgainst(_ context.Context, _ string, chunks []DocumentChunk) ([]DocumentChunk, error) {
	f.scoreCalls++
	if f.scoreErr != nil {
		return nil, f.scoreErr
	}
	out := make([]DocumentChunk, 0, len(chunks))
	for _, ch := range chunks {
		ch.RelevanceScore = f.scoreValue
		out = append(out, ch)
	}
	return out, nil
}

type fakeExpander struct {
	out   string
	calls int
}

func (f *fakeExpander) Expand(query string) string {
	f.calls++
	if f.out == "" {
		return query
	}
	return f.out
}

type fakeAugmenter struct {
	chunks []DocumentChunk
	err    error
	calls  int
}

func (f *fakeAugmenter) Augment(context.Context, string) ([]DocumentChunk, error) {
	f.calls++
	return f.chunks, f.err
}

func result(scores ...float64) RetrievalResult {
	var arts []DocumentChunk
	for i, s := range scores {
		arts = append(arts, DocumentChunk{
			FilePath:       "doc.md",
			Content:        "chunk content",
			ChunkIndex:     i,
			RelevanceScore: s,
		})
	}
	return RetrievalResult{Artifacts: arts, TopScores: scores}
}

func newTestController(r Retriever, e QueryExpander, a WebAugmenter) *Controller {
	return NewController(r, e, a, tokens.NewHeuristicCounter(), 0.7, 0.45, zerolog.Nop())
}

func TestControllerRelevantAcceptsBase(t *testing.T) {
	ret := &fakeRetriever{results: []RetrievalResult{result(0.9, 0.8)}}
	exp := &fakeExpander{}
	aug := &fakeAugmenter{}
	c := newTestController(ret, exp, aug)

	res, action, err := c.Retrieve(context.Background(), "how do goroutines work", RetrieveOptions{TokenBudget: 100, MaxArtifacts: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action != ActionNone {
		t.Fatalf("action = %q, want %q", action, ActionNone)
	}
	if ret.calls != 1 {
		t.Fatalf("retriever called %d times, want 1", ret.calls)
	}
	if exp.calls != 0 || aug.calls != 0 {
		t.Fatalf("corrective branches ran on a relevant result (expander=%d augmenter=%d)", exp.calls, aug.calls)
	}
	if res.TopScore() != 0.9 {
		t.Fatalf("top score = %v, want 0.9", res.TopScore())
	}
}

func TestControllerPartialAdoptsImprovedRetry(t *testing.T) {
	ret := &fakeRetriever{results: []RetrievalResult{result(0.5), result(0.65)}}
	exp := &fakeExpander{out: "fix bug repair resolve"}
	c := newTestController(ret, exp, &fakeAugmenter{})

	res, action, err := c.Retrieve(context.Background(), "fix bug", RetrieveOptions{TokenBudget: 100, MaxArtifacts: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action != ActionExpanded {
		t.Fatalf("action = %q, want %q", action, ActionExpanded)
	}
	if ret.calls != 2 {
		t.Fatalf("retriever called %d times, want 2", ret.calls)
	}
	if ret.queries[1] != "fix bug repair resolve" {
		t.Fatalf("retry query = %q, want expanded form", ret.queries[1])
	}
	if res.TopScore() != 0.65 {
		t.Fatalf("top score = %v, want improved retry 0.65", res.TopScore())
	}
}

func TestControllerPartialKeepsBaseWhenRetryWorse(t *testing.T) {
	ret := &fakeRetriever{results: []RetrievalResult{result(0.5), result(0.4)}}
	exp := &fakeExpander{out: "fix bug repair"}
	c := newTestController(ret, exp, &fakeAugmenter{})

	res, action, err := c.Retrieve(context.Background(), "fix bug", RetrieveOptions{TokenBudget: 100, MaxArtifacts: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action != ActionExpanded {
		t.Fatalf("action = %q, want %q", action, ActionExpanded)
	}
	if res.TopScore() != 0.5 {
		t.Fatalf("top score = %v, want base 0.5", res.TopScore())
	}
}

func TestControllerPartialSkipsRetryWhenExpansionIsIdentity(t *testing.T) {
	ret := &fakeRetriever{results: []RetrievalResult{result(0.5)}}
	exp := &fakeExpander{} // returns the query unchanged
	c := newTestController(ret, exp, &fakeAugmenter{})

	res, _, err := c.Retrieve(context.Background(), "unmatched terms", RetrieveOptions{TokenBudget: 100, MaxArtifacts: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ret.calls != 1 {
		t.Fatalf("retriever called %d times, want 1 (no retry for identity expansion)", ret.calls)
	}
	if res.TopScore() != 0.5 {
		t.Fatalf("top score = %v, want base 0.5", res.TopScore())
	}
}

func TestControllerIrrelevantRunsWebFallbackOnce(t *testing.T) {
	ret := &fakeRetriever{
		results:    []RetrievalResult{result(0.2)},
		scoreValue: 0.8,
	}
	aug := &fakeAugmenter{chunks: []DocumentChunk{
		{FilePath: "https://example.com/a", Content: "web snippet", Language: LanguageWeb},
	}}
	c := newTestController(ret, &fakeExpander{}, aug)

	res, action, err := c.Retrieve(context.Background(), "obscure topic", RetrieveOptions{TokenBudget: 100, MaxArtifacts: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action != ActionWebAug {
		t.Fatalf("action = %q, want %q", action, ActionWebAug)
	}
	if aug.calls != 1 {
		t.Fatalf("augmenter called %d times, want exactly 1", aug.calls)
	}
	if ret.scoreCalls != 1 {
		t.Fatalf("ScoreAgainst called %d times, want 1", ret.scoreCalls)
	}
	if len(res.Artifacts) == 0 {
		t.Fatal("merged result has no artifacts")
	}
	if res.Artifacts[0].RelevanceScore != 0.8 {
		t.Fatalf("merged result not sorted by relevance, top = %v", res.Artifacts[0].RelevanceScore)
	}
}

func TestControllerNoWebFallbackOption(t *testing.T) {
	ret := &fakeRetriever{results: []RetrievalResult{result(0.2)}}
	aug := &fakeAugmenter{}
	c := newTestController(ret, &fakeExpander{}, aug)

	_, action, err := c.Retrieve(context.Background(), "obscure topic", RetrieveOptions{TokenBudget: 100, MaxArtifacts: 4, NoWebFallback: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action != ActionNone {
		t.Fatalf("action = %q, want %q", action, ActionNone)
	}
	if aug.calls != 0 {
		t.Fatalf("augmenter ran despite NoWebFallback")
	}
}

func TestControllerEmptyResultIsIrrelevant(t *testing.T) {
	ret := &fakeRetriever{results: []RetrievalResult{{}}, scoreValue: 0.6}
	aug := &fakeAugmenter{chunks: []DocumentChunk{{FilePath: "https://example.com", Content: "hit", Language: LanguageWeb}}}
	c := newTestController(ret, &fakeExpander{}, aug)

	res, action, err := c.Retrieve(context.Background(), "nothing indexed", RetrieveOptions{TokenBudget: 100, MaxArtifacts: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action != ActionWebAug {
		t.Fatalf("action = %q, want %q for empty base", action, ActionWebAug)
	}
	if len(res.Artifacts) != 1 {
		t.Fatalf("artifacts = %d, want the web chunk", len(res.Artifacts))
	}
}

func TestControllerWebFailureDegradesToBase(t *testing.T) {
	ret := &fakeRetriever{results: []RetrievalResult{result(0.2)}}
	aug := &fakeAugmenter{err: errors.New("search down")}
	c := newTestController(ret, &fakeExpander{}, aug)

	res, action, err := c.Retrieve(context.Background(), "obscure topic", RetrieveOptions{TokenBudget: 100, MaxArtifacts: 4})
	if err != nil {
		t.Fatalf("web failure must not fail the retrieval: %v", err)
	}
	if action != ActionWebAug {
		t.Fatalf("action = %q, want %q", action, ActionWebAug)
	}
	if res.TopScore() != 0.2 {
		t.Fatalf("top score = %v, want base result kept", res.TopScore())
	}
}

func TestControllerRetrievalErrorPropagates(t *testing.T) {
	ret := &fakeRetriever{retrieveErr: errors.New("embedder offline")}
	c := newTestController(ret, &fakeExpander{}, &fakeAugmenter{})

	_, _, err := c.Retrieve(context.Background(), "anything", RetrieveOptions{TokenBudget: 100, MaxArtifacts: 4})
	if err == nil {
		t.Fatal("expected base retrieval error to propagate")
	}
}

func TestControllerNilAugmenterSkipsWebBranch(t *testing.T) {
	ret := &fakeRetriever{results: []RetrievalResult{result(0.2)}}
	c := newTestController(ret, &fakeExpander{}, nil)

	_, action, err := c.Retrieve(context.Background(), "obscure topic", RetrieveOptions{TokenBudget: 100, MaxArtifacts: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action != ActionNone {
		t.Fatalf("action = %q, want %q with nil augmenter", action, ActionNone)
	}
}

// Package routing scores query complexity and maps scores onto model tiers.
package routing

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dlorp/synapse-engine-sub002/pkg/types"
)

// Classification labels a query's assessed complexity.
type Classification string

const (
	Simple   Classification = "SIMPLE"
	Moderate Classification = "MODERATE"
	Complex  Classification = "COMPLEX"
)

// Score bounds for the assessor; matched weights are clamped into this range.
const (
	minScore = 0.0
	maxScore = 15.0
)

// Assessment is the full result of one complexity evaluation.
type Assessment struct {
	Score          float64
	Classification Classification
	Tier           types.Tier
	Reasoning      string
}

// Thresholds is the tier boundary table. Evaluated ascending with inclusive
// upper bounds, so a score exactly on a boundary takes the cheaper tier.
type Thresholds struct {
	FastMax     float64
	BalancedMax float64
}

// indicator is one weighted pattern contributing to the score.
type indicator struct {
	name   string
	re     *regexp.Regexp
	weight float64
}

var simpleIndicators = []indicator{
	{"what-is", regexp.MustCompile(`\bwhat is\b`), -1.0},
	{"where-is", regexp.MustCompile(`\bwhere is\b`), -1.0},
	{"lookup", regexp.MustCompile(`\b(find|list|show|lookup)\b`), -1.0},
	{"definition", regexp.MustCompile(`\b(define|meaning of)\b`), -1.0},
}

var moderateIndicators = []indicator{
	{"how-why", regexp.MustCompile(`\b(how|why)\b`), 2.0},
	{"debug", regexp.MustCompile(`\b(debug|fix|troubleshoot)\b`), 2.0},
	{"summarize", regexp.MustCompile(`\b(summarize|summarise|describe)\b`), 2.0},
	{"usage", regexp.MustCompile(`\b(use|usage|example of)\b`), 1.5},
}

var complexIndicators = []indicator{
	{"refactor", regexp.MustCompile(`\brefactor\b`), 3.0},
	{"optimize", regexp.MustCompile(`\b(optimi[sz]e|performance tun)`), 3.0},
	{"architecture", regexp.MustCompile(`\b(architect|design pattern|trade-?off)\b`), 3.0},
	{"implement", regexp.MustCompile(`\b(implement|build|write .*(code|function|class))\b`), 3.0},
	{"analyze", regexp.MustCompile(`\b(analy[sz]e|compare|evaluate|prove)\b`), 3.0},
	{"review", regexp.MustCompile(`\b(review|audit)\b`), 2.5},
}

// Assessor scores queries and maps them to tiers. Construct once; safe for
// concurrent use (all state is read-only after construction).
type Assessor struct {
	thresholds Thresholds
	decisions  *DecisionLog
}

// NewAssessor builds an assessor over the given boundary table. The decision
// log records every assessment for the status endpoint.
func NewAssessor(t Thresholds, decisions *DecisionLog) *Assessor {
	return &Assessor{thresholds: t, decisions: decisions}
}

// Assess never fails: malformed or empty input yields the lowest tier.
func (a *Assessor) Assess(query string) Assessment {
	q := strings.ToLower(query)
	var score float64
	var reasons []string

	if strings.TrimSpace(query) == "" {
		out := a.finish(query, minScore, []string{"empty query"})
		return out
	}

	for _, set := range [][]indicator{simpleIndicators, moderateIndicators, complexIndicators} {
		for _, ind := range set {
			if ind.re.MatchString(q) {
				score += ind.weight
				reasons = append(reasons, ind.name)
			}
		}
	}

	// Structural heuristics.
	wc := len(strings.Fields(query))
	switch {
	case wc > 120:
		score += 3.0
		reasons = append(reasons, fmt.Sprintf("long query (%d words)", wc))
	case wc > 40:
		score += 2.0
		reasons = append(reasons, fmt.Sprintf("medium-length query (%d words)", wc))
	}
	if strings.Contains(query, "```") {
		score += 3.0
		reasons = append(reasons, "code block")
	}
	if strings.Count(query, "?") >= 2 {
		score += 1.5
		reasons = append(reasons, "multi-part question")
	}
	if enumeratedRe.MatchString(query) {
		score += 1.5
		reasons = append(reasons, "enumerated parts")
	}

	return a.finish(query, score, reasons)
}

var enumeratedRe = regexp.MustCompile(`(?m)^\s*\d+[.)]\s`)

func (a *Assessor) finish(query string, score float64, reasons []string) Assessment {
	if score < minScore {
		score = minScore
	}
	if score > maxScore {
		score = maxScore
	}
	tier, class := a.mapTier(score)
	sort.Strings(reasons)
	out := Assessment{
		Score:          score,
		Classification: class,
		Tier:           tier,
		Reasoning:      fmt.Sprintf("score %.1f: %s", score, strings.Join(reasons, ", ")),
	}
	routingDecisions.WithLabelValues(string(tier)).Inc()
	if a.decisions != nil {
		a.decisions.Record(query, out)
	}
	return out
}

// mapTier is the monotonic threshold lookup, ascending with inclusive
// upper bounds.
func (a *Assessor) mapTier(score float64) (types.Tier, Classification) {
	switch {
	case score <= a.thresholds.FastMax:
		return types.TierFast, Simple
	case score <= a.thresholds.BalancedMax:
		return types.TierBalanced, Moderate
	default:
		return types.TierPowerful, Complex
	}
}

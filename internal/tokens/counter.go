// Package tokens counts and truncates text against model context budgets.
package tokens

import (
	"strings"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// Counter measures text in model-context tokens.
type Counter interface {
	Count(text string) int
	// Truncate returns a prefix of text that fits within max tokens.
	Truncate(text string, max int) string
}

// NewCounter returns a BPE-backed counter when the cl100k encoding is
// available, otherwise a character-based estimator.
func NewCounter() Counter {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return heuristicCounter{}
	}
	return bpeCounter{codec: codec}
}

type bpeCounter struct {
	codec tokenizer.Codec
}

func (c bpeCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return heuristicCounter{}.Count(text)
	}
	return len(ids)
}

func (c bpeCounter) Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	_, toks, err := c.codec.Encode(text)
	if err != nil {
		return heuristicCounter{}.Truncate(text, max)
	}
	if len(toks) <= max {
		return text
	}
	return strings.Join(toks[:max], "")
}

// heuristicCounter approximates tokens as ~4 characters each.
type heuristicCounter struct{}

func (heuristicCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

func (heuristicCounter) Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	limit := max * 4
	if len(text) <= limit {
		return text
	}
	// Back off to a rune boundary; cutting mid-rune would corrupt the text.
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit]
}

// NewHeuristicCounter exposes the estimator for tests and deployments that
// must not load BPE vocabularies.
func NewHeuristicCounter() Counter { return heuristicCounter{} }

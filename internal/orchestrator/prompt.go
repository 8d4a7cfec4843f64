package orchestrator

import (
	"strings"

	"github.com/dlorp/synapse-engine-sub002/internal/config"
	"github.com/dlorp/synapse-engine-sub002/internal/rag"
	"github.com/dlorp/synapse-engine-sub002/internal/tokens"
)

// assemblePrompt composes the final prompt: system instructions held to the
// system budget, then retrieved context, then the user query. Context chunks
// arrive already packed within the context budget, so no truncation happens
// here beyond the system segment.
func assemblePrompt(counter tokens.Counter, budgets config.BudgetConfig, systemPrompt string, chunks []rag.DocumentChunk, query string) string {
	var b strings.Builder

	if systemPrompt != "" {
		if counter.Count(systemPrompt) > budgets.System {
			systemPrompt = counter.Truncate(systemPrompt, budgets.System)
		}
		b.WriteString(systemPrompt)
		b.WriteString("\n\n")
	}

	if len(chunks) > 0 {
		b.WriteString("### Context\n\n")
		for _, c := range chunks {
			b.WriteString("[source: ")
			b.WriteString(c.FilePath)
			b.WriteString("]\n")
			b.WriteString(c.Content)
			b.WriteString("\n\n")
		}
	}

	b.WriteString("### Query\n\n")
	b.WriteString(query)
	return b.String()
}

package rag

import (
	"sort"
	"strings"
)

// QueryExpander rewrites a query for a retry retrieval pass.
type QueryExpander interface {
	Expand(query string) string
}

// maxSynonymsPerTerm bounds how many synonyms one matched term contributes.
const maxSynonymsPerTerm = 3

// synonymTable maps lowercase query terms to domain synonyms. Deliberately
// small and local: expansion is a cheap lexical nudge, not a thesaurus.
var synonymTable = map[string][]string{
	"bug":       {"defect", "error", "fault"},
	"error":     {"failure", "fault", "exception"},
	"fix":       {"repair", "resolve", "patch"},
	"crash":     {"panic", "abort", "segfault"},
	"slow":      {"latency", "performance", "bottleneck"},
	"fast":      {"performance", "speed", "latency"},
	"config":    {"configuration", "settings", "options"},
	"settings":  {"configuration", "config", "options"},
	"install":   {"setup", "deploy", "provision"},
	"delete":    {"remove", "drop", "purge"},
	"create":    {"add", "build", "generate"},
	"function":  {"method", "procedure", "routine"},
	"auth":      {"authentication", "login", "credentials"},
	"login":     {"authentication", "auth", "signin"},
	"db":        {"database", "storage", "store"},
	"database":  {"db", "storage", "store"},
	"test":      {"spec", "check", "verify"},
	"docs":      {"documentation", "manual", "guide"},
	"deploy":    {"release", "rollout", "ship"},
	"container": {"docker", "pod", "image"},
	"api":       {"endpoint", "interface", "service"},
	"timeout":   {"deadline", "expiry", "hang"},
	"memory":    {"ram", "heap", "allocation"},
	"thread":    {"goroutine", "concurrency", "worker"},
}

// localExpander implements QueryExpander with the static synonym table.
type localExpander struct{}

// NewLocalExpander returns the synonym-based expander.
func NewLocalExpander() QueryExpander { return localExpander{} }

// Expand returns the original terms plus up to maxSynonymsPerTerm synonyms
// for each matched term. The result is a set union: duplicates are not
// added, and added terms are appended in sorted order so the rewrite is
// deterministic.
func (localExpander) Expand(query string) string {
	terms := strings.Fields(query)
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		seen[strings.ToLower(t)] = true
	}
	var additions []string
	for _, t := range terms {
		syns, ok := synonymTable[strings.ToLower(strings.Trim(t, ".,!?;:"))]
		if !ok {
			continue
		}
		added := 0
		for _, s := range syns {
			if added >= maxSynonymsPerTerm {
				break
			}
			if seen[s] {
				continue
			}
			seen[s] = true
			additions = append(additions, s)
			added++
		}
	}
	if len(additions) == 0 {
		return query
	}
	sort.Strings(additions)
	return query + " " + strings.Join(additions, " ")
}

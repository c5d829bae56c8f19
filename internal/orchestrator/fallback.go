package orchestrator

import (
	"sort"
	"strings"
)

// Fallback maps task-type substrings to adapter names. It is consulted only
// when capability routing finds nothing, and it is matched in sorted
// substring order so resolution is deterministic.
type Fallback map[string]string

// DefaultFallback covers the common document-pipeline task families.
func DefaultFallback() Fallback {
	return Fallback{
		"cite":   "citations",
		"note":   "notes",
		"ocr":    "document",
		"scan":   "document",
		"search": "research",
		"summar": "summarizer",
	}
}

// Resolve returns the adapter name for the first matching substring.
func (f Fallback) Resolve(taskType string) (string, bool) {
	subs := make([]string, 0, len(f))
	for sub := range f {
		subs = append(subs, sub)
	}
	sort.Strings(subs)

	for _, sub := range subs {
		if strings.Contains(taskType, sub) {
			return f[sub], true
		}
	}
	return "", false
}

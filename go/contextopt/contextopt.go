// Package contextopt builds compact session-transfer prompts and
// caches file sections for context-window estimation.
package contextopt

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Bounds on the continuation prompt's inputs.
const (
	MaxActiveFiles     = 5
	MaxDecisions       = 3
	MaxNextSteps       = 3
	MaxCriticalContext = 200
)

// SessionSummary is the raw material of a continuation prompt.
type SessionSummary struct {
	TaskSummary     string
	ActiveFiles     []string
	Decisions       []string
	NextSteps       []string
	CriticalContext string
}

// ContinuationPrompt renders |s| as a compact transfer prompt: the
// bounded fields joined as sentences. The output is intended to carry
// a session across a context reset at a small fraction of its size.
func ContinuationPrompt(s SessionSummary) string {
	var sentences []string
	if t := strings.TrimSpace(s.TaskSummary); t != "" {
		sentences = append(sentences, "Task: "+t)
	}
	if files := capped(s.ActiveFiles, MaxActiveFiles); len(files) > 0 {
		sentences = append(sentences, "Active files: "+strings.Join(files, ", "))
	}
	if decisions := capped(s.Decisions, MaxDecisions); len(decisions) > 0 {
		sentences = append(sentences, "Decisions: "+strings.Join(decisions, "; "))
	}
	if steps := capped(s.NextSteps, MaxNextSteps); len(steps) > 0 {
		sentences = append(sentences, "Next steps: "+strings.Join(steps, "; "))
	}
	if critical := strings.TrimSpace(s.CriticalContext); critical != "" {
		if len(critical) > MaxCriticalContext {
			critical = critical[:MaxCriticalContext]
		}
		sentences = append(sentences, "Critical context: "+critical)
	}
	return strings.Join(sentences, ". ")
}

func capped(items []string, n int) []string {
	var out []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item == "" {
			continue
		}
		out = append(out, item)
		if len(out) == n {
			break
		}
	}
	return out
}

// SectionCache is a bounded in-process cache of file sections keyed by
// path and line range, for context-window estimation. It survives only
// for the owning process.
type SectionCache struct {
	cache *lru.Cache[string, string]
}

func NewSectionCache(size int) (*SectionCache, error) {
	var cache, err = lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("building section cache: %w", err)
	}
	return &SectionCache{cache: cache}, nil
}

func sectionKey(path string, first, last int) string {
	return fmt.Sprintf("%s:%d-%d", path, first, last)
}

func (c *SectionCache) Get(path string, first, last int) (string, bool) {
	return c.cache.Get(sectionKey(path, first, last))
}

func (c *SectionCache) Put(path string, first, last int, section string) {
	c.cache.Add(sectionKey(path, first, last), section)
}

func (c *SectionCache) Len() int { return c.cache.Len() }

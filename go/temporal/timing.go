// Package temporal decides when work runs: synchronously while the
// user is present, or deferred to the overnight window between the end
// of active hours and the midnight quota reset.
package temporal

import (
	"strings"

	"github.com/infolead/router/go/kanban"
	"github.com/infolead/router/go/tier"
)

// Timing classifies when a work item should run.
type Timing string

const (
	Sync   Timing = "SYNC"
	Async  Timing = "ASYNC"
	Either Timing = "EITHER"
)

// StatusScheduled marks items promoted into the overnight set.
const StatusScheduled = kanban.Status("SCHEDULED")

// Flags are context overrides for timing classification.
type Flags struct {
	// RequiresApproval forces SYNC: someone must watch this run.
	RequiresApproval bool
	// BatchMode forces ASYNC.
	BatchMode bool
}

var syncKeywords = []string{
	"help me", "which", "should i", "decide", "review", "edit", "design",
	"interactive", "walk me through", "pair", "discuss", "urgent", "right now",
}

var asyncKeywords = []string{
	"search for", "analyze", "generate report", "batch", "overnight",
	"index", "scan all", "audit", "benchmark", "crawl", "summarize the repo",
}

var readOnlyTimingVerbs = []string{"list all", "collect", "gather", "inventory"}

var destructiveTimingVerbs = []string{"delete", "remove", "drop"}

// ClassifyTiming returns the timing class of |request|. Context flags
// override keyword classification.
func ClassifyTiming(request string, flags Flags) Timing {
	if flags.RequiresApproval {
		return Sync
	}
	if flags.BatchMode {
		return Async
	}
	var lower = strings.ToLower(request)

	for _, kw := range syncKeywords {
		if strings.Contains(lower, kw) {
			return Sync
		}
	}
	// Destructive work defaults to user presence unless a flag said
	// otherwise above.
	for _, kw := range destructiveTimingVerbs {
		if strings.Contains(lower, kw) {
			return Sync
		}
	}
	for _, kw := range append(append([]string{}, asyncKeywords...), readOnlyTimingVerbs...) {
		if strings.Contains(lower, kw) {
			return Async
		}
	}
	return Either
}

var strongTierKeywords = []string{"formalize", "proof", "mathematical", "verify", "theorem", "derive"}
var midTierKeywords = []string{"analyze", "design", "integrate", "architect", "refactor", "plan", "strategy", "research"}

// EstimateTier guesses the tier an item's description demands.
func EstimateTier(description string) tier.Tier {
	var lower = strings.ToLower(description)
	for _, kw := range strongTierKeywords {
		if strings.Contains(lower, kw) {
			return tier.Strong
		}
	}
	for _, kw := range midTierKeywords {
		if strings.Contains(lower, kw) {
			return tier.Mid
		}
	}
	return tier.Cheap
}

// Item is a work item with temporal scheduling attributes.
type Item struct {
	kanban.WorkItem

	Timing                   Timing `json:"timing"`
	EstimatedQuota           int    `json:"estimated_quota"`
	EstimatedDurationMinutes int    `json:"estimated_duration_minutes"`
	Deadline                 string `json:"deadline,omitempty"`
	ScheduledFor             string `json:"scheduled_for,omitempty"`
	ProjectPath              string `json:"project_path,omitempty"`
	ProjectName              string `json:"project_name,omitempty"`
	Result                   string `json:"result,omitempty"`
}

// Normalize fills estimation defaults for partially specified items.
func (i *Item) Normalize() {
	if i.Timing == "" {
		i.Timing = Either
	}
	if i.EstimatedQuota <= 0 {
		i.EstimatedQuota = 5
	}
	if i.EstimatedDurationMinutes <= 0 {
		i.EstimatedDurationMinutes = 15
	}
}

package temporal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/infolead/router/go/quota"
	"github.com/infolead/router/go/tier"
)

// EveningReport summarizes the overnight queue ahead of the nightly
// run: what is scheduled, what finished, what failed, and how much
// quota the selected work will consume.
type EveningReport struct {
	Scheduled      []Item            `json:"scheduled"`
	Completed      []Item            `json:"completed"`
	Failed         []Item            `json:"failed"`
	Deferred       int               `json:"deferred"`
	EstimatedQuota map[tier.Tier]int `json:"estimated_quota"`
	QuotaRemaining map[tier.Tier]int `json:"quota_remaining"`
	GeneratedAt    string            `json:"generated_at"`
}

// EveningReport builds the pre-run summary from current queue state.
func (s *Scheduler) EveningReport() (EveningReport, error) {
	var snap, err = s.Snapshot()
	if err != nil {
		return EveningReport{}, err
	}
	var report = EveningReport{
		Scheduled:      snap.ScheduledAsync,
		Completed:      snap.CompletedOvernight,
		Failed:         snap.FailedWork,
		Deferred:       len(snap.AsyncQueue),
		EstimatedQuota: make(map[tier.Tier]int),
		QuotaRemaining: make(map[tier.Tier]int),
		GeneratedAt:    s.cfg.Now().UTC().Format("2006-01-02 15:04"),
	}
	for _, item := range snap.ScheduledAsync {
		report.EstimatedQuota[EstimateTier(item.Description)] += item.EstimatedQuota
	}
	for _, tr := range tier.All {
		var remaining int
		if remaining, err = s.tracker.Remaining(tr); err != nil {
			return EveningReport{}, fmt.Errorf("reading quota for report: %w", err)
		}
		report.QuotaRemaining[tr] = remaining
	}
	return report, nil
}

// Render formats the report for terminal display.
func (r EveningReport) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Evening report (%s)\n\n", r.GeneratedAt)

	fmt.Fprintf(&b, "Scheduled overnight (%d):\n", len(r.Scheduled))
	for _, item := range r.Scheduled {
		fmt.Fprintf(&b, "  [p%d] %s (%s, ~%dm, ~%d msgs)\n",
			item.Priority, item.Description,
			EstimateTier(item.Description), item.EstimatedDurationMinutes, item.EstimatedQuota)
	}
	if r.Deferred > 0 {
		fmt.Fprintf(&b, "Deferred (over budget): %d\n", r.Deferred)
	}
	if len(r.Completed) > 0 {
		fmt.Fprintf(&b, "\nCompleted (%d):\n", len(r.Completed))
		for _, item := range r.Completed {
			fmt.Fprintf(&b, "  %s\n", item.Description)
		}
	}
	if len(r.Failed) > 0 {
		fmt.Fprintf(&b, "\nFailed (%d):\n", len(r.Failed))
		for _, item := range r.Failed {
			fmt.Fprintf(&b, "  %s: %s\n", item.Description, item.Error)
		}
	}

	fmt.Fprintf(&b, "\nQuota budget:\n")
	var tiers []string
	for tr := range r.QuotaRemaining {
		tiers = append(tiers, string(tr))
	}
	sort.Strings(tiers)
	for _, name := range tiers {
		var tr = tier.Tier(name)
		var remaining = r.QuotaRemaining[tr]
		if remaining == quota.Unlimited {
			fmt.Fprintf(&b, "  %-8s unlimited\n", name)
		} else {
			fmt.Fprintf(&b, "  %-8s %d remaining, ~%d planned\n",
				name, remaining, r.EstimatedQuota[tr])
		}
	}
	return b.String()
}

package temporal

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/infolead/router/go/statefile"
	"github.com/infolead/router/go/tier"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// WorkExec runs a single scheduled item and returns its result text.
type WorkExec func(ctx context.Context, tr tier.Tier, item Item) (string, error)

// ExecutorConfig parameterizes an overnight run.
type ExecutorConfig struct {
	// MaxConcurrent bounds simultaneous work items.
	MaxConcurrent int
	// ResultsDir receives a results-<timestamp>.json summary per run.
	ResultsDir string
	// Now is injectable for tests.
	Now func() time.Time
}

// OvernightExecutor drains the scheduled_async queue in dependency
// order with bounded concurrency.
type OvernightExecutor struct {
	cfg       ExecutorConfig
	scheduler *Scheduler
	exec      WorkExec
}

func NewOvernightExecutor(cfg ExecutorConfig, scheduler *Scheduler, exec WorkExec) *OvernightExecutor {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &OvernightExecutor{cfg: cfg, scheduler: scheduler, exec: exec}
}

// RunSummary is the per-run results document.
type RunSummary struct {
	Timestamp string                `json:"timestamp"`
	Results   map[string]WorkResult `json:"results"`
}

type WorkResult struct {
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Run executes every scheduled item whose dependencies complete during
// the run. Items whose dependencies can never be met (absent from this
// run and not already completed) are failed with the unmet set named,
// so a dependency cycle drains cleanly rather than deadlocking.
func (e *OvernightExecutor) Run(ctx context.Context) (RunSummary, error) {
	var snap, err = e.scheduler.Snapshot()
	if err != nil {
		return RunSummary{}, err
	}
	var pending = make(map[string]Item)
	for _, item := range snap.ScheduledAsync {
		pending[item.ID] = item
	}
	var done = make(map[string]bool)
	for _, item := range snap.CompletedOvernight {
		done[item.ID] = true
	}

	var summary = RunSummary{
		Timestamp: e.cfg.Now().UTC().Format(time.RFC3339),
		Results:   make(map[string]WorkResult),
	}
	var sem = semaphore.NewWeighted(int64(e.cfg.MaxConcurrent))
	type outcome struct {
		id     string
		result string
		err    error
	}
	// Sized for every item so sends never block: in-flight work always
	// finishes and releases its slot even if the run stops collecting.
	var outcomes = make(chan outcome, len(pending))
	var inflight int

	for len(pending) != 0 || inflight != 0 {
		// Launch ready items while a slot is free. TryAcquire keeps the
		// loop from blocking here; a full semaphore means an outcome is
		// coming, and the receive below drains it.
		for id, item := range pending {
			var ready = true
			for _, dep := range item.Dependencies {
				if !done[dep] {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}
			if !sem.TryAcquire(1) {
				break
			}
			delete(pending, id)
			inflight++

			go func(item Item) {
				defer sem.Release(1)
				var result, execErr = e.exec(ctx, EstimateTier(item.Description), item)
				outcomes <- outcome{id: item.ID, result: result, err: execErr}
			}(item)
		}

		if inflight == 0 {
			// Nothing ready and nothing running: the remaining items
			// block on work that cannot complete in this run.
			break
		}

		var out outcome
		select {
		case out = <-outcomes:
		case <-ctx.Done():
			// Cancelled; fail what never started and stop. In-flight
			// items observe |ctx| themselves and drain into the buffer.
			return summary, e.drainPending(pending, summary, "run cancelled before start")
		}
		inflight--
		if out.err != nil {
			summary.Results[out.id] = WorkResult{Error: out.err.Error()}
			if err = e.scheduler.MarkFailed(out.id, out.err.Error()); err != nil {
				log.WithFields(log.Fields{"id": out.id, "err": err}).Warn("recording work failure")
			}
		} else {
			summary.Results[out.id] = WorkResult{Result: out.result}
			if err = e.scheduler.MarkCompleted(out.id, out.result); err != nil {
				log.WithFields(log.Fields{"id": out.id, "err": err}).Warn("recording work completion")
			}
			done[out.id] = true
		}
	}

	if len(pending) != 0 {
		if err = e.failStalled(pending, done, summary); err != nil {
			return summary, err
		}
	}
	if err = e.writeSummary(summary); err != nil {
		return summary, err
	}
	log.WithFields(log.Fields{
		"executed": len(summary.Results),
	}).Info("overnight run finished")
	return summary, nil
}

// failStalled fails items whose dependency sets cannot be satisfied,
// naming the unmet dependencies.
func (e *OvernightExecutor) failStalled(pending map[string]Item, done map[string]bool, summary RunSummary) error {
	for id, item := range pending {
		var unmet []string
		for _, dep := range item.Dependencies {
			if !done[dep] {
				unmet = append(unmet, dep)
			}
		}
		var reason = fmt.Sprintf("Blocked by: [%s]", strings.Join(unmet, ", "))
		summary.Results[id] = WorkResult{Error: reason}
		if err := e.scheduler.MarkFailed(id, reason); err != nil {
			return fmt.Errorf("failing stalled work %s: %w", id, err)
		}
	}
	return nil
}

func (e *OvernightExecutor) drainPending(pending map[string]Item, summary RunSummary, reason string) error {
	for id := range pending {
		summary.Results[id] = WorkResult{Error: reason}
		if err := e.scheduler.MarkFailed(id, reason); err != nil {
			return fmt.Errorf("failing unstarted work %s: %w", id, err)
		}
	}
	return e.writeSummary(summary)
}

func (e *OvernightExecutor) writeSummary(summary RunSummary) error {
	if e.cfg.ResultsDir == "" {
		return nil
	}
	var name = fmt.Sprintf("results-%s.json", e.cfg.Now().UTC().Format("20060102-150405"))
	return statefile.SaveJSON(filepath.Join(e.cfg.ResultsDir, name), summary)
}

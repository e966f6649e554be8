package kanban

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/infolead/router/go/statefile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var workStartedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "router_work_items_started_total",
	Help: "counter of work items moved to ACTIVE by the coordinator",
})

var workFinishedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "router_work_items_finished_total",
	Help: "counter of work items finished by the coordinator",
}, []string{"status"})

var workActiveGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "router_work_items_active",
	Help: "gauge of work items currently ACTIVE",
})

// Config parameterizes a Coordinator.
type Config struct {
	// StatePath locates work-queue.json.
	StatePath string
	// WIPLimit bounds concurrently ACTIVE items.
	WIPLimit int
	// Lock bounds state file acquisition.
	Lock statefile.Config
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Coordinator is a WIP-bounded work queue with dependency scheduling.
// All mutations hold the exclusive board lock end to end, so scheduling
// decisions are serialized across processes.
type Coordinator struct {
	cfg Config
}

func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.StatePath == "" {
		return nil, fmt.Errorf("missing StatePath")
	}
	if cfg.WIPLimit <= 0 {
		cfg.WIPLimit = 2
	}
	if cfg.Lock == (statefile.Config{}) {
		cfg.Lock = statefile.DefaultConfig()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Coordinator{cfg: cfg}, nil
}

func (c *Coordinator) now() string {
	return c.cfg.Now().UTC().Format(time.RFC3339)
}

func (c *Coordinator) load() Board {
	var b Board
	var err = statefile.LoadJSON(c.cfg.StatePath, &b)
	if err != nil && !os.IsNotExist(err) {
		log.WithFields(log.Fields{"path": c.cfg.StatePath, "err": err}).
			Warn("work queue unreadable, starting fresh")
	}
	if b.WIPLimit <= 0 {
		b.WIPLimit = c.cfg.WIPLimit
	}
	return b
}

func (c *Coordinator) save(b *Board) error {
	b.LastUpdated = c.now()
	return statefile.SaveJSON(c.cfg.StatePath, *b)
}

// withBoard runs |fn| under the exclusive board lock and persists the
// result when fn reports a mutation.
func (c *Coordinator) withBoard(fn func(*Board) (bool, error)) error {
	var lease, err = statefile.AcquireExclusive(c.cfg.StatePath, c.cfg.Lock, true)
	if err != nil {
		return fmt.Errorf("locking work queue: %w", err)
	}
	defer lease.Release()

	var b = c.load()
	dirty, err := fn(&b)
	if err != nil {
		return err
	}
	if dirty {
		return c.save(&b)
	}
	return nil
}

// Add enqueues |item| and immediately attempts to fill free WIP slots.
// It returns the items newly started by that pass.
func (c *Coordinator) Add(item WorkItem) ([]WorkItem, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}
	var started []WorkItem
	var err = c.withBoard(func(b *Board) (bool, error) {
		for _, w := range b.WorkItems {
			if w.ID == item.ID {
				return false, fmt.Errorf("work item %s already exists", item.ID)
			}
		}
		item.Status = StatusQueued
		item.StartedAt, item.CompletedAt, item.Error = "", "", ""
		b.WorkItems = append(b.WorkItems, item)
		started = c.schedulePass(b)
		return true, nil
	})
	return started, err
}

// Schedule fills free WIP slots with eligible queued items and returns
// the newly started set, in the stable order they were started.
func (c *Coordinator) Schedule() ([]WorkItem, error) {
	var started []WorkItem
	var err = c.withBoard(func(b *Board) (bool, error) {
		started = c.schedulePass(b)
		return len(started) > 0, nil
	})
	return started, err
}

// Complete marks |id| COMPLETED and fills the freed slot.
func (c *Coordinator) Complete(id string) ([]WorkItem, error) {
	return c.finish(id, StatusCompleted, "")
}

// Fail marks |id| FAILED with |reason| and fills the freed slot. Failure
// is terminal: a failed item never satisfies its dependents.
func (c *Coordinator) Fail(id, reason string) ([]WorkItem, error) {
	if reason == "" {
		reason = "failed"
	}
	return c.finish(id, StatusFailed, reason)
}

func (c *Coordinator) finish(id string, status Status, reason string) ([]WorkItem, error) {
	var started []WorkItem
	var err = c.withBoard(func(b *Board) (bool, error) {
		var found = false
		for i := range b.WorkItems {
			if b.WorkItems[i].ID != id {
				continue
			}
			found = true
			if b.WorkItems[i].Status == StatusActive {
				workActiveGauge.Dec()
			}
			b.WorkItems[i].Status = status
			b.WorkItems[i].CompletedAt = c.now()
			b.WorkItems[i].Error = reason
			workFinishedCounter.WithLabelValues(string(status)).Inc()
			break
		}
		if !found {
			return false, fmt.Errorf("no such work item %s", id)
		}
		started = c.schedulePass(b)
		return true, nil
	})
	return started, err
}

// schedulePass implements the unblocking-first scheduling rule. Cyclic
// or dangling dependencies simply never become eligible; the pass
// returns without starting them and without deadlocking.
func (c *Coordinator) schedulePass(b *Board) []WorkItem {
	var started []WorkItem

	for c.activeCount(b) < b.WIPLimit {
		var idx = c.pickEligible(b)
		if idx < 0 {
			break
		}
		b.WorkItems[idx].Status = StatusActive
		b.WorkItems[idx].StartedAt = c.now()
		started = append(started, b.WorkItems[idx])
		workStartedCounter.Inc()
		workActiveGauge.Inc()

		log.WithFields(log.Fields{
			"id":       b.WorkItems[idx].ID,
			"priority": b.WorkItems[idx].Priority,
		}).Debug("work item started")
	}
	return started
}

func (c *Coordinator) activeCount(b *Board) int {
	var n = 0
	for _, w := range b.WorkItems {
		if w.Status == StatusActive {
			n++
		}
	}
	return n
}

// pickEligible returns the index of the next item to start, or -1.
// Eligible items are QUEUED with all dependencies COMPLETED. Items that
// unblock the most queued dependents win; priority breaks ties.
func (c *Coordinator) pickEligible(b *Board) int {
	var completed = make(map[string]bool)
	for _, w := range b.WorkItems {
		if w.Status == StatusCompleted {
			completed[w.ID] = true
		}
	}

	var eligible []int
	for i, w := range b.WorkItems {
		if w.Status != StatusQueued {
			continue
		}
		var ready = true
		for _, dep := range w.Dependencies {
			if !completed[dep] {
				ready = false
				break
			}
		}
		if ready {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		return -1
	}

	var unblocking = func(id string) int {
		var n = 0
		for _, w := range b.WorkItems {
			if w.Status != StatusQueued {
				continue
			}
			for _, dep := range w.Dependencies {
				if dep == id {
					n++
					break
				}
			}
		}
		return n
	}

	// Items that unblock the most waiters win; priority breaks ties.
	// When nothing is waiting this degenerates to highest priority.
	sort.SliceStable(eligible, func(x, y int) bool {
		var ux, uy = unblocking(b.WorkItems[eligible[x]].ID), unblocking(b.WorkItems[eligible[y]].ID)
		if ux != uy {
			return ux > uy
		}
		return b.WorkItems[eligible[x]].Priority > b.WorkItems[eligible[y]].Priority
	})
	return eligible[0]
}

// Summary reports the board under a shared lock.
func (c *Coordinator) Summary() (StatusSummary, error) {
	var lease, err = statefile.AcquireShared(c.cfg.StatePath, c.cfg.Lock)
	if err != nil && !os.IsNotExist(err) {
		return StatusSummary{}, fmt.Errorf("reading work queue: %w", err)
	}
	if lease != nil {
		defer lease.Release()
	}

	var b = c.load()
	var out = StatusSummary{WIPLimit: b.WIPLimit, Counts: make(map[Status]int)}
	for _, w := range b.WorkItems {
		out.Counts[w.Status]++
		switch w.Status {
		case StatusActive:
			out.Active = append(out.Active, w)
		case StatusQueued:
			out.Queued = append(out.Queued, w)
		}
	}
	return out, nil
}

package temporal

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/infolead/router/go/kanban"
	"github.com/infolead/router/go/quota"
	"github.com/infolead/router/go/statefile"
	"github.com/infolead/router/go/tier"
	log "github.com/sirupsen/logrus"
)

// Queues is the persisted temporal queue document.
type Queues struct {
	SyncQueue          []Item `json:"sync_queue"`
	AsyncQueue         []Item `json:"async_queue"`
	ScheduledAsync     []Item `json:"scheduled_async"`
	CompletedOvernight []Item `json:"completed_overnight"`
	FailedWork         []Item `json:"failed_work"`
	LastUpdated        string `json:"last_updated"`
}

// Config parameterizes a Scheduler.
type Config struct {
	// StatePath locates the temporal queue document.
	StatePath string
	// ActiveStartHour and ActiveEndHour bound the user's active hours
	// in local wall-clock time.
	ActiveStartHour int
	ActiveEndHour   int
	// Location is the user's timezone for active-hour boundaries.
	// Persisted timestamps are always UTC.
	Location *time.Location
	// Lock bounds state file acquisition.
	Lock statefile.Config
	// Now is injectable for tests.
	Now func() time.Time
}

// Scheduler maintains the sync/async queues and selects the overnight
// work set against quota and time budgets.
type Scheduler struct {
	cfg     Config
	tracker *quota.Tracker
}

func NewScheduler(cfg Config, tracker *quota.Tracker) (*Scheduler, error) {
	if cfg.StatePath == "" {
		return nil, fmt.Errorf("missing StatePath")
	}
	if cfg.ActiveStartHour == 0 && cfg.ActiveEndHour == 0 {
		cfg.ActiveStartHour, cfg.ActiveEndHour = 9, 22
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Lock == (statefile.Config{}) {
		cfg.Lock = statefile.DefaultConfig()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{cfg: cfg, tracker: tracker}, nil
}

func (s *Scheduler) load() Queues {
	var q Queues
	var err = statefile.LoadJSON(s.cfg.StatePath, &q)
	if err != nil && !os.IsNotExist(err) {
		log.WithFields(log.Fields{"path": s.cfg.StatePath, "err": err}).
			Warn("temporal queues unreadable, starting fresh")
	}
	return q
}

func (s *Scheduler) withQueues(fn func(*Queues) error) error {
	var lease, err = statefile.AcquireExclusive(s.cfg.StatePath, s.cfg.Lock, true)
	if err != nil {
		return fmt.Errorf("locking temporal queues: %w", err)
	}
	defer lease.Release()

	var q = s.load()
	if err = fn(&q); err != nil {
		return err
	}
	q.LastUpdated = s.cfg.Now().UTC().Format(time.RFC3339)
	return statefile.SaveJSON(s.cfg.StatePath, q)
}

// inActiveHours reports whether local wall-clock time is within the
// user's active window.
func (s *Scheduler) inActiveHours() bool {
	var h = s.cfg.Now().In(s.cfg.Location).Hour()
	return h >= s.cfg.ActiveStartHour && h < s.cfg.ActiveEndHour
}

// AddWork routes |item| into the sync or async queue by its timing.
// An unset timing is classified from the description; EITHER goes sync
// during active hours and async otherwise.
func (s *Scheduler) AddWork(item Item) error {
	if item.Timing == "" {
		item.Timing = ClassifyTiming(item.Description, Flags{})
	}
	item.Normalize()
	if err := item.WorkItem.Validate(); err != nil {
		return err
	}
	item.Status = kanban.StatusQueued

	return s.withQueues(func(q *Queues) error {
		for _, lists := range [][]Item{q.SyncQueue, q.AsyncQueue, q.ScheduledAsync} {
			for _, w := range lists {
				if w.ID == item.ID {
					return fmt.Errorf("work item %s already queued", item.ID)
				}
			}
		}
		var timing = item.Timing
		if timing == Either {
			if s.inActiveHours() {
				timing = Sync
			} else {
				timing = Async
			}
		}
		if timing == Sync {
			q.SyncQueue = append(q.SyncQueue, item)
		} else {
			q.AsyncQueue = append(q.AsyncQueue, item)
		}
		return nil
	})
}

// minutesToMidnight measures the remaining overnight window in the
// configured local timezone.
func (s *Scheduler) minutesToMidnight() int {
	var now = s.cfg.Now().In(s.cfg.Location)
	var midnight = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.cfg.Location).AddDate(0, 0, 1)
	return int(midnight.Sub(now).Minutes())
}

// ScheduleOvernightWork selects async items whose dependencies are
// satisfied and which fit the per-tier quota budget and the remaining
// hours to midnight, in priority-descending order. Already-scheduled
// items re-enter selection, so a second call with no completions is
// idempotent.
func (s *Scheduler) ScheduleOvernightWork() ([]Item, error) {
	var budgets = make(map[tier.Tier]int)
	for _, tr := range tier.All {
		var remaining, err = s.tracker.Remaining(tr)
		if err != nil {
			return nil, fmt.Errorf("reading quota budget: %w", err)
		}
		budgets[tr] = remaining
	}
	var timeBudget = s.minutesToMidnight()

	var scheduled []Item
	var err = s.withQueues(func(q *Queues) error {
		var completed = make(map[string]bool)
		for _, w := range q.CompletedOvernight {
			completed[w.ID] = true
		}

		var candidates = append(append([]Item{}, q.AsyncQueue...), q.ScheduledAsync...)
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Priority > candidates[j].Priority
		})

		// A dependency counts as met when already completed or when the
		// dependency is itself selected into this batch (the overnight
		// executor orders intra-run dependencies). Select to fixpoint.
		var selected = make(map[string]bool)
		var consumed = make([]bool, len(candidates))
		var when = s.cfg.Now().UTC().Format(time.RFC3339)
		for {
			var progressed bool
			for i, item := range candidates {
				if consumed[i] {
					continue
				}
				var depsMet = true
				for _, dep := range item.Dependencies {
					if !completed[dep] && !selected[dep] {
						depsMet = false
						break
					}
				}
				var tr = EstimateTier(item.Description)
				if !depsMet ||
					(budgets[tr] != quota.Unlimited && budgets[tr] < item.EstimatedQuota) ||
					timeBudget < item.EstimatedDurationMinutes {
					continue
				}
				if budgets[tr] != quota.Unlimited {
					budgets[tr] -= item.EstimatedQuota
				}
				timeBudget -= item.EstimatedDurationMinutes
				item.Status = StatusScheduled
				item.ScheduledFor = when
				scheduled = append(scheduled, item)
				selected[item.ID] = true
				consumed[i] = true
				progressed = true
			}
			if !progressed {
				break
			}
		}

		var deferred []Item
		for i, item := range candidates {
			if consumed[i] {
				continue
			}
			item.Status = kanban.StatusQueued
			item.ScheduledFor = ""
			deferred = append(deferred, item)
		}
		q.AsyncQueue = deferred
		q.ScheduledAsync = scheduled

		log.WithFields(log.Fields{
			"scheduled": len(scheduled),
			"deferred":  len(deferred),
		}).Info("overnight work selected")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return scheduled, nil
}

const maxStoredResult = 500

// MarkCompleted moves a scheduled item into completed_overnight with a
// truncated result.
func (s *Scheduler) MarkCompleted(id, result string) error {
	if len(result) > maxStoredResult {
		result = result[:maxStoredResult]
	}
	return s.move(id, func(item Item, q *Queues) {
		item.Status = kanban.StatusCompleted
		item.CompletedAt = s.cfg.Now().UTC().Format(time.RFC3339)
		item.Result = result
		q.CompletedOvernight = append(q.CompletedOvernight, item)
	})
}

// MarkFailed moves a scheduled item into failed_work.
func (s *Scheduler) MarkFailed(id, reason string) error {
	return s.move(id, func(item Item, q *Queues) {
		item.Status = kanban.StatusFailed
		item.CompletedAt = s.cfg.Now().UTC().Format(time.RFC3339)
		item.Error = reason
		q.FailedWork = append(q.FailedWork, item)
	})
}

func (s *Scheduler) move(id string, place func(Item, *Queues)) error {
	return s.withQueues(func(q *Queues) error {
		for i, item := range q.ScheduledAsync {
			if item.ID != id {
				continue
			}
			q.ScheduledAsync = append(q.ScheduledAsync[:i], q.ScheduledAsync[i+1:]...)
			place(item, q)
			return nil
		}
		return fmt.Errorf("work item %s is not scheduled", id)
	})
}

// Snapshot returns the queues under a shared lock.
func (s *Scheduler) Snapshot() (Queues, error) {
	var lease, err = statefile.AcquireShared(s.cfg.StatePath, s.cfg.Lock)
	if err != nil {
		if os.IsNotExist(err) {
			return Queues{}, nil
		}
		return Queues{}, fmt.Errorf("reading temporal queues: %w", err)
	}
	defer lease.Release()
	return s.load(), nil
}

package fallback

import (
	"fmt"
	"os"
	"time"

	"github.com/infolead/router/go/statefile"
	"github.com/infolead/router/go/tier"
	log "github.com/sirupsen/logrus"
)

// tally is one (tier, task type) cell of the learning table.
type tally struct {
	Attempts  int `json:"attempts"`
	Successes int `json:"successes"`
}

// historyDoc is the persisted routing-history.json document.
type historyDoc struct {
	SuccessHistory map[tier.Tier]map[TaskType]tally `json:"success_history"`
	LastUpdated    string                           `json:"last_updated"`
}

// History is the persisted per-(tier, task type) success record the
// router learns from.
type History struct {
	path string
	lock statefile.Config
	now  func() time.Time
}

// NewHistory opens the learning table at |path|. A zero lock config
// takes the defaults.
func NewHistory(path string, lock statefile.Config) *History {
	if lock == (statefile.Config{}) {
		lock = statefile.DefaultConfig()
	}
	return &History{path: path, lock: lock, now: time.Now}
}

func (h *History) load() historyDoc {
	var doc historyDoc
	var err = statefile.LoadJSON(h.path, &doc)
	if err != nil && !os.IsNotExist(err) {
		log.WithFields(log.Fields{"path": h.path, "err": err}).
			Warn("routing history unreadable, starting fresh")
	}
	if doc.SuccessHistory == nil {
		doc.SuccessHistory = make(map[tier.Tier]map[TaskType]tally)
	}
	return doc
}

// SuccessRate returns the learned success rate for |tr| on |task|, or
// 0.5 with no history.
func (h *History) SuccessRate(tr tier.Tier, task TaskType) float64 {
	var lease, err = statefile.AcquireShared(h.path, h.lock)
	if err == nil {
		defer lease.Release()
	}
	var doc = h.load()
	var cell = doc.SuccessHistory[tr][task]
	if cell.Attempts == 0 {
		return 0.5
	}
	return float64(cell.Successes) / float64(cell.Attempts)
}

// RecordSuccess notes that |tr| handled a |task| request acceptably.
func (h *History) RecordSuccess(tr tier.Tier, task TaskType) error {
	return h.record(tr, task, true)
}

// RecordFailure notes that |tr| failed validation for a |task| request.
func (h *History) RecordFailure(tr tier.Tier, task TaskType) error {
	return h.record(tr, task, false)
}

func (h *History) record(tr tier.Tier, task TaskType, success bool) error {
	var lease, err = statefile.AcquireExclusive(h.path, h.lock, true)
	if err != nil {
		return fmt.Errorf("locking routing history: %w", err)
	}
	defer lease.Release()

	var doc = h.load()
	if doc.SuccessHistory[tr] == nil {
		doc.SuccessHistory[tr] = make(map[TaskType]tally)
	}
	var cell = doc.SuccessHistory[tr][task]
	cell.Attempts++
	if success {
		cell.Successes++
	}
	doc.SuccessHistory[tr][task] = cell
	doc.LastUpdated = h.now().UTC().Format(time.RFC3339)

	if err = statefile.SaveJSON(h.path, doc); err != nil {
		return fmt.Errorf("persisting routing history: %w", err)
	}
	return nil
}

// Tally returns the raw attempt/success counts for one cell.
func (h *History) Tally(tr tier.Tier, task TaskType) (attempts, successes int) {
	var doc = h.load()
	var cell = doc.SuccessHistory[tr][task]
	return cell.Attempts, cell.Successes
}

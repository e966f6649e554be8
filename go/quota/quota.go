// Package quota tracks per-tier daily message consumption against
// subscription limits, shared across processes through the locked
// quota-tracking.json document.
package quota

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/infolead/router/go/statefile"
	"github.com/infolead/router/go/tier"
	log "github.com/sirupsen/logrus"
)

// Unlimited marks a tier without a daily cap.
const Unlimited = -1

// Config parameterizes a Tracker. Zero values are filled from defaults.
type Config struct {
	// StatePath locates quota-tracking.json.
	StatePath string
	// Limits caps daily messages per tier; Unlimited disables the cap.
	Limits map[tier.Tier]int
	// Buffers reserves a fraction of each capped tier's limit.
	Buffers map[tier.Tier]float64
	// Lock bounds state file acquisition.
	Lock statefile.Config
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// DefaultLimits reflect the subscription's daily message allowances.
func DefaultLimits() map[tier.Tier]int {
	return map[tier.Tier]int{
		tier.Cheap:  Unlimited,
		tier.Mid:    1125,
		tier.Strong: 250,
	}
}

// DefaultBuffers reserve headroom for unexpected interactive work.
func DefaultBuffers() map[tier.Tier]float64 {
	return map[tier.Tier]float64{
		tier.Mid:    0.10,
		tier.Strong: 0.20,
	}
}

// State is the persisted quota document.
type State struct {
	Date        string            `json:"date"`
	Used        map[tier.Tier]int `json:"used"`
	LastUpdated string            `json:"last_updated"`
}

// TierSummary describes one tier's consumption.
type TierSummary struct {
	Used           int     `json:"used"`
	Limit          int     `json:"limit"`
	EffectiveLimit int     `json:"effective_limit"`
	Remaining      int     `json:"remaining"`
	Percent        float64 `json:"percent"`
}

// Summary is the full per-day consumption view.
type Summary struct {
	Date  string                    `json:"date"`
	Tiers map[tier.Tier]TierSummary `json:"tiers"`
}

// Tracker provides linearizable per-tier daily counters.
type Tracker struct {
	cfg Config
}

// NewTracker validates |cfg| and fills defaults.
func NewTracker(cfg Config) (*Tracker, error) {
	if cfg.StatePath == "" {
		return nil, fmt.Errorf("missing StatePath")
	}
	if cfg.Limits == nil {
		cfg.Limits = DefaultLimits()
	}
	if cfg.Buffers == nil {
		cfg.Buffers = DefaultBuffers()
	}
	if cfg.Lock == (statefile.Config{}) {
		cfg.Lock = statefile.DefaultConfig()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tracker{cfg: cfg}, nil
}

func (t *Tracker) today() string {
	return t.cfg.Now().UTC().Format("2006-01-02")
}

// load reads the current state, resetting counters when the persisted
// day is not today. Corrupt state is replaced by an empty document.
func (t *Tracker) load() State {
	var s State
	var err = statefile.LoadJSON(t.cfg.StatePath, &s)
	if err != nil && !os.IsNotExist(err) {
		log.WithFields(log.Fields{"path": t.cfg.StatePath, "err": err}).
			Warn("quota state unreadable, starting fresh")
	}
	if s.Date != t.today() {
		s = State{Date: t.today(), Used: make(map[tier.Tier]int)}
	}
	if s.Used == nil {
		s.Used = make(map[tier.Tier]int)
	}
	return s
}

// EffectiveLimit returns the usable portion of a tier's daily limit
// after its reserve buffer, or Unlimited.
func (t *Tracker) EffectiveLimit(tr tier.Tier) int {
	var limit, ok = t.cfg.Limits[tr]
	if !ok || limit == Unlimited {
		return Unlimited
	}
	return int(math.Floor(float64(limit) * (1 - t.cfg.Buffers[tr])))
}

// CanUse reports whether |tr| has quota remaining beneath its
// effective (buffer-reduced) limit.
func (t *Tracker) CanUse(tr tier.Tier) (bool, error) {
	var lease, err = statefile.AcquireShared(t.cfg.StatePath, t.cfg.Lock)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("reading quota state: %w", err)
	}
	defer lease.Release()

	var effective = t.EffectiveLimit(tr)
	if effective == Unlimited {
		return true, nil
	}
	return t.load().Used[tr] < effective, nil
}

// Increment atomically adds |n| messages to |tr| and returns the new
// total. Exhaustion never errs here; callers gate with CanUse or the
// Scheduler. Increment(tr, 0) is a read.
func (t *Tracker) Increment(tr tier.Tier, n int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("negative increment %d", n)
	}
	var lease, err = statefile.AcquireExclusive(t.cfg.StatePath, t.cfg.Lock, true)
	if err != nil {
		return 0, fmt.Errorf("locking quota state: %w", err)
	}
	defer lease.Release()

	var s = t.load()
	if n == 0 {
		return s.Used[tr], nil
	}
	s.Used[tr] += n
	s.LastUpdated = t.cfg.Now().UTC().Format(time.RFC3339)

	if err = statefile.SaveJSON(t.cfg.StatePath, s); err != nil {
		return 0, fmt.Errorf("persisting quota state: %w", err)
	}
	return s.Used[tr], nil
}

// Summarize reports consumption against limits for every tier.
func (t *Tracker) Summarize() (Summary, error) {
	var lease, err = statefile.AcquireShared(t.cfg.StatePath, t.cfg.Lock)
	if err != nil && !os.IsNotExist(err) {
		return Summary{}, fmt.Errorf("reading quota state: %w", err)
	}
	if lease != nil {
		defer lease.Release()
	}

	var s = t.load()
	var out = Summary{Date: s.Date, Tiers: make(map[tier.Tier]TierSummary)}
	for _, tr := range tier.All {
		var limit, ok = t.cfg.Limits[tr]
		if !ok {
			limit = Unlimited
		}
		var ts = TierSummary{
			Used:           s.Used[tr],
			Limit:          limit,
			EffectiveLimit: t.EffectiveLimit(tr),
		}
		if ts.EffectiveLimit == Unlimited {
			ts.Remaining = Unlimited
		} else {
			ts.Remaining = ts.EffectiveLimit - ts.Used
			if ts.Remaining < 0 {
				ts.Remaining = 0
			}
			if ts.EffectiveLimit > 0 {
				ts.Percent = 100 * float64(ts.Used) / float64(ts.EffectiveLimit)
			}
		}
		out.Tiers[tr] = ts
	}
	return out, nil
}

// Remaining returns messages left beneath the effective limit, or
// Unlimited for uncapped tiers.
func (t *Tracker) Remaining(tr tier.Tier) (int, error) {
	var sum, err = t.Summarize()
	if err != nil {
		return 0, err
	}
	return sum.Tiers[tr].Remaining, nil
}

package quota

import (
	"fmt"

	"github.com/infolead/router/go/tier"
)

// DeferToTomorrow is the sentinel selection when no tier can take the
// work today.
const DeferToTomorrow = tier.Tier("DEFER_TO_TOMORROW")

// Scheduler picks the cheapest tier whose complexity band covers a
// request and which still has quota.
type Scheduler struct {
	tracker *Tracker
}

func NewScheduler(tracker *Tracker) *Scheduler {
	return &Scheduler{tracker: tracker}
}

// bands lists candidate tiers per complexity, preferred first.
func bands(complexity int) []tier.Tier {
	switch complexity {
	case 1, 2:
		return []tier.Tier{tier.Cheap}
	case 3:
		return []tier.Tier{tier.Mid, tier.Cheap}
	case 4:
		return []tier.Tier{tier.Mid}
	case 5:
		return []tier.Tier{tier.Strong, tier.Mid, tier.Cheap}
	}
	return nil
}

// Select returns the tier to run a request of |complexity| (1..5), or
// DeferToTomorrow when every candidate tier is exhausted.
func (s *Scheduler) Select(complexity int) (tier.Tier, error) {
	if complexity < 1 || complexity > 5 {
		return "", fmt.Errorf("complexity %d out of range 1..5", complexity)
	}
	for _, tr := range bands(complexity) {
		var ok, err = s.tracker.CanUse(tr)
		if err != nil {
			return "", err
		}
		if ok {
			return tr, nil
		}
	}
	return DeferToTomorrow, nil
}

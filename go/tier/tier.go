// Package tier names the capability levels of the agent family and
// their ordering. Agent names map to tiers through the `model` field of
// their definitions; everything else in the control plane speaks tiers.
package tier

import "fmt"

// Tier is one of the three capability levels.
type Tier string

const (
	Cheap  Tier = "cheap"
	Mid    Tier = "mid"
	Strong Tier = "strong"
)

// All lists tiers in ascending capability and cost.
var All = []Tier{Cheap, Mid, Strong}

// rank orders tiers by capability. Unknown tiers rank below Cheap.
func rank(t Tier) int {
	switch t {
	case Cheap:
		return 1
	case Mid:
		return 2
	case Strong:
		return 3
	}
	return 0
}

// Less reports whether |a| is of strictly lower capability than |b|.
func Less(a, b Tier) bool { return rank(a) < rank(b) }

// Valid reports whether |t| names a known tier.
func Valid(t Tier) bool { return rank(t) != 0 }

// Parse maps |s| to a Tier, or errors for unknown names.
func Parse(s string) (Tier, error) {
	var t = Tier(s)
	if !Valid(t) {
		return "", fmt.Errorf("unknown tier %q (expected cheap, mid, or strong)", s)
	}
	return t, nil
}

// Ascending reports whether |chain| is strictly ascending in capability.
func Ascending(chain []Tier) bool {
	for i := 1; i < len(chain); i++ {
		if !Less(chain[i-1], chain[i]) {
			return false
		}
	}
	return true
}

// Package fallback implements the deliberating layer of the router:
// confidence-classified tier recommendations, post-execution validation,
// and an optimistic executor that walks a tiered fallback chain when
// validation fails.
package fallback

import (
	"strings"

	"github.com/infolead/router/go/routing"
	"github.com/infolead/router/go/tier"
)

// Confidence classifies how sure the router is of a recommendation.
type Confidence string

const (
	High   Confidence = "HIGH"
	Medium Confidence = "MEDIUM"
	Low    Confidence = "LOW"
)

// TaskType is the coarse task classification driving tier selection and
// the learning table.
type TaskType string

const (
	TaskMechanical       TaskType = "mechanical"
	TaskReadOnly         TaskType = "read_only"
	TaskTransform        TaskType = "transform"
	TaskJudgment         TaskType = "judgment"
	TaskComplexReasoning TaskType = "complex_reasoning"
	TaskDestructive      TaskType = "destructive"
	TaskDefault          TaskType = "default"
)

// Decision is the probabilistic router's recommendation. The fallback
// chain is strictly ascending in capability and may be empty.
type Decision struct {
	RecommendedModel   tier.Tier   `json:"recommended_model"`
	Confidence         Confidence  `json:"confidence"`
	FallbackChain      []tier.Tier `json:"fallback_chain"`
	ValidationCriteria []string    `json:"validation_criteria,omitempty"`
	Reasoning          string      `json:"reasoning"`
	TaskType           TaskType    `json:"task_type"`
}

var readOnlyVerbs = []string{"show", "display", "list", "get", "read", "find", "search", "count"}
var transformVerbs = []string{"convert", "translate", "transform", "migrate", "rewrite", "reformat"}
var judgmentVerbs = []string{"decide", "choose", "should", "recommend", "evaluate", "compare"}
var complexMarkers = []string{"architect", "design a system", "prove", "proof", "theorem", "algorithm design", "formal"}
var destructiveMarkers = []string{"delete", "remove", "drop"}
var mechanicalMarkers = []string{"fix", "rename", "format", "sort", "typo", "replace", "move"}

// ClassifyTask maps a request to its task type. First match wins across
// the catalog, most specific classes first.
func ClassifyTask(request string) TaskType {
	var lower = strings.ToLower(request)
	var has = func(words []string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}
	switch {
	case has(mechanicalMarkers) && routing.ExplicitFileMentioned(request):
		return TaskMechanical
	case has(readOnlyVerbs):
		return TaskReadOnly
	case has(transformVerbs):
		return TaskTransform
	case has(judgmentVerbs):
		return TaskJudgment
	case has(complexMarkers):
		return TaskComplexReasoning
	case has(destructiveMarkers):
		return TaskDestructive
	}
	return TaskDefault
}

// Router combines the fixed pattern catalog with the learned success
// table to produce Decisions.
type Router struct {
	history *History
}

func NewRouter(history *History) *Router {
	return &Router{history: history}
}

// Route classifies |request| and produces the tier recommendation.
func (r *Router) Route(request string) (Decision, error) {
	if err := routing.CheckRequest(request); err != nil {
		return Decision{}, err
	}

	var task = ClassifyTask(request)
	var d Decision
	switch task {
	case TaskMechanical:
		d = Decision{
			RecommendedModel:   tier.Cheap,
			Confidence:         High,
			FallbackChain:      []tier.Tier{tier.Mid, tier.Strong},
			ValidationCriteria: []string{TagSyntaxValid, TagNoLogicChange},
			Reasoning:          "mechanical edit with explicit target",
		}
	case TaskReadOnly:
		d = Decision{
			RecommendedModel:   tier.Cheap,
			Confidence:         High,
			FallbackChain:      []tier.Tier{tier.Mid},
			ValidationCriteria: []string{TagResultsFound},
			Reasoning:          "read-only lookup",
		}
	case TaskTransform:
		// Transforms are delegated down only once the cheap tier has
		// earned trust for them.
		if rate := r.history.SuccessRate(tier.Cheap, TaskTransform); rate > 0.8 {
			d = Decision{
				RecommendedModel:   tier.Cheap,
				Confidence:         Medium,
				FallbackChain:      []tier.Tier{tier.Mid},
				ValidationCriteria: []string{TagOutputValid, TagUserVerify},
				Reasoning:          "transform with proven cheap-tier success rate",
			}
		} else {
			d = Decision{
				RecommendedModel: tier.Mid,
				Confidence:       High,
				FallbackChain:    []tier.Tier{tier.Strong},
				Reasoning:        "transform without established cheap-tier record",
			}
		}
	case TaskJudgment:
		d = Decision{
			RecommendedModel: tier.Mid,
			Confidence:       High,
			FallbackChain:    []tier.Tier{tier.Strong},
			Reasoning:        "judgment call",
		}
	case TaskComplexReasoning:
		d = Decision{
			RecommendedModel: tier.Strong,
			Confidence:       High,
			FallbackChain:    nil,
			Reasoning:        "complex reasoning requires the strongest tier",
		}
	case TaskDestructive:
		d = Decision{
			RecommendedModel:   tier.Mid,
			Confidence:         Medium,
			FallbackChain:      []tier.Tier{tier.Strong},
			ValidationCriteria: []string{TagUserVerify},
			Reasoning:          "destructive operation needs careful handling",
		}
	default:
		d = Decision{
			RecommendedModel: tier.Mid,
			Confidence:       Medium,
			FallbackChain:    []tier.Tier{tier.Strong},
			Reasoning:        "no specific pattern matched",
		}
	}
	d.TaskType = task
	return d, nil
}

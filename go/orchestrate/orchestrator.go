package orchestrate

import (
	"fmt"
	"strings"

	"github.com/infolead/router/go/routing"
	"github.com/infolead/router/go/tier"
	log "github.com/sirupsen/logrus"
)

// Stage is one step of a multi-stage pipeline run.
type Stage struct {
	Name   string                 `json:"name"`
	Output map[string]interface{} `json:"output,omitempty"`
}

// Result is the orchestrator's full answer for one request.
type Result struct {
	Strategy          string          `json:"strategy"`
	Complexity        Analysis        `json:"complexity"`
	Routing           *routing.Result `json:"routing,omitempty"`
	Stages            []Stage         `json:"stages"`
	MonitoringEnabled bool            `json:"monitoring_enabled,omitempty"`
	// Error carries boundary markers such as empty_request; the
	// orchestrator itself does not fail on them.
	Error string `json:"error,omitempty"`
}

// Recorder receives orchestration decisions for the metrics log.
type Recorder interface {
	RecordOrchestration(level Level, mode Mode, request string)
}

// Config parameterizes the orchestrator.
type Config struct {
	// ForcedMode overrides the classifier's recommendation when set.
	ForcedMode Mode
	Classifier ClassifierConfig
}

// Orchestrator picks an orchestration mode per request and drives the
// interpret/plan/execute pipeline for complex work.
type Orchestrator struct {
	cfg      Config
	classify *Classifier
	core     *routing.Core
	recorder Recorder
}

// New builds an Orchestrator around the mechanical router |core|.
// |recorder| may be nil.
func New(cfg Config, core *routing.Core, recorder Recorder) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		classify: NewClassifier(cfg.Classifier),
		core:     core,
		recorder: recorder,
	}
}

// Orchestrate classifies |request| and runs the selected pipeline.
// Empty or whitespace-only requests normalize to an empty execution
// with the empty_request marker rather than an error.
func (o *Orchestrator) Orchestrate(request string) (Result, error) {
	if strings.TrimSpace(request) == "" {
		return Result{Strategy: "empty", Error: "empty_request"}, nil
	}
	if err := routing.CheckRequest(request); err != nil {
		return Result{}, err
	}

	var analysis = o.classify.Classify(request)
	var mode = analysis.Recommendation
	if o.cfg.ForcedMode != "" {
		mode = o.cfg.ForcedMode
	}
	if o.recorder != nil {
		o.recorder.RecordOrchestration(analysis.Level, mode, request)
	}
	log.WithFields(log.Fields{
		"level": analysis.Level,
		"mode":  mode,
	}).Debug("orchestration mode selected")

	switch mode {
	case MultiStage:
		return o.multiStage(request, analysis)
	case SingleStageMonitored:
		var res, err = o.singleStage(request, analysis)
		res.Strategy = "single_stage_monitored"
		res.MonitoringEnabled = true
		return res, err
	default:
		return o.singleStage(request, analysis)
	}
}

func (o *Orchestrator) singleStage(request string, analysis Analysis) (Result, error) {
	var routed, err = o.core.Route(request)
	if err != nil {
		return Result{}, fmt.Errorf("routing request: %w", err)
	}
	return Result{
		Strategy:   "single_stage",
		Complexity: analysis,
		Routing:    &routed,
		Stages:     []Stage{{Name: "route"}},
	}, nil
}

// intentKeywords maps detected keywords to canonical intent tags, in
// check order.
var intentKeywords = []struct {
	keyword string
	intent  string
}{
	{"fix", "fix"},
	{"refactor", "refactor"},
	{"analyze", "analyze"},
	{"investigate", "analyze"},
	{"test", "test"},
	{"document", "document"},
	{"add", "create"},
	{"create", "create"},
	{"build", "create"},
	{"implement", "create"},
}

var ambiguityMarkers = []string{"best", "better", "should", "which", "how to"}

var largeScopeMarkers = []string{"all", "every", "entire", "across", "everywhere"}
var mediumScopeMarkers = []string{"few", "some", "several", "multiple"}

// interpret detects intent, ambiguity, and scope.
func interpret(request string) map[string]interface{} {
	var lower = strings.ToLower(request)

	var intent = "general"
	for _, ik := range intentKeywords {
		if strings.Contains(lower, ik.keyword) {
			intent = ik.intent
			break
		}
	}

	var ambiguous = false
	for _, m := range ambiguityMarkers {
		if strings.Contains(lower, m) {
			ambiguous = true
			break
		}
	}

	var scope = "small"
	for _, m := range largeScopeMarkers {
		if strings.Contains(lower, m) {
			scope = "large"
			break
		}
	}
	if scope == "small" {
		for _, m := range mediumScopeMarkers {
			if strings.Contains(lower, m) {
				scope = "medium"
				break
			}
		}
	}
	return map[string]interface{}{
		"intent":    intent,
		"ambiguous": ambiguous,
		"scope":     scope,
	}
}

// plan derives the refined request, a recommended tier, and step list.
func plan(request string, interpretation map[string]interface{}) map[string]interface{} {
	var refined = request
	var ambiguous, _ = interpretation["ambiguous"].(bool)
	if ambiguous {
		refined = request + " [REQUIRES CLARIFICATION]"
	}

	var intent, _ = interpretation["intent"].(string)
	var scope, _ = interpretation["scope"].(string)

	var recommended tier.Tier
	switch {
	case scope == "large" && (intent == "create" || intent == "refactor"):
		recommended = tier.Strong
	case scope == "large" || scope == "medium" || intent == "analyze" || intent == "refactor":
		recommended = tier.Mid
	default:
		recommended = tier.Cheap
	}

	var steps []string
	if ambiguous || scope == "large" || CountObjectives(request) >= 2 {
		steps = []string{"clarify", "execute", "verify"}
	} else {
		steps = []string{"execute"}
	}
	return map[string]interface{}{
		"refined_request":  refined,
		"recommended_tier": recommended,
		"steps":            steps,
	}
}

func (o *Orchestrator) multiStage(request string, analysis Analysis) (Result, error) {
	var interpretation = interpret(request)
	var planned = plan(request, interpretation)
	var refined, _ = planned["refined_request"].(string)

	var routed, err = o.core.Route(refined)
	if err != nil {
		return Result{}, fmt.Errorf("routing refined request: %w", err)
	}
	return Result{
		Strategy:   "multi_stage",
		Complexity: analysis,
		Routing:    &routed,
		Stages: []Stage{
			{Name: "interpret", Output: interpretation},
			{Name: "plan", Output: planned},
			{Name: "execute"},
		},
	}, nil
}

// Package orchestrate chooses between single-stage and multi-stage
// handling of a request, based on a mechanical complexity
// classification, and runs the interpret/plan/execute pipeline for
// complex work.
package orchestrate

import (
	"regexp"
	"sort"
	"strings"

	"github.com/infolead/router/go/routing"
)

// Level grades request complexity.
type Level string

const (
	Simple   Level = "SIMPLE"
	Moderate Level = "MODERATE"
	Complex  Level = "COMPLEX"
)

// Mode is the recommended orchestration strategy.
type Mode string

const (
	SingleStage          Mode = "SINGLE_STAGE"
	SingleStageMonitored Mode = "SINGLE_STAGE_MONITORED"
	MultiStage           Mode = "MULTI_STAGE"
)

// Analysis is the classifier's verdict.
type Analysis struct {
	Level          Level    `json:"level"`
	Confidence     float64  `json:"confidence"`
	Indicators     []string `json:"indicators,omitempty"`
	Recommendation Mode     `json:"recommendation"`
}

// ClassifierConfig tunes per-family confidence scoring.
type ClassifierConfig struct {
	SimpleBase    float64
	SimpleWeight  float64
	ComplexBase   float64
	ComplexWeight float64
}

func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		SimpleBase:    0.70,
		SimpleWeight:  0.08,
		ComplexBase:   0.70,
		ComplexWeight: 0.08,
	}
}

var simplePatterns = map[string]*regexp.Regexp{
	"fix_trivial":  regexp.MustCompile(`(?i)\bfix (typo|spelling|syntax)\b`),
	"format":       regexp.MustCompile(`(?i)\bformat (code|file)\b`),
	"rename":       regexp.MustCompile(`(?i)\brename \w+.* to \w+`),
	"sort":         regexp.MustCompile(`(?i)\bsort (imports|lines)\b`),
	"read_only":    regexp.MustCompile(`(?i)\b(show|display|list|get|read)\b`),
}

var complexPatterns = map[string]*regexp.Regexp{
	"design_verb":       regexp.MustCompile(`(?i)\b(design|architect|implement|build)\b`),
	"judgment_marker":   regexp.MustCompile(`(?i)\b(best|better|should|trade-?off)\b`),
	"structural_change": regexp.MustCompile(`(?i)\b(restructure|refactor|migrate|overhaul|rework)\b`),
	"multi_target":      regexp.MustCompile(`(?i)\b(all files|across|everywhere|entire)\b`),
	"analysis_verb":     regexp.MustCompile(`(?i)\b(analyze|investigate|evaluate|diagnose)\b`),
}

var stageSeparators = []string{" and then ", ", then ", " after ", " before ", ";", "\n"}

// CountObjectives counts multi-objective separators for orchestration.
// The separator set differs from the pre-router's: plain " and " is too
// noisy at this layer, while newlines matter.
func CountObjectives(request string) int {
	var lower = strings.ToLower(request)
	var n = 0
	for _, sep := range stageSeparators {
		n += strings.Count(lower, sep)
	}
	return n
}

// Classifier grades requests against the two pattern families.
type Classifier struct {
	cfg ClassifierConfig
}

func NewClassifier(cfg ClassifierConfig) *Classifier {
	if cfg == (ClassifierConfig{}) {
		cfg = DefaultClassifierConfig()
	}
	return &Classifier{cfg: cfg}
}

func clamp95(v float64) float64 {
	if v > 0.95 {
		return 0.95
	}
	return v
}

// Classify scores |request| and recommends an orchestration mode.
func (c *Classifier) Classify(request string) Analysis {
	var simpleHits, complexHits []string
	for name, re := range simplePatterns {
		if re.MatchString(request) {
			simpleHits = append(simpleHits, "simple:"+name)
		}
	}
	for name, re := range complexPatterns {
		if re.MatchString(request) {
			complexHits = append(complexHits, "complex:"+name)
		}
	}
	var objectives = CountObjectives(request)
	if objectives >= 3 {
		complexHits = append(complexHits, "complex:multi_objective")
	}

	switch {
	case len(complexHits) > 0:
		return Analysis{
			Level:          Complex,
			Confidence:     clamp95(c.cfg.ComplexBase + c.cfg.ComplexWeight*float64(len(complexHits))),
			Indicators:     sortedIndicators(complexHits),
			Recommendation: MultiStage,
		}
	case len(simpleHits) > 0 && routing.ExplicitFileMentioned(request):
		return Analysis{
			Level:          Simple,
			Confidence:     clamp95(c.cfg.SimpleBase + c.cfg.SimpleWeight*float64(len(simpleHits))),
			Indicators:     sortedIndicators(simpleHits),
			Recommendation: SingleStage,
		}
	}
	return Analysis{
		Level:          Moderate,
		Confidence:     0.6,
		Recommendation: SingleStageMonitored,
	}
}

func sortedIndicators(hits []string) []string {
	// Map iteration order is random; indicators are sorted so that
	// classification output is stable.
	var out = append([]string{}, hits...)
	sort.Strings(out)
	return out
}

// Package config loads per-domain YAML configuration. Malformed or
// missing configuration never prevents startup: the loader warns and
// falls back to defaults.
package config

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Workflow describes one named workflow of a domain.
type Workflow struct {
	Phases       []string `yaml:"phases"`
	QualityGates []string `yaml:"quality_gates"`
	Parallelism  string   `yaml:"parallelism"`
}

// wipByParallelism maps the declared parallelism class to a WIP limit.
var wipByParallelism = map[string]int{
	"sequential": 1,
	"low":        2,
	"medium":     3,
	"high":       4,
}

// WIPLimit resolves the workflow's parallelism to a WIP limit.
// Unknown classes resolve to sequential.
func (w Workflow) WIPLimit() int {
	if wip, ok := wipByParallelism[w.Parallelism]; ok {
		return wip
	}
	return 1
}

// Thresholds are metric targets. They default from the subscription
// model and may be overridden per domain.
type Thresholds struct {
	QuotaUtilizationTarget float64 `yaml:"quota_utilization_target"`
	CompletionRateTarget   float64 `yaml:"completion_rate_target"`
	LatencyTargetSeconds   float64 `yaml:"latency_target_seconds"`
	EscalationRateCeiling  float64 `yaml:"escalation_rate_ceiling"`
}

// RiskPatterns classify request text by risk.
type RiskPatterns struct {
	HighRisk   []string `yaml:"high_risk"`
	MediumRisk []string `yaml:"medium_risk"`
}

// Domain is one domain's configuration document.
type Domain struct {
	Domain              string              `yaml:"domain"`
	Workflows           map[string]Workflow `yaml:"workflows"`
	DefaultAgents       []string            `yaml:"default_agents"`
	ContextStrategy     string              `yaml:"context_strategy"`
	Thresholds          Thresholds          `yaml:"thresholds"`
	QualityRequirements []string            `yaml:"quality_requirements"`
	FilePatterns        []string            `yaml:"file_patterns"`
	RiskPatterns        RiskPatterns        `yaml:"risk_patterns"`
	QuotaAllocation     map[string]float64  `yaml:"quota_allocation"`
	SpecializedAgents   map[string]string   `yaml:"specialized_agents"`
}

// DefaultThresholds are the metric targets used when a domain does not
// override them.
func DefaultThresholds() Thresholds {
	return Thresholds{
		QuotaUtilizationTarget: 0.80,
		CompletionRateTarget:   0.90,
		LatencyTargetSeconds:   30,
		EscalationRateCeiling:  0.20,
	}
}

// Default is the configuration used when none is present on disk.
func Default() Domain {
	return Domain{
		Domain:     "general",
		Thresholds: DefaultThresholds(),
	}
}

// applyDefaults fills zero-valued thresholds from the defaults, so a
// domain may override a subset.
func (d *Domain) applyDefaults() {
	var def = DefaultThresholds()
	if d.Thresholds.QuotaUtilizationTarget == 0 {
		d.Thresholds.QuotaUtilizationTarget = def.QuotaUtilizationTarget
	}
	if d.Thresholds.CompletionRateTarget == 0 {
		d.Thresholds.CompletionRateTarget = def.CompletionRateTarget
	}
	if d.Thresholds.LatencyTargetSeconds == 0 {
		d.Thresholds.LatencyTargetSeconds = def.LatencyTargetSeconds
	}
	if d.Thresholds.EscalationRateCeiling == 0 {
		d.Thresholds.EscalationRateCeiling = def.EscalationRateCeiling
	}
	if d.Domain == "" {
		d.Domain = "general"
	}
}

// Validate reports structural problems that warrant falling back.
func (d Domain) Validate() error {
	for name, wf := range d.Workflows {
		if wf.Parallelism != "" {
			if _, ok := wipByParallelism[wf.Parallelism]; !ok {
				return fmt.Errorf("workflow %s: unknown parallelism %q", name, wf.Parallelism)
			}
		}
	}
	var total float64
	for _, share := range d.QuotaAllocation {
		if share < 0 || share > 1 {
			return fmt.Errorf("quota allocation share %v out of [0,1]", share)
		}
		total += share
	}
	if total > 1.0001 {
		return fmt.Errorf("quota allocation shares sum to %v (> 1)", total)
	}
	return nil
}

// Load reads the domain configuration at |path|. Any problem (missing
// file, malformed YAML, invalid content) logs a warning and returns
// the defaults.
func Load(path string) Domain {
	var doc, err = os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithFields(log.Fields{"path": path, "err": err}).
				Warn("domain config unreadable, using defaults")
		}
		return Default()
	}
	var d Domain
	if err = yaml.Unmarshal(doc, &d); err != nil {
		log.WithFields(log.Fields{"path": path, "err": err}).
			Warn("domain config malformed, using defaults")
		return Default()
	}
	d.applyDefaults()
	if err = d.Validate(); err != nil {
		log.WithFields(log.Fields{"path": path, "err": err}).
			Warn("domain config invalid, using defaults")
		return Default()
	}
	return d
}

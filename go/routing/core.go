package routing

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Config parameterizes the pre-router.
type Config struct {
	// AgentsDir is the directory token whose mutation always escalates.
	AgentsDir string
	// Matcher picks a candidate agent when no escalation rule fires.
	// Defaults to a KeywordMatcher.
	Matcher AgentMatcher
}

// Core is the two-layer mechanical router.
type Core struct {
	cfg Config
}

func NewCore(cfg Config) *Core {
	if cfg.AgentsDir == "" {
		cfg.AgentsDir = "agents"
	}
	if cfg.Matcher == nil {
		cfg.Matcher = &KeywordMatcher{}
	}
	return &Core{cfg: cfg}
}

// Route applies the escalation rules in order, then agent matching.
// Route is a pure function of the request under a fixed configuration.
func (c *Core) Route(request string) (Result, error) {
	if err := CheckRequest(request); err != nil {
		return Result{}, err
	}
	var lower = strings.ToLower(request)

	for _, rule := range c.escalationRules() {
		if res, ok := rule(request, lower); ok {
			log.WithFields(log.Fields{
				"decision": res.Decision,
				"reason":   res.Reason,
			}).Debug("pre-router escalated")
			return res, nil
		}
	}

	var agent, conf, err = c.cfg.Matcher.Match(request)
	if err != nil {
		// Matchers embed their own fallback; an error here means even
		// the fallback failed, which keyword matching never does.
		return Result{}, fmt.Errorf("matching agent: %w", err)
	}
	if agent == "" {
		return Result{
			Decision:   Escalate,
			Reason:     "no agent matched the request",
			Confidence: 1.0,
		}, nil
	}
	if conf < c.cfg.Matcher.Threshold() {
		return Result{
			Decision:   Escalate,
			Agent:      agent,
			Reason:     fmt.Sprintf("candidate %s below threshold (%.2f < %.2f)", agent, conf, c.cfg.Matcher.Threshold()),
			Confidence: conf,
		}, nil
	}

	log.WithFields(log.Fields{"agent": agent, "confidence": conf}).
		Debug("pre-router routed directly")
	return Result{
		Decision:   Direct,
		Agent:      agent,
		Reason:     fmt.Sprintf("matched agent %s", agent),
		Confidence: conf,
	}, nil
}

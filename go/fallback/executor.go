package fallback

import (
	"context"

	"github.com/infolead/router/go/tier"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var escalationCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "router_fallback_escalations_total",
	Help: "counter of executions escalated beyond the recommended tier",
}, []string{"from", "to"})

var validationFailureCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "router_validation_failures_total",
	Help: "counter of validation failures per tier and task type",
}, []string{"tier", "task_type"})

var executionCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "router_optimistic_executions_total",
	Help: "counter of optimistic executions by final status",
}, []string{"status"})

// AgentExec invokes an agent of the given tier and returns its result
// text. Implementations run subprocesses and must honor |ctx|.
type AgentExec func(ctx context.Context, tr tier.Tier, request string) (string, error)

// Outcome is the full record of one optimistic execution.
type Outcome struct {
	Result         string      `json:"result"`
	Tier           tier.Tier   `json:"tier"`
	Decision       Decision    `json:"decision"`
	EscalationPath []tier.Tier `json:"escalation_path"`
	Verdicts       []Verdict   `json:"verdicts,omitempty"`
	Passed         bool        `json:"passed"`
	FailureReason  string      `json:"failure_reason,omitempty"`
	// UserVerify mirrors the user_verify tag's observable side effect.
	UserVerify bool `json:"user_verify,omitempty"`
}

// Executor runs a request at the recommended tier, validates the
// result, and walks the fallback chain on failure, skipping tiers that
// cannot plausibly resolve the observed failure.
type Executor struct {
	router    *Router
	validator *Validator
	history   *History
}

func NewExecutor(router *Router, validator *Validator, history *History) *Executor {
	return &Executor{router: router, validator: validator, history: history}
}

// Execute performs one optimistic execution. The sequence of tiers
// actually tried is a prefix of [recommended] ++ fallback_chain with
// skip-decisions applied; the first validated result wins.
func (e *Executor) Execute(ctx context.Context, request string, ectx ExecContext, agentExec AgentExec) (Outcome, error) {
	var decision, err = e.router.Route(request)
	if err != nil {
		return Outcome{}, err
	}

	var out = Outcome{Decision: decision}
	var lastReason string

	var tryTier = func(tr tier.Tier) (bool, error) {
		out.EscalationPath = append(out.EscalationPath, tr)
		var result, execErr = agentExec(ctx, tr, request)
		if execErr != nil {
			lastReason = execErr.Error()
			out.Result, out.Tier, out.FailureReason = result, tr, lastReason
			e.recordFailure(tr, decision.TaskType)
			return false, nil
		}
		out.Result, out.Tier = result, tr

		if len(decision.ValidationCriteria) == 0 {
			e.recordSuccess(tr, decision.TaskType)
			out.Passed = true
			return true, nil
		}
		verdicts, passed, reason := e.validator.Validate(decision.ValidationCriteria, result, ectx)
		out.Verdicts = verdicts
		for _, v := range verdicts {
			if v.UserVerify {
				out.UserVerify = true
			}
		}
		if passed {
			e.recordSuccess(tr, decision.TaskType)
			out.Passed = true
			out.FailureReason = ""
			return true, nil
		}
		lastReason = reason
		out.FailureReason = reason
		e.recordFailure(tr, decision.TaskType)
		validationFailureCounter.WithLabelValues(string(tr), string(decision.TaskType)).Inc()
		return false, nil
	}

	done, err := tryTier(decision.RecommendedModel)
	if err != nil || done {
		e.finish(&out)
		return out, err
	}

	for _, candidate := range decision.FallbackChain {
		if ShouldSkipTier(lastReason, candidate) {
			log.WithFields(log.Fields{
				"tier":   candidate,
				"reason": lastReason,
			}).Info("skipping fallback tier for reasoning failure")
			continue
		}
		escalationCounter.WithLabelValues(string(decision.RecommendedModel), string(candidate)).Inc()
		done, err = tryTier(candidate)
		if err != nil || done {
			break
		}
	}
	e.finish(&out)
	return out, err
}

func (e *Executor) finish(out *Outcome) {
	if out.Passed {
		executionCounter.WithLabelValues("passed").Inc()
	} else {
		executionCounter.WithLabelValues("exhausted").Inc()
	}
	log.WithFields(log.Fields{
		"tier":   out.Tier,
		"path":   out.EscalationPath,
		"passed": out.Passed,
	}).Debug("optimistic execution finished")
}

func (e *Executor) recordSuccess(tr tier.Tier, task TaskType) {
	if err := e.history.RecordSuccess(tr, task); err != nil {
		log.WithField("err", err).Warn("failed to record routing success")
	}
}

func (e *Executor) recordFailure(tr tier.Tier, task TaskType) {
	if err := e.history.RecordFailure(tr, task); err != nil {
		log.WithField("err", err).Warn("failed to record routing failure")
	}
}

// EscalationRate summarizes the exported escalation metric for callers
// that report through the metrics sink rather than prometheus.
func EscalationRate(outcomes []Outcome) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	var escalated = 0
	for _, o := range outcomes {
		if len(o.EscalationPath) > 1 {
			escalated++
		}
	}
	return float64(escalated) / float64(len(outcomes))
}

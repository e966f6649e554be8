package ops

import (
	"github.com/infolead/router/go/orchestrate"
	"github.com/infolead/router/go/routing"
	log "github.com/sirupsen/logrus"
)

// Recorder adapts a Sink to the observation points of the request
// path. Append failures are logged, never propagated: metrics are
// advisory and must not fail a routing decision.
type Recorder struct {
	sink Sink
}

func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink}
}

var _ orchestrate.Recorder = (*Recorder)(nil)

// RecordOrchestration logs a complexity classification and the chosen
// execution mode.
func (r *Recorder) RecordOrchestration(level orchestrate.Level, mode orchestrate.Mode, request string) {
	r.append(Record{
		RecordType: RequestTracking,
		Request:    truncate(request, 200),
		Level:      string(level),
		Mode:       string(mode),
	})
}

// RecordRouting logs a routing recommendation for later compliance
// analysis.
func (r *Recorder) RecordRouting(result routing.Result) {
	r.append(Record{
		RecordType:       RoutingRecommendation,
		RecommendedAgent: result.Agent,
		Reason:           result.Reason,
		Confidence:       result.Confidence,
	})
}

// RecordAgentEvent logs an agent start or stop.
func (r *Recorder) RecordAgentEvent(agent, event string) {
	r.append(Record{RecordType: AgentEvent, Agent: agent, Event: event})
}

// RecordSolutionMetric logs a named measurement.
func (r *Recorder) RecordSolutionMetric(metric string, value float64) {
	r.append(Record{RecordType: SolutionMetric, Metric: metric, Value: value})
}

func (r *Recorder) append(rec Record) {
	if err := r.sink.Append(rec); err != nil {
		log.WithFields(log.Fields{"type": rec.RecordType, "err": err}).
			Warn("dropping metric record")
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

package main

import (
	"github.com/infolead/router/go/hooks"
	"github.com/jessevdk/go-flags"
	mbp "go.gazette.dev/core/mainboilerplate"
)

const iniFilename = "routerctl.ini"

func main() {
	var parser = flags.NewParser(nil, flags.HelpFlag|flags.PassDoubleDash)

	quotaCmd, err := parser.Command.AddCommand("quota", "Inspect and update daily tier quotas", "", &struct{}{})
	mbp.Must(err, "failed to add command")
	addCmd(quotaCmd, "status", "Show today's per-tier consumption", `
Show today's per-tier consumption against limits and reserve buffers.
`, &cmdQuotaStatus{})
	addCmd(quotaCmd, "increment", "Record messages used by a tier", `
Record messages consumed by a tier. Never fails on exhaustion; gate with can-use.
`, &cmdQuotaIncrement{})
	addCmd(quotaCmd, "can-use", "Check whether a tier has quota remaining", `
Check whether a tier has quota remaining beneath its effective limit.
`, &cmdQuotaCanUse{})
	addCmd(quotaCmd, "recommend", "Recommend a tier for a complexity", `
Recommend the cheapest viable tier for a request of the given complexity (1-5),
or DEFER_TO_TOMORROW when every candidate tier is exhausted.
`, &cmdQuotaRecommend{})

	workCmd, err := parser.Command.AddCommand("work", "Operate the WIP-bounded work queue", "", &struct{}{})
	mbp.Must(err, "failed to add command")
	addCmd(workCmd, "add", "Add a work item and schedule", "", &cmdWorkAdd{})
	addCmd(workCmd, "schedule", "Run a scheduling pass", `
Start eligible queued items up to the WIP limit, unblocking items first.
`, &cmdWorkSchedule{})
	addCmd(workCmd, "complete", "Mark a work item completed", "", &cmdWorkComplete{})
	addCmd(workCmd, "fail", "Mark a work item failed", "", &cmdWorkFail{})
	addCmd(workCmd, "status", "Show the work queue", "", &cmdWorkStatus{})

	addCmd(parser, "route", "Route a request through the pre-router", `
Route a request through the mechanical pre-router: escalation rules first,
then agent matching.
`, &cmdRoute{})

	addCmd(parser, "orchestrate", "Orchestrate a request end to end", `
Classify a request's complexity, pick an execution mode, and run the
interpret/plan/execute pipeline.
`, &cmdOrchestrate{})

	addCmd(parser, "execute", "Execute a request with optimistic fallback", `
Run a request at the cheapest plausible tier, validate the result, and
escalate along the fallback chain until a tier's result passes.
`, &cmdExecute{})

	temporalCmd, err := parser.Command.AddCommand("temporal", "Operate the sync/async work queues", "", &struct{}{})
	mbp.Must(err, "failed to add command")
	addCmd(temporalCmd, "status", "Show the temporal queues", "", &cmdTemporalStatus{})
	addCmd(temporalCmd, "add", "Queue work by timing class", "", &cmdTemporalAdd{})
	addCmd(temporalCmd, "schedule", "Select tonight's overnight work", `
Select async items for tonight's run against quota and time budgets.
`, &cmdTemporalSchedule{})
	addCmd(temporalCmd, "evening", "Print the evening report", "", &cmdTemporalEvening{})
	addCmd(temporalCmd, "classify", "Classify a request's timing", "", &cmdTemporalClassify{})

	metricsCmd, err := parser.Command.AddCommand("metrics", "Record and report metrics", "", &struct{}{})
	mbp.Must(err, "failed to add command")
	addCmd(metricsCmd, "record", "Append a solution metric", "", &cmdMetricsRecord{})
	addCmd(metricsCmd, "report", "Print a compliance report", `
Join routing recommendations against agent starts to measure compliance.
`, &cmdMetricsReport{})
	addCmd(metricsCmd, "show", "Show a day's records", "", &cmdMetricsShow{})
	addCmd(metricsCmd, "cleanup", "Remove metric logs past retention", "", &cmdMetricsCleanup{})

	addCmd(parser, "overnight", "Run the scheduled overnight work", `
Execute tonight's scheduled work set with bounded concurrency, respecting
the dependency graph. Exits 2 when some items failed, 124 on timeout.
`, &cmdOvernight{})

	hooksCmd, err := parser.Command.AddCommand("hooks", "Host-assistant hook endpoints", `
Hook endpoints invoked by the host assistant with JSON on stdin.
`, &struct{}{})
	mbp.Must(err, "failed to add command")
	addCmd(hooksCmd, "handle", "Handle one hook invocation from stdin", "", &cmdHooksHandle{})
	addCmd(hooksCmd, "agent-start", "Record an agent start event", "", &cmdHooksHandle{event: hooks.EventAgentStart})
	addCmd(hooksCmd, "agent-stop", "Record an agent stop event", "", &cmdHooksHandle{event: hooks.EventAgentStop})
	addCmd(hooksCmd, "pre-tool-use", "Screen a tool use for permission", "", &cmdHooksHandle{event: hooks.EventPreToolUse})

	sessionCmd, err := parser.Command.AddCommand("session", "Session and audit state", "", &struct{}{})
	mbp.Must(err, "failed to add command")
	addCmd(sessionCmd, "status", "Show session state", "", &cmdSessionStatus{})
	addCmd(sessionCmd, "focus", "Set the session focus", "", &cmdSessionFocus{})
	addCmd(sessionCmd, "prune", "Prune expired session records", "", &cmdSessionPrune{})

	addCmd(parser, "continuation", "Build a session-transfer prompt", `
Build a compact continuation prompt from a session summary read as JSON
on stdin.
`, &cmdContinuation{})

	mbp.AddPrintConfigCmd(parser, iniFilename)
	mbp.MustParseConfig(parser, iniFilename)
}

func addCmd(to interface {
	AddCommand(string, string, string, interface{}) (*flags.Command, error)
}, a, b, c string, iface interface{}) *flags.Command {
	var cmd, err = to.AddCommand(a, b, c, iface)
	mbp.Must(err, "failed to add flags parser command")
	return cmd
}

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/infolead/router/go/fallback"
	"github.com/infolead/router/go/ops"
	"github.com/infolead/router/go/statefile"
	"github.com/infolead/router/go/tier"
	mbp "go.gazette.dev/core/mainboilerplate"
)

type cmdExecute struct {
	State       stateConfig           `group:"State" namespace:"state" env-namespace:"STATE"`
	Agent       agentConfig           `group:"Agent" namespace:"agent" env-namespace:"AGENT"`
	JSON        bool                  `long:"json" description:"Emit JSON"`
	Timeout     time.Duration         `long:"timeout" default:"10m" description:"Per-request timeout"`
	TestCommand []string              `long:"test-command" description:"Command validating no_logic_change (repeatable)"`
	Log         mbp.LogConfig         `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Diagnostics mbp.DiagnosticsConfig `group:"Debug" namespace:"debug" env-namespace:"DEBUG"`
}

func (cmd cmdExecute) Execute(args []string) error {
	defer mbp.InitDiagnosticsAndRecover(cmd.Diagnostics)()
	mbp.InitLog(cmd.Log)

	var request = strings.Join(args, " ")
	var history = fallback.NewHistory(cmd.State.historyPath(), statefile.DefaultConfig())
	var executor = fallback.NewExecutor(
		fallback.NewRouter(history),
		fallback.NewValidator(fallback.Config{}),
		history,
	)

	var ctx, cancel = context.WithTimeout(context.Background(), cmd.Timeout)
	defer cancel()

	var wd, _ = os.Getwd()
	var outcome, err = executor.Execute(ctx, request, fallback.ExecContext{
		TestCommand: cmd.TestCommand,
		WorkDir:     wd,
	}, cmd.Agent.exec)
	if err != nil {
		return err
	}
	ops.NewRecorder(cmd.State.sink()).RecordSolutionMetric(
		"escalations", float64(len(outcome.EscalationPath)-1))

	if cmd.JSON {
		return printJSON(outcome)
	}
	if outcome.Passed {
		color.Green("%s (via %s)", outcome.Tier, strings.Join(tierNames(outcome.EscalationPath), " → "))
	} else {
		color.Red("failed at %s: %s", outcome.Tier, outcome.FailureReason)
	}
	if outcome.UserVerify {
		color.Yellow("user verification requested")
	}
	fmt.Println(outcome.Result)
	return nil
}

func tierNames(tiers []tier.Tier) []string {
	var out = make([]string, len(tiers))
	for i, tr := range tiers {
		out[i] = string(tr)
	}
	return out
}

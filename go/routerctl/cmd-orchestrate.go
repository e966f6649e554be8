package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/infolead/router/go/ops"
	"github.com/infolead/router/go/orchestrate"
	"github.com/infolead/router/go/routing"
	mbp "go.gazette.dev/core/mainboilerplate"
)

type cmdOrchestrate struct {
	State       stateConfig           `group:"State" namespace:"state" env-namespace:"STATE"`
	JSON        bool                  `long:"json" description:"Emit JSON"`
	Test        bool                  `long:"test" description:"Classify only; do not route"`
	ForceMode   string                `long:"force-mode" choice:"SINGLE_STAGE" choice:"SINGLE_STAGE_MONITORED" choice:"MULTI_STAGE" description:"Override mode selection"`
	Log         mbp.LogConfig         `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Diagnostics mbp.DiagnosticsConfig `group:"Debug" namespace:"debug" env-namespace:"DEBUG"`

	Args struct {
		Request []string `positional-arg-name:"request" required:"true"`
	} `positional-args:"yes"`
}

func (cmd cmdOrchestrate) Execute(_ []string) error {
	defer mbp.InitDiagnosticsAndRecover(cmd.Diagnostics)()
	mbp.InitLog(cmd.Log)

	var request = strings.Join(cmd.Args.Request, " ")

	if cmd.Test {
		var analysis = orchestrate.NewClassifier(orchestrate.ClassifierConfig{}).Classify(request)
		if cmd.JSON {
			return printJSON(analysis)
		}
		fmt.Printf("%s (%.2f) → %s\n", analysis.Level, analysis.Confidence, analysis.Recommendation)
		for _, indicator := range analysis.Indicators {
			fmt.Printf("  %s\n", indicator)
		}
		return nil
	}

	var recorder = ops.NewRecorder(cmd.State.sink())
	var orch = orchestrate.New(orchestrate.Config{
		ForcedMode: orchestrate.Mode(cmd.ForceMode),
	}, routing.NewCore(routing.Config{}), recorder)

	var result, err = orch.Orchestrate(request)
	if err != nil {
		return err
	}
	if cmd.JSON {
		return printJSON(result)
	}

	fmt.Printf("strategy: %s (%s)\n", result.Strategy, result.Complexity.Level)
	if result.MonitoringEnabled {
		color.Yellow("monitoring enabled")
	}
	for _, stage := range result.Stages {
		fmt.Printf("  %s: %v\n", stage.Name, stage.Output)
	}
	if result.Routing != nil {
		fmt.Printf("routing: %s %s (%.2f)\n",
			result.Routing.Decision, result.Routing.Agent, result.Routing.Confidence)
	}
	if result.Error != "" {
		color.Red("%s", result.Error)
	}
	return nil
}

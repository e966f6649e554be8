package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/infolead/router/go/agents"
	"github.com/infolead/router/go/ops"
	"github.com/infolead/router/go/routing"
	mbp "go.gazette.dev/core/mainboilerplate"
)

type cmdRoute struct {
	State       stateConfig           `group:"State" namespace:"state" env-namespace:"STATE"`
	Agent       agentConfig           `group:"Agent" namespace:"agent" env-namespace:"AGENT"`
	AgentsDir   string                `long:"agents-dir" description:"Agent definition directory; names override the stock roles"`
	JSON        bool                  `long:"json" description:"Emit JSON"`
	LLM         bool                  `long:"llm" description:"Use the LLM matcher with keyword fallback"`
	Log         mbp.LogConfig         `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Diagnostics mbp.DiagnosticsConfig `group:"Debug" namespace:"debug" env-namespace:"DEBUG"`

	Args struct {
		Request []string `positional-arg-name:"request" required:"true"`
	} `positional-args:"yes"`
}

func (cmd cmdRoute) Execute(_ []string) error {
	defer mbp.InitDiagnosticsAndRecover(cmd.Diagnostics)()
	mbp.InitLog(cmd.Log)

	var keyword = &routing.KeywordMatcher{}
	if cmd.AgentsDir != "" {
		var defs, err = agents.LoadDir(cmd.AgentsDir)
		if err != nil {
			return err
		}
		keyword.Agents = routing.DefaultAgentNames()
		for tr, names := range agents.ByTier(defs) {
			sort.Strings(names)
			keyword.Agents[tr] = names[0]
		}
	}
	var matcher routing.AgentMatcher = keyword
	if cmd.LLM {
		matcher = &routing.FallbackMatcher{
			Primary: &routing.LLMMatcher{
				Command: []string{cmd.Agent.AgentCmd, "--tier", "cheap"},
				Timeout: 30 * time.Second,
			},
			Fallback: keyword,
		}
	}
	var core = routing.NewCore(routing.Config{Matcher: matcher})

	var result, err = core.Route(strings.Join(cmd.Args.Request, " "))
	if err != nil {
		return err
	}
	ops.NewRecorder(cmd.State.sink()).RecordRouting(result)

	if cmd.JSON {
		return printJSON(result)
	}
	if result.Decision == routing.Direct {
		color.Green("DIRECT → %s (%.2f)", result.Agent, result.Confidence)
	} else if result.Agent != "" {
		color.Yellow("ESCALATE (candidate %s, %.2f)", result.Agent, result.Confidence)
	} else {
		color.Yellow("ESCALATE (%.2f)", result.Confidence)
	}
	fmt.Println(result.Reason)
	return nil
}

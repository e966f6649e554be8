package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/infolead/router/go/contextopt"
	mbp "go.gazette.dev/core/mainboilerplate"
)

type cmdSessionStatus struct {
	State stateConfig   `group:"State" namespace:"state" env-namespace:"STATE"`
	JSON  bool          `long:"json" description:"Emit JSON"`
	Log   mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdSessionStatus) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)

	var state, err = cmd.State.sessions().Snapshot()
	if err != nil {
		return err
	}
	if cmd.JSON {
		return printJSON(state)
	}
	if state.Focus != "" {
		fmt.Printf("focus: %s\n", state.Focus)
	}
	if len(state.ActiveAgents) > 0 {
		fmt.Printf("active agents: %s\n", strings.Join(state.ActiveAgents, ", "))
	}
	fmt.Printf("%d searches, %d decisions on record\n",
		len(state.SearchRecords), len(state.DecisionRecords))
	return nil
}

type cmdSessionFocus struct {
	State stateConfig   `group:"State" namespace:"state" env-namespace:"STATE"`
	Log   mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`

	Args struct {
		Focus []string `positional-arg-name:"focus" required:"true"`
	} `positional-args:"yes"`
}

func (cmd cmdSessionFocus) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)
	return cmd.State.sessions().SetFocus(strings.Join(cmd.Args.Focus, " "))
}

type cmdSessionPrune struct {
	State stateConfig   `group:"State" namespace:"state" env-namespace:"STATE"`
	Log   mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdSessionPrune) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)
	return cmd.State.sessions().Prune()
}

type cmdContinuation struct {
	Log mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdContinuation) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)

	var summary struct {
		TaskSummary     string   `json:"task_summary"`
		ActiveFiles     []string `json:"active_files"`
		Decisions       []string `json:"decisions"`
		NextSteps       []string `json:"next_steps"`
		CriticalContext string   `json:"critical_context"`
	}
	if err := json.NewDecoder(os.Stdin).Decode(&summary); err != nil {
		return fmt.Errorf("reading session summary: %w", err)
	}
	fmt.Println(contextopt.ContinuationPrompt(contextopt.SessionSummary{
		TaskSummary:     summary.TaskSummary,
		ActiveFiles:     summary.ActiveFiles,
		Decisions:       summary.Decisions,
		NextSteps:       summary.NextSteps,
		CriticalContext: summary.CriticalContext,
	}))
	return nil
}

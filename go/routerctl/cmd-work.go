package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/infolead/router/go/kanban"
	log "github.com/sirupsen/logrus"
	mbp "go.gazette.dev/core/mainboilerplate"
)

type cmdWorkAdd struct {
	State        stateConfig   `group:"State" namespace:"state" env-namespace:"STATE"`
	ID           string        `long:"id" description:"Item id (default: fresh UUID)"`
	Priority     int           `long:"priority" default:"5" description:"Priority 1-10, higher is more urgent"`
	Complexity   int           `long:"complexity" default:"3" description:"Estimated complexity 1-5"`
	Dependencies []string      `long:"depends-on" description:"Dependency item id (repeatable)"`
	WIPLimit     int           `long:"wip-limit" default:"3" description:"WIP limit for scheduling"`
	Log          mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`

	Args struct {
		Description string `positional-arg-name:"description" required:"true"`
	} `positional-args:"yes"`
}

func (cmd cmdWorkAdd) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)

	var item, err = kanban.Builder{
		ID:                  cmd.ID,
		Description:         cmd.Args.Description,
		Priority:            cmd.Priority,
		EstimatedComplexity: cmd.Complexity,
		Dependencies:        cmd.Dependencies,
	}.Build()
	if err != nil {
		return err
	}
	var started []kanban.WorkItem
	if started, err = cmd.State.coordinator(cmd.WIPLimit).Add(item); err != nil {
		return err
	}
	fmt.Printf("added %s\n", item.ID)
	reportStarted(started)
	return nil
}

type cmdWorkSchedule struct {
	State    stateConfig   `group:"State" namespace:"state" env-namespace:"STATE"`
	WIPLimit int           `long:"wip-limit" default:"3" description:"WIP limit for scheduling"`
	Log      mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdWorkSchedule) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)

	var started, err = cmd.State.coordinator(cmd.WIPLimit).Schedule()
	if err != nil {
		return err
	}
	reportStarted(started)
	return nil
}

type cmdWorkComplete struct {
	State    stateConfig   `group:"State" namespace:"state" env-namespace:"STATE"`
	WIPLimit int           `long:"wip-limit" default:"3" description:"WIP limit for scheduling"`
	Log      mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`

	Args struct {
		ID string `positional-arg-name:"id" required:"true"`
	} `positional-args:"yes"`
}

func (cmd cmdWorkComplete) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)

	var started, err = cmd.State.coordinator(cmd.WIPLimit).Complete(cmd.Args.ID)
	if err != nil {
		return err
	}
	log.WithField("id", cmd.Args.ID).Info("work item completed")
	reportStarted(started)
	return nil
}

type cmdWorkFail struct {
	State    stateConfig   `group:"State" namespace:"state" env-namespace:"STATE"`
	WIPLimit int           `long:"wip-limit" default:"3" description:"WIP limit for scheduling"`
	Log      mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`

	Args struct {
		ID    string `positional-arg-name:"id" required:"true"`
		Error string `positional-arg-name:"error"`
	} `positional-args:"yes"`
}

func (cmd cmdWorkFail) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)

	var started, err = cmd.State.coordinator(cmd.WIPLimit).Fail(cmd.Args.ID, cmd.Args.Error)
	if err != nil {
		return err
	}
	color.Red("failed %s", cmd.Args.ID)
	reportStarted(started)
	return nil
}

type cmdWorkStatus struct {
	State    stateConfig   `group:"State" namespace:"state" env-namespace:"STATE"`
	WIPLimit int           `long:"wip-limit" default:"3" description:"WIP limit for scheduling"`
	JSON     bool          `long:"json" description:"Emit JSON"`
	Log      mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdWorkStatus) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)

	var summary, err = cmd.State.coordinator(cmd.WIPLimit).Summary()
	if err != nil {
		return err
	}
	if cmd.JSON {
		return printJSON(summary)
	}

	fmt.Printf("WIP %d/%d\n", summary.Counts[kanban.StatusActive], summary.WIPLimit)
	for _, item := range summary.Active {
		color.Green("  ACTIVE  [p%d] %s (%s)", item.Priority, item.Description, item.ID)
	}
	for _, item := range summary.Queued {
		fmt.Printf("  QUEUED  [p%d] %s (%s)\n", item.Priority, item.Description, item.ID)
	}
	for status, n := range summary.Counts {
		if status != kanban.StatusActive && status != kanban.StatusQueued {
			fmt.Printf("  %s: %d\n", status, n)
		}
	}
	return nil
}

func reportStarted(started []kanban.WorkItem) {
	for _, item := range started {
		color.Green("started %s: %s", item.ID, item.Description)
	}
}

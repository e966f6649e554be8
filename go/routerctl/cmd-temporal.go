package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/infolead/router/go/kanban"
	"github.com/infolead/router/go/temporal"
	mbp "go.gazette.dev/core/mainboilerplate"
)

type cmdTemporalStatus struct {
	State stateConfig   `group:"State" namespace:"state" env-namespace:"STATE"`
	JSON  bool          `long:"json" description:"Emit JSON"`
	Log   mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdTemporalStatus) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)

	var queues, err = cmd.State.temporalScheduler().Snapshot()
	if err != nil {
		return err
	}
	if cmd.JSON {
		return printJSON(queues)
	}

	var section = func(name string, items []temporal.Item) {
		if len(items) == 0 {
			return
		}
		fmt.Printf("%s (%d):\n", name, len(items))
		for _, item := range items {
			fmt.Printf("  [p%d] %s (%s)\n", item.Priority, item.Description, item.ID)
		}
	}
	section("sync", queues.SyncQueue)
	section("async", queues.AsyncQueue)
	section("scheduled", queues.ScheduledAsync)
	section("completed overnight", queues.CompletedOvernight)
	section("failed", queues.FailedWork)
	return nil
}

type cmdTemporalAdd struct {
	State      stateConfig   `group:"State" namespace:"state" env-namespace:"STATE"`
	ID         string        `long:"id" description:"Item id (default: fresh UUID)"`
	Priority   int           `long:"priority" default:"5" description:"Priority 1-10"`
	Complexity int           `long:"complexity" default:"3" description:"Estimated complexity 1-5"`
	Timing     string        `long:"timing" choice:"SYNC" choice:"ASYNC" choice:"EITHER" description:"Timing class (default: classified from the description)"`
	Quota      int           `long:"quota" description:"Estimated messages"`
	Duration   int           `long:"duration" description:"Estimated minutes"`
	DependsOn  []string      `long:"depends-on" description:"Dependency item id (repeatable)"`
	Log        mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`

	Args struct {
		Description []string `positional-arg-name:"description" required:"true"`
	} `positional-args:"yes"`
}

func (cmd cmdTemporalAdd) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)

	var description = strings.Join(cmd.Args.Description, " ")
	var work, err = kanban.Builder{
		ID:                  cmd.ID,
		Description:         description,
		Priority:            cmd.Priority,
		EstimatedComplexity: cmd.Complexity,
		Dependencies:        cmd.DependsOn,
	}.Build()
	if err != nil {
		return err
	}

	var timing = temporal.Timing(cmd.Timing)
	if timing == "" {
		timing = temporal.ClassifyTiming(description, temporal.Flags{})
	}
	var item = temporal.Item{
		WorkItem:                 work,
		Timing:                   timing,
		EstimatedQuota:           cmd.Quota,
		EstimatedDurationMinutes: cmd.Duration,
	}
	if err = cmd.State.temporalScheduler().AddWork(item); err != nil {
		return err
	}
	fmt.Printf("queued %s as %s\n", work.ID, timing)
	return nil
}

type cmdTemporalSchedule struct {
	State stateConfig   `group:"State" namespace:"state" env-namespace:"STATE"`
	Log   mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdTemporalSchedule) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)

	var scheduled, err = cmd.State.temporalScheduler().ScheduleOvernightWork()
	if err != nil {
		return err
	}
	if len(scheduled) == 0 {
		fmt.Println("nothing scheduled")
		return nil
	}
	for _, item := range scheduled {
		color.Green("scheduled %s: %s", item.ID, item.Description)
	}
	return nil
}

type cmdTemporalEvening struct {
	State stateConfig   `group:"State" namespace:"state" env-namespace:"STATE"`
	JSON  bool          `long:"json" description:"Emit JSON"`
	Log   mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdTemporalEvening) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)

	var report, err = cmd.State.temporalScheduler().EveningReport()
	if err != nil {
		return err
	}
	if cmd.JSON {
		return printJSON(report)
	}
	fmt.Print(report.Render())
	return nil
}

type cmdTemporalClassify struct {
	Approval bool          `long:"requires-approval" description:"The work needs user approval"`
	Batch    bool          `long:"batch" description:"The work is explicitly batch mode"`
	Log      mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`

	Args struct {
		Request []string `positional-arg-name:"request" required:"true"`
	} `positional-args:"yes"`
}

func (cmd cmdTemporalClassify) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)

	var timing = temporal.ClassifyTiming(strings.Join(cmd.Args.Request, " "), temporal.Flags{
		RequiresApproval: cmd.Approval,
		BatchMode:        cmd.Batch,
	})
	fmt.Println(timing)
	return nil
}

package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/infolead/router/go/ops"
	mbp "go.gazette.dev/core/mainboilerplate"
)

type cmdMetricsRecord struct {
	State stateConfig   `group:"State" namespace:"state" env-namespace:"STATE"`
	Value float64       `long:"value" required:"true" description:"Metric value"`
	Log   mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`

	Args struct {
		Metric string `positional-arg-name:"metric" required:"true"`
	} `positional-args:"yes"`
}

func (cmd cmdMetricsRecord) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)

	return cmd.State.sink().Append(ops.Record{
		RecordType: ops.SolutionMetric,
		Metric:     cmd.Args.Metric,
		Value:      cmd.Value,
	})
}

type cmdMetricsReport struct {
	State stateConfig   `group:"State" namespace:"state" env-namespace:"STATE"`
	Day   string        `long:"day" description:"Day to report (YYYY-MM-DD, default today)"`
	JSON  bool          `long:"json" description:"Emit JSON"`
	Log   mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`

	Args struct {
		Period string `positional-arg-name:"period" choice:"daily" choice:"weekly" required:"true"`
	} `positional-args:"yes"`
}

func (cmd cmdMetricsReport) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)

	var day = cmd.Day
	if day == "" {
		day = time.Now().UTC().Format("2006-01-02")
	}
	var analyzer = ops.NewComplianceAnalyzer(cmd.State.sink())

	var report ops.ComplianceReport
	var err error
	if cmd.Args.Period == "weekly" {
		report, err = analyzer.Weekly(day)
	} else {
		report, err = analyzer.Daily(day)
	}
	if err != nil {
		return err
	}
	if cmd.JSON {
		return printJSON(report)
	}

	fmt.Printf("compliance %s .. %s: %d/%d followed (%.0f%%)\n",
		report.Days[0], report.Days[len(report.Days)-1],
		report.Followed, report.Recommendations, 100*report.Rate)
	for agent, n := range report.IgnoredByAgent {
		color.Yellow("  ignored %s ×%d", agent, n)
	}
	return nil
}

type cmdMetricsShow struct {
	State stateConfig   `group:"State" namespace:"state" env-namespace:"STATE"`
	Day   string        `long:"day" description:"Day to show (YYYY-MM-DD, default today)"`
	Type  string        `long:"type" description:"Filter by record type"`
	Log   mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdMetricsShow) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)

	var day = cmd.Day
	if day == "" {
		day = time.Now().UTC().Format("2006-01-02")
	}
	var records, err = cmd.State.sink().ReadDay(day)
	if err != nil {
		return err
	}
	for _, record := range records {
		if cmd.Type != "" && string(record.RecordType) != cmd.Type {
			continue
		}
		if err = printJSON(record); err != nil {
			return err
		}
	}
	return nil
}

type cmdMetricsCleanup struct {
	State     stateConfig   `group:"State" namespace:"state" env-namespace:"STATE"`
	Retention int           `long:"retention-days" default:"90" description:"Days of logs to keep"`
	Log       mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdMetricsCleanup) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)

	var removed, err = cmd.State.sink().Cleanup(time.Duration(cmd.Retention) * 24 * time.Hour)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d dated logs\n", removed)
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/infolead/router/go/temporal"
	"github.com/infolead/router/go/tier"
	log "github.com/sirupsen/logrus"
	mbp "go.gazette.dev/core/mainboilerplate"
)

type cmdOvernight struct {
	State         stateConfig           `group:"State" namespace:"state" env-namespace:"STATE"`
	Agent         agentConfig           `group:"Agent" namespace:"agent" env-namespace:"AGENT"`
	QueueFile     string                `long:"queue-file" description:"Temporal queue document (default <state-dir>/temporal-queues.json)"`
	ResultsDir    string                `long:"results-dir" description:"Per-run result files (default <state-dir>/overnight-results)"`
	MaxConcurrent int                   `long:"max-concurrent" default:"3" description:"Concurrent work items"`
	Timeout       time.Duration         `long:"timeout" default:"6h" description:"Overall run timeout"`
	Log           mbp.LogConfig         `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Diagnostics   mbp.DiagnosticsConfig `group:"Debug" namespace:"debug" env-namespace:"DEBUG"`
}

func (cmd cmdOvernight) Execute(_ []string) error {
	defer mbp.InitDiagnosticsAndRecover(cmd.Diagnostics)()
	mbp.InitLog(cmd.Log)

	var resultsDir = cmd.ResultsDir
	if resultsDir == "" {
		resultsDir = cmd.State.resultsDir()
	}
	var scheduler = cmd.State.temporalScheduler()
	if cmd.QueueFile != "" {
		var err error
		scheduler, err = temporal.NewScheduler(temporal.Config{StatePath: cmd.QueueFile}, cmd.State.tracker())
		mbp.Must(err, "failed to build temporal scheduler")
	}

	var ctx, cancel = signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, cmd.Timeout)
	defer cancelTimeout()

	var executor = temporal.NewOvernightExecutor(temporal.ExecutorConfig{
		MaxConcurrent: cmd.MaxConcurrent,
		ResultsDir:    resultsDir,
	}, scheduler,
		func(ctx context.Context, tr tier.Tier, item temporal.Item) (string, error) {
			return cmd.Agent.exec(ctx, tr, item.Description)
		})

	var summary, err = executor.Run(ctx)
	if err != nil {
		return err
	}

	var failed int
	for id, result := range summary.Results {
		if result.Error != "" {
			failed++
			color.Red("%s: %s", id, result.Error)
		} else {
			color.Green("%s: done", id)
		}
	}
	fmt.Printf("%d executed, %d failed\n", len(summary.Results), failed)

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		log.Warn("overnight run hit its timeout; results are partial")
		os.Exit(124)
	case ctx.Err() == context.Canceled:
		os.Exit(130)
	case failed > 0:
		os.Exit(2)
	}
	return nil
}

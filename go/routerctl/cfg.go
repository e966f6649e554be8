package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/infolead/router/go/hooks"
	"github.com/infolead/router/go/kanban"
	"github.com/infolead/router/go/ops"
	"github.com/infolead/router/go/quota"
	"github.com/infolead/router/go/session"
	"github.com/infolead/router/go/temporal"
	"github.com/infolead/router/go/tier"
	mbp "go.gazette.dev/core/mainboilerplate"
)

// stateConfig locates the on-disk state root shared by every command.
type stateConfig struct {
	Dir string `long:"state-dir" env:"ROUTER_STATE_DIR" description:"State directory (default ~/.infolead-router)"`
}

func (c stateConfig) root() string {
	if c.Dir != "" {
		return c.Dir
	}
	var home, err = os.UserHomeDir()
	mbp.Must(err, "failed to resolve home directory")
	return filepath.Join(home, ".infolead-router")
}

func (c stateConfig) quotaPath() string     { return filepath.Join(c.root(), "quota-tracking.json") }
func (c stateConfig) workQueuePath() string { return filepath.Join(c.root(), "work-queue.json") }
func (c stateConfig) temporalPath() string  { return filepath.Join(c.root(), "temporal-queues.json") }
func (c stateConfig) historyPath() string   { return filepath.Join(c.root(), "routing-history.json") }
func (c stateConfig) sessionPath() string   { return filepath.Join(c.root(), "session-state.json") }
func (c stateConfig) metricsDir() string    { return filepath.Join(c.root(), "metrics") }
func (c stateConfig) resultsDir() string    { return filepath.Join(c.root(), "overnight-results") }

func (c stateConfig) tracker() *quota.Tracker {
	var t, err = quota.NewTracker(quota.Config{StatePath: c.quotaPath()})
	mbp.Must(err, "failed to build quota tracker")
	return t
}

func (c stateConfig) coordinator(wip int) *kanban.Coordinator {
	var coord, err = kanban.NewCoordinator(kanban.Config{
		StatePath: c.workQueuePath(),
		WIPLimit:  wip,
	})
	mbp.Must(err, "failed to build work coordinator")
	return coord
}

func (c stateConfig) temporalScheduler() *temporal.Scheduler {
	var s, err = temporal.NewScheduler(temporal.Config{
		StatePath: c.temporalPath(),
	}, c.tracker())
	mbp.Must(err, "failed to build temporal scheduler")
	return s
}

func (c stateConfig) sink() *ops.FileSink {
	return ops.NewFileSink(c.metricsDir())
}

func (c stateConfig) sessions() *session.Manager {
	var m, err = session.NewManager(session.Config{StatePath: c.sessionPath()})
	mbp.Must(err, "failed to build session manager")
	return m
}

// agentConfig names the external agent binary that executes work.
type agentConfig struct {
	AgentCmd string `long:"agent-cmd" env:"ROUTER_AGENT_CMD" default:"agent" description:"Agent binary; invoked as <cmd> --tier <tier> with the request on stdin"`
}

// exec runs one request against the named tier's agent, with hook
// suppression set so the subprocess does not re-enter this plugin.
func (a agentConfig) exec(ctx context.Context, tr tier.Tier, request string) (string, error) {
	var cmd = exec.CommandContext(ctx, a.AgentCmd, "--tier", string(tr))
	cmd.Stdin = strings.NewReader(request)
	cmd.Env = append(os.Environ(), hooks.SuppressEnv+"=1")

	var out, err = cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("agent timed out")
		}
		return "", fmt.Errorf("running agent: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func printJSON(v interface{}) error {
	var enc = json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

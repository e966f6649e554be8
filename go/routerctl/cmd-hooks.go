package main

import (
	"context"
	"os"

	"github.com/infolead/router/go/config"
	"github.com/infolead/router/go/hooks"
	"github.com/infolead/router/go/ops"
	mbp "go.gazette.dev/core/mainboilerplate"
)

type cmdHooksHandle struct {
	State        stateConfig   `group:"State" namespace:"state" env-namespace:"STATE"`
	DomainConfig string        `long:"domain-config" description:"Domain YAML for risk patterns"`
	Log          mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`

	// event is fixed by the registering verb; empty for the generic
	// handle verb, which dispatches on the envelope's event field.
	event string
}

func (cmd cmdHooksHandle) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)

	var domain = config.Default()
	if cmd.DomainConfig != "" {
		domain = config.Load(cmd.DomainConfig)
	}
	var handler = hooks.New(hooks.Config{Risk: domain.RiskPatterns},
		ops.NewRecorder(cmd.State.sink()))

	os.Exit(handler.RunAs(context.Background(), cmd.event, os.Stdin, os.Stdout))
	return nil
}

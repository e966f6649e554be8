package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/infolead/router/go/quota"
	"github.com/infolead/router/go/tier"
	log "github.com/sirupsen/logrus"
	mbp "go.gazette.dev/core/mainboilerplate"
)

type cmdQuotaStatus struct {
	State       stateConfig           `group:"State" namespace:"state" env-namespace:"STATE"`
	JSON        bool                  `long:"json" description:"Emit JSON"`
	Log         mbp.LogConfig         `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Diagnostics mbp.DiagnosticsConfig `group:"Debug" namespace:"debug" env-namespace:"DEBUG"`
}

func (cmd cmdQuotaStatus) Execute(_ []string) error {
	defer mbp.InitDiagnosticsAndRecover(cmd.Diagnostics)()
	mbp.InitLog(cmd.Log)

	var summary, err = cmd.State.tracker().Summarize()
	if err != nil {
		return err
	}
	if cmd.JSON {
		return printJSON(summary)
	}

	fmt.Printf("Quota for %s\n", summary.Date)
	for _, tr := range tier.All {
		var ts = summary.Tiers[tr]
		if ts.Limit == quota.Unlimited {
			fmt.Printf("  %-8s %d used (unlimited)\n", tr, ts.Used)
			continue
		}
		var line = fmt.Sprintf("  %-8s %d / %d effective (%.0f%%), %d remaining",
			tr, ts.Used, ts.EffectiveLimit, ts.Percent, ts.Remaining)
		switch {
		case ts.Remaining == 0:
			color.Red("%s", line)
		case ts.Percent >= 80:
			color.Yellow("%s", line)
		default:
			fmt.Println(line)
		}
	}
	return nil
}

type cmdQuotaIncrement struct {
	State stateConfig   `group:"State" namespace:"state" env-namespace:"STATE"`
	Count int           `long:"count" default:"1" description:"Messages to record"`
	Log   mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`

	Args struct {
		Tier string `positional-arg-name:"tier" required:"true"`
	} `positional-args:"yes"`
}

func (cmd cmdQuotaIncrement) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)

	var tr, err = tier.Parse(cmd.Args.Tier)
	if err != nil {
		return err
	}
	var used int
	if used, err = cmd.State.tracker().Increment(tr, cmd.Count); err != nil {
		return err
	}
	log.WithFields(log.Fields{"tier": tr, "used": used}).Info("quota incremented")
	fmt.Printf("%s: %d used today\n", tr, used)
	return nil
}

type cmdQuotaCanUse struct {
	State stateConfig   `group:"State" namespace:"state" env-namespace:"STATE"`
	Log   mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`

	Args struct {
		Tier string `positional-arg-name:"tier" required:"true"`
	} `positional-args:"yes"`
}

func (cmd cmdQuotaCanUse) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)

	var tr, err = tier.Parse(cmd.Args.Tier)
	if err != nil {
		return err
	}
	var ok bool
	if ok, err = cmd.State.tracker().CanUse(tr); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("tier %s is exhausted for today", tr)
	}
	fmt.Printf("%s: available\n", tr)
	return nil
}

type cmdQuotaRecommend struct {
	State stateConfig   `group:"State" namespace:"state" env-namespace:"STATE"`
	Log   mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`

	Args struct {
		Complexity int `positional-arg-name:"complexity" required:"true"`
	} `positional-args:"yes"`
}

func (cmd cmdQuotaRecommend) Execute(_ []string) error {
	mbp.InitLog(cmd.Log)

	var selected, err = quota.NewScheduler(cmd.State.tracker()).Select(cmd.Args.Complexity)
	if err != nil {
		return err
	}
	if selected == quota.DeferToTomorrow {
		color.Yellow("%s", selected)
	} else {
		fmt.Println(selected)
	}
	return nil
}

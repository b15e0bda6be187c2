package commands

import (
	"context"

	"github.com/wolfeidau/buildplan/internal/plan"
)

type PlanCmd struct {
	Mode   string `help:"profile to compose" default:"development" env:"BUILDPLAN_MODE"`
	Format string `help:"output format (yaml or json)" default:"yaml" enum:"yaml,json"`
}

func (p *PlanCmd) Run(ctx context.Context, globals *Globals) error {
	globals.setupLogging()

	res, _, err := globals.compose(ctx, p.Mode)
	if err != nil {
		return err
	}

	return plan.Encode(globals.stdout(), res.Plan, plan.Format(p.Format))
}

package commands

import (
	"context"
	"fmt"

	"github.com/wolfeidau/buildplan/internal/assets"
)

type BuildCmd struct {
	Mode    string `help:"profile to build" default:"production" env:"BUILDPLAN_MODE"`
	WorkDir string `help:"directory plan paths are relative to" default:"." env:"BUILDPLAN_WORK_DIR" type:"path"`
}

func (b *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	log := globals.setupLogging()

	log.Info().Str("version", globals.Version).Str("profile", b.Mode).Msg("Starting build")

	defer globals.startTelemetry(ctx, b.Mode)()

	pipeline, err := b.pipeline(ctx, globals)
	if err != nil {
		return err
	}

	res, err := pipeline.Build(ctx)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	out := globals.stdout()
	for _, file := range res.Outputs {
		_, _ = fmt.Fprintln(out, file)
	}

	log.Info().Str("build_id", res.ID).Int("outputs", len(res.Outputs)).Dur("duration", res.Duration).Msg("Build finished")
	return nil
}

func (b *BuildCmd) pipeline(ctx context.Context, globals *Globals) (*assets.Pipeline, error) {
	res, env, err := globals.compose(ctx, b.Mode)
	if err != nil {
		return nil, err
	}
	return newPipeline(res.Plan, env, b.WorkDir)
}

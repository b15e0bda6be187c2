package commands

import (
	"context"

	"github.com/wolfeidau/buildplan/internal/assets"
	"github.com/wolfeidau/buildplan/internal/devserver"
	"github.com/wolfeidau/buildplan/internal/plan"
	"github.com/wolfeidau/buildplan/internal/profile"
)

type ServeCmd struct {
	Mode    string `help:"profile to serve" default:"development" env:"BUILDPLAN_MODE"`
	WorkDir string `help:"directory plan paths are relative to" default:"." env:"BUILDPLAN_WORK_DIR" type:"path"`
	Host    string `help:"override devServerOptions.host" default:"" env:"BUILDPLAN_HOST"`
	Port    int    `help:"override devServerOptions.port" default:"0" env:"BUILDPLAN_PORT"`
}

func (s *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := globals.setupLogging()

	log.Info().Str("version", globals.Version).Str("profile", s.Mode).Msg("Starting dev server")

	defer globals.startTelemetry(ctx, s.Mode)()

	res, env, err := globals.compose(ctx, s.Mode)
	if err != nil {
		return err
	}

	srv, err := s.server(res.Plan, env)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}

func (s *ServeCmd) server(bp plan.BuildPlan, env profile.EnvironmentProfile) (*devserver.Server, error) {
	opts, err := devserver.OptionsFromPlan(bp)
	if err != nil {
		return nil, err
	}
	opts.WorkDir = s.WorkDir
	if s.Host != "" {
		opts.Host = s.Host
	}
	if s.Port != 0 {
		opts.Port = s.Port
	}

	pipeline, err := newPipeline(bp, env, s.WorkDir, func(cfg *assets.Config) {
		// the hot plugin or devServerOptions can each turn live reload on
		opts.LiveReload = opts.LiveReload || cfg.LiveReload
		cfg.LiveReload = opts.LiveReload
		cfg.LiveReloadPath = devserver.LiveReloadPath
	})
	if err != nil {
		return nil, err
	}

	return devserver.New(opts, pipeline)
}

var _ devserver.Builder = (*assets.Pipeline)(nil)

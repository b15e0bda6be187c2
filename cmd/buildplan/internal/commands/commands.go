package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/buildplan/internal/logger"
	"github.com/wolfeidau/buildplan/internal/plan"
	"github.com/wolfeidau/buildplan/internal/profile"
	"github.com/wolfeidau/buildplan/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Globals struct {
	Debug     bool
	Version   string
	PlanDir   string
	EnvDir    string
	Profiles  []string
	Strict    bool
	DeepMerge bool
	Tracing   bool
	// KEY=VALUE snapshot that wins over .env files
	Environ []string
	Out     io.Writer
}

func (g *Globals) setupLogging() zerolog.Logger {
	log.Logger = logger.Setup(g.Debug)
	return log.Logger
}

func (g *Globals) stdout() io.Writer {
	if g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

func (g *Globals) registry() *profile.Registry {
	if len(g.Profiles) == 0 {
		return profile.DefaultRegistry()
	}
	return profile.NewRegistry(g.Profiles...)
}

// startTelemetry initializes exporters when tracing is enabled. The returned
// func flushes them.
func (g *Globals) startTelemetry(ctx context.Context, profileID string) func() {
	if !g.Tracing {
		return func() {}
	}

	log.Info().Msg("Tracing is enabled")
	shutdown, err := telemetry.InitTelemetry(ctx, "buildplan", g.Version, profileID)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
		shutdown = telemetry.Noop
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}
}

// compose loads the base plan, the override and the environment for mode and
// returns the composed plan.
func (g *Globals) compose(ctx context.Context, mode string) (*plan.Result, profile.EnvironmentProfile, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "plan.Compose")
	defer span.End()

	registry := g.registry()
	if !registry.Known(mode) {
		return nil, profile.EnvironmentProfile{}, fmt.Errorf("%w: %q (known: %v)", plan.ErrUnknownProfile, mode, registry.IDs())
	}

	base, err := plan.ReadFile(filepath.Join(g.PlanDir, plan.BaseFile))
	if err != nil {
		return nil, profile.EnvironmentProfile{}, err
	}

	override, err := plan.ReadOverride(g.PlanDir, mode)
	if err != nil {
		return nil, profile.EnvironmentProfile{}, err
	}

	loader := profile.Loader{Dir: g.EnvDir, Environ: g.Environ}
	env, err := loader.Load(mode)
	if err != nil {
		return nil, profile.EnvironmentProfile{}, err
	}

	var opts []plan.Option
	if g.Strict {
		opts = append(opts, plan.WithStrictPlaceholders())
	}
	if g.DeepMerge {
		opts = append(opts, plan.WithDeepMerge())
	}

	res, err := plan.NewComposer(registry, opts...).Compose(base, env, override)
	if err != nil {
		return nil, profile.EnvironmentProfile{}, err
	}

	m := telemetry.GetMetrics()
	profileAttr := metric.WithAttributes(attribute.String("profile", mode))
	m.ComposeTotal.Add(ctx, 1, profileAttr)
	if len(res.Unresolved) > 0 {
		m.UnresolvedPlaceholders.Add(ctx, int64(len(res.Unresolved)), profileAttr)
		log.Warn().Str("profile", mode).Strs("names", res.Unresolved).Msg("Placeholders without a value were replaced with empty strings")
	}

	log.Debug().Str("profile", mode).Strs("sections", res.Plan.Sections()).Str("env_file", loader.EnvFile(mode)).Msg("Composed plan")

	return res, env, nil
}

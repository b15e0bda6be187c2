package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/buildplan/internal/assets"
	"github.com/wolfeidau/buildplan/internal/plan"
	"github.com/wolfeidau/buildplan/internal/profile"
)

// newPipeline turns a composed plan into an asset pipeline rooted at workDir.
// configure runs after the plan is applied.
func newPipeline(bp plan.BuildPlan, env profile.EnvironmentProfile, workDir string, configure ...func(*assets.Config)) (*assets.Pipeline, error) {
	cfg, err := assets.ConfigFromPlan(bp, env)
	if err != nil {
		return nil, err
	}
	cfg.WorkDir = workDir

	for _, fn := range configure {
		fn(&cfg)
	}

	pipeline, err := assets.New(cfg)
	if err != nil {
		return nil, err
	}

	if unsupported := pipeline.UnsupportedPlugins(); len(unsupported) > 0 {
		log.Info().Strs("plugins", unsupported).Msg("Plugins without a built-in equivalent are skipped")
	}

	return pipeline, nil
}

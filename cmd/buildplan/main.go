package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/buildplan/cmd/buildplan/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Build    commands.BuildCmd    `cmd:"" help:"Compose the plan for a profile and build assets once"`
		Serve    commands.ServeCmd    `cmd:"" help:"Compose the plan for a profile and run the dev server"`
		Plan     commands.PlanCmd     `cmd:"" help:"Print the composed plan for a profile"`
		Profiles commands.ProfilesCmd `cmd:"" help:"List recognized profiles"`

		Debug        bool     `help:"Enable debug mode."`
		PlanDir      string   `help:"directory holding base.yaml and <profile>.yaml" default:"." env:"BUILDPLAN_DIR" type:"path"`
		EnvDir       string   `help:"directory holding .env.<profile> files" default:"." env:"BUILDPLAN_ENV_DIR" type:"path"`
		ProfileNames []string `name:"profiles" help:"recognized profile identifiers" default:"development,production" env:"BUILDPLAN_PROFILES"`
		Strict       bool     `help:"fail when a placeholder has no value" default:"false" env:"BUILDPLAN_STRICT"`
		DeepMerge    bool     `help:"merge nested mappings recursively and append nested lists" default:"false" env:"BUILDPLAN_DEEP_MERGE"`
		Tracing      bool     `help:"enable tracing" default:"false" env:"BUILDPLAN_TRACING"`
		Version      kong.VersionFlag
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{
		Debug:     cli.Debug,
		Version:   version,
		PlanDir:   cli.PlanDir,
		EnvDir:    cli.EnvDir,
		Profiles:  cli.ProfileNames,
		Strict:    cli.Strict,
		DeepMerge: cli.DeepMerge,
		Tracing:   cli.Tracing,
		Environ:   os.Environ(),
		Out:       os.Stdout,
	})
	cmd.FatalIfErrorf(err)
}

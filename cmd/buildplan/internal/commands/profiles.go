package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/wolfeidau/buildplan/internal/plan"
	"github.com/wolfeidau/buildplan/internal/profile"
)

type ProfilesCmd struct{}

func (p *ProfilesCmd) Run(_ context.Context, globals *Globals) error {
	globals.setupLogging()

	loader := profile.Loader{Dir: globals.EnvDir}

	w := tabwriter.NewWriter(globals.stdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROFILE\tOVERRIDE\tENV FILE")

	for _, id := range globals.registry().IDs() {
		override := "-"
		for _, ext := range []string{".yaml", ".yml"} {
			name := filepath.Join(globals.PlanDir, id+ext)
			if exists(name) {
				override = id + ext
				break
			}
		}

		envFile := "-"
		if exists(loader.EnvFile(id)) {
			envFile = ".env." + id
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", id, override, envFile)
	}

	if !exists(filepath.Join(globals.PlanDir, plan.BaseFile)) {
		_, _ = fmt.Fprintf(w, "\nmissing %s in %s\n", plan.BaseFile, globals.PlanDir)
	}

	return w.Flush()
}

func exists(name string) bool {
	_, err := os.Stat(name)
	return !errors.Is(err, fs.ErrNotExist)
}

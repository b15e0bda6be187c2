package assets

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/buildplan/internal/plan"
)

// clean removes files under the output directory that match the configured
// patterns. Patterns prefixed with "!" protect matching files. Directories are
// left in place and nothing outside the output directory is touched.
func (p *Pipeline) clean(opts plan.Mapping) error {
	patterns := opts.Strings("patterns")
	if len(patterns) == 0 {
		patterns = opts.Strings("cleanOnceBeforeBuildPatterns")
	}
	if len(patterns) == 0 {
		patterns = []string{"**"}
	}

	var include, exclude []glob.Glob
	for _, pattern := range patterns {
		target := &include
		if rest, ok := strings.CutPrefix(pattern, "!"); ok {
			pattern, target = rest, &exclude
		}
		g, err := glob.Compile(strings.TrimPrefix(pattern, "./"), '/')
		if err != nil {
			return err
		}
		*target = append(*target, g)
	}

	outDir := p.OutputDir()
	removed := 0

	err := filepath.WalkDir(outDir, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(outDir, name)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !matchAny(include, rel) || matchAny(exclude, rel) {
			return nil
		}
		if err := os.Remove(name); err != nil {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return err
	}

	log.Debug().Str("outdir", outDir).Int("removed", removed).Msg("Cleaned output directory")
	return nil
}

func matchAny(globs []glob.Glob, name string) bool {
	for _, g := range globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

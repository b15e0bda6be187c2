package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/buildplan/internal/plan"
)

const defaultCopyName = "[name][ext]"

type copyPattern struct {
	from             string
	to               string
	name             string
	ignore           []glob.Glob
	noErrorOnMissing bool
}

func parseCopyPatterns(opts plan.Mapping) ([]copyPattern, error) {
	var items []plan.Mapping
	if list, ok := opts.List("patterns"); ok {
		for i, item := range list {
			m, ok := item.(plan.Mapping)
			if !ok {
				return nil, fmt.Errorf("pattern %d is a %s", i, item.Kind())
			}
			items = append(items, m)
		}
	} else if _, ok := opts["from"]; ok {
		items = append(items, opts)
	}

	patterns := make([]copyPattern, 0, len(items))
	for i, m := range items {
		from, _ := m.Str("from")
		if from == "" {
			return nil, fmt.Errorf("pattern %d has no from", i)
		}
		cp := copyPattern{from: from, name: defaultCopyName}
		cp.to, _ = m.Str("to")
		if name, ok := m.Str("name"); ok && name != "" {
			cp.name = name
		}
		cp.noErrorOnMissing, _ = m.Bool("noErrorOnMissing")

		ignores := m.Strings("ignore")
		if globOpts, ok := m.Map("globOptions"); ok {
			ignores = append(ignores, globOpts.Strings("ignore")...)
		}
		for _, pattern := range ignores {
			g, err := glob.Compile(strings.TrimPrefix(pattern, "./"), '/')
			if err != nil {
				return nil, fmt.Errorf("pattern %d: %w", i, err)
			}
			cp.ignore = append(cp.ignore, g)
		}
		patterns = append(patterns, cp)
	}
	return patterns, nil
}

// copyAssets copies static files into the output tree.
func (p *Pipeline) copyAssets(buildLog zerolog.Logger, opts plan.Mapping) error {
	patterns, err := parseCopyPatterns(opts)
	if err != nil {
		return err
	}

	for _, cp := range patterns {
		src := p.path(cp.from)
		dst := p.OutputDir()
		if cp.to != "" {
			dst = p.path(cp.to)
		}

		info, err := os.Stat(src)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && cp.noErrorOnMissing {
				buildLog.Debug().Str("from", cp.from).Msg("Copy source missing, skipping")
				continue
			}
			return err
		}

		if !info.IsDir() {
			if err := copyFile(src, dst, path.Base(filepath.ToSlash(src)), cp.name); err != nil {
				return err
			}
			continue
		}

		copied := 0
		err = filepath.WalkDir(src, func(name string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			rel, err := filepath.Rel(src, name)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if matchAny(cp.ignore, rel) || matchAny(cp.ignore, path.Base(rel)) {
				return nil
			}
			copied++
			return copyFile(name, dst, rel, cp.name)
		})
		if err != nil {
			return err
		}

		buildLog.Debug().Str("from", cp.from).Str("to", dst).Int("files", copied).Msg("Copied assets")
	}

	return nil
}

func copyFile(src, dstDir, rel, nameTmpl string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	target := filepath.Join(dstDir, filepath.FromSlash(renderCopyName(nameTmpl, rel, data)))
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}
	return os.WriteFile(target, data, 0o644) //nolint:gosec
}

// renderCopyName expands [path], [name], [ext] and [contenthash] for a file at rel.
// Without [path] the file keeps its relative directory.
func renderCopyName(tmpl, rel string, data []byte) string {
	dir, base := path.Split(rel)
	ext := path.Ext(base)
	hash := contentHash(data)

	replacer := strings.NewReplacer(
		"[path]", dir,
		"[name]", strings.TrimSuffix(base, ext),
		"[ext]", ext,
		"[contenthash]", hash,
		"[hash]", hash,
	)
	name := replacer.Replace(tmpl)

	if strings.Contains(tmpl, "[path]") {
		return name
	}
	return path.Join(dir, name)
}

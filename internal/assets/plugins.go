package assets

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/buildplan/internal/plan"
)

// Built-in plugin names.
const (
	PluginClean  = "clean"
	PluginCopy   = "copy"
	PluginHTML   = "html"
	PluginDefine = "define"
	PluginHot    = "hot"
)

// pluginAliases maps the webpack plugin names found in existing plans onto the
// built-in plugins.
var pluginAliases = map[string]string{
	"cleanwebpackplugin":         PluginClean,
	"clean-webpack-plugin":       PluginClean,
	"copywebpackplugin":          PluginCopy,
	"copy-webpack-plugin":        PluginCopy,
	"htmlwebpackplugin":          PluginHTML,
	"html-webpack-plugin":        PluginHTML,
	"defineplugin":               PluginDefine,
	"hotmodulereplacementplugin": PluginHot,
	"hmr":                        PluginHot,
}

// PluginSpec is one entry of the pluginSpecs section.
type PluginSpec struct {
	Name    string
	Options plan.Mapping
}

// ParsePluginSpecs reads plugin specs. An entry is either a bare name or a
// mapping with a name key plus options. Duplicates are kept.
func ParsePluginSpecs(items plan.List) ([]PluginSpec, error) {
	specs := make([]PluginSpec, 0, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case plan.Scalar:
			name := v.String()
			if name == "" {
				return nil, fmt.Errorf("%w: plugin %d has no name", ErrInvalidPlugin, i)
			}
			specs = append(specs, PluginSpec{Name: canonicalPluginName(name), Options: plan.Mapping{}})
		case plan.Mapping:
			name, ok := v.Str("name")
			if !ok || name == "" {
				return nil, fmt.Errorf("%w: plugin %d has no name", ErrInvalidPlugin, i)
			}
			specs = append(specs, PluginSpec{Name: canonicalPluginName(name), Options: v})
		default:
			return nil, fmt.Errorf("%w: plugin %d is a %s", ErrInvalidPlugin, i, item.Kind())
		}
	}
	return specs, nil
}

func canonicalPluginName(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := pluginAliases[lower]; ok {
		return alias
	}
	return lower
}

// runClean applies every clean plugin before the bundler writes anything.
func (p *Pipeline) runClean() error {
	for _, spec := range p.config.Plugins {
		if spec.Name != PluginClean {
			continue
		}
		if err := p.clean(spec.Options); err != nil {
			return fmt.Errorf("%w: clean: %w", ErrInvalidPlugin, err)
		}
	}
	return nil
}

// runPostBuild applies copy and html plugins in declaration order.
func (p *Pipeline) runPostBuild(buildLog zerolog.Logger) error {
	for _, spec := range p.config.Plugins {
		var err error
		switch spec.Name {
		case PluginCopy:
			err = p.copyAssets(buildLog, spec.Options)
		case PluginHTML:
			err = p.renderHTML(buildLog, spec.Options)
		case PluginClean, PluginDefine, PluginHot:
			// applied before the build or through esbuild options
		default:
			buildLog.Debug().Str("plugin", spec.Name).Msg("Skipping plugin not provided by this pipeline")
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidPlugin, spec.Name, err)
		}
	}
	return nil
}

// UnsupportedPlugins returns the names of configured plugins this pipeline ignores.
func (p *Pipeline) UnsupportedPlugins() []string {
	var names []string
	for _, spec := range p.config.Plugins {
		switch spec.Name {
		case PluginClean, PluginCopy, PluginHTML, PluginDefine, PluginHot:
		default:
			names = append(names, spec.Name)
		}
	}
	return names
}

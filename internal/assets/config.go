package assets

import (
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/buildplan/internal/plan"
	"github.com/wolfeidau/buildplan/internal/profile"
)

type Config struct {
	// Entry point glob pattern (e.g., "ui/pages/*.tsx")
	EntryPointGlob string
	// Directory relative paths are resolved against, defaults to the current directory
	WorkDir string
	// Output directory for built files
	OutputDir string
	// Output naming templates in esbuild syntax
	EntryNames string
	ChunkNames string
	AssetNames string
	// URL prefix for emitted files
	PublicPath string
	// Path to metafile (relative to WorkDir)
	MetafilePath string
	// Whether to minify output
	Minify bool
	// Whether to split shared code into chunks, forces ESM output
	Splitting bool
	// Output module format
	Format api.Format
	// Source map mode
	SourceMap api.SourceMap
	// Build mode, exposed as process.env.NODE_ENV
	Mode string
	// Extensions tried when resolving bare imports
	ResolveExtensions []string
	// Import path substitutions
	Alias map[string]string
	// Loader per file extension
	Loaders map[string]api.Loader
	// Global identifier replacements, values are JS expressions
	Define map[string]string
	// Post and pre build plugins
	Plugins []PluginSpec
	// Size budget checks
	Performance Performance
	// Inject the live reload client into JS bundles
	LiveReload bool
	// SSE endpoint the live reload client subscribes to
	LiveReloadPath string
}

// Performance mirrors the performance section: hints is "", "warning" or "error".
type Performance struct {
	Hints        string
	MaxAssetSize int
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		EntryPointGlob: "src/index.js",
		OutputDir:      "dist",
		EntryNames:     "[name]",
		MetafilePath:   "dist/meta.json",
		Minify:         true,
		Format:         api.FormatIIFE,
		SourceMap:      api.SourceMapLinked,
		Mode:           profile.Production,
	}
}

// ConfigFromPlan translates a composed build plan into pipeline configuration.
// Variables from the profile feed the define plugin.
func ConfigFromPlan(bp plan.BuildPlan, p profile.EnvironmentProfile) (Config, error) {
	cfg := DefaultConfig()

	if entry, ok := bp.Scalar(plan.SectionEntry); ok && entry.String() != "" {
		cfg.EntryPointGlob = entry.String()
	}

	output := bp.Mapping(plan.SectionOutput)
	if dir, ok := output.Str("path"); ok && dir != "" {
		cfg.OutputDir = dir
	}
	cfg.MetafilePath = path.Join(filepath.ToSlash(cfg.OutputDir), "meta.json")
	if metafile, ok := output.Str("metafile"); ok && metafile != "" {
		cfg.MetafilePath = metafile
	}
	if name, ok := output.Str("filename"); ok && name != "" {
		cfg.EntryNames = nameTemplate(name)
	}
	if name, ok := output.Str("chunkFilename"); ok && name != "" {
		cfg.ChunkNames = nameTemplate(name)
	}
	if name, ok := output.Str("assetFilename"); ok && name != "" {
		cfg.AssetNames = nameTemplate(name)
	}
	if publicPath, ok := output.Str("publicPath"); ok {
		cfg.PublicPath = publicPath
	}

	resolve := bp.Mapping(plan.SectionResolveRules)
	for _, ext := range resolve.Strings("extensions") {
		// webpack uses "*" to mean "exact path", which esbuild always tries first
		if ext == "*" || ext == "" {
			continue
		}
		cfg.ResolveExtensions = append(cfg.ResolveExtensions, ext)
	}
	if alias, ok := resolve.Map("alias"); ok {
		cfg.Alias = map[string]string{}
		for _, k := range alias.Keys() {
			v, _ := alias.Str(k)
			cfg.Alias[k] = v
		}
	}

	loaders, err := loadersFromRules(bp.List(plan.SectionTransformRules))
	if err != nil {
		return Config{}, err
	}
	cfg.Loaders = loaders

	opt := bp.Mapping(plan.SectionOptimization)
	if minimize, ok := opt.Bool("minimize"); ok {
		cfg.Minify = minimize
	}
	if splitting, ok := opt.Bool("splitting"); ok {
		cfg.Splitting = splitting
	}

	format, _ := output.Str("format")
	cfg.Format, err = parseFormat(format, cfg.Splitting)
	if err != nil {
		return Config{}, err
	}

	if devtool, ok := bp.Scalar(plan.SectionDevtool); ok {
		cfg.SourceMap = sourceMapMode(devtool)
	}

	cfg.Define = map[string]string{}
	if mode, ok := bp.Scalar(plan.SectionMode); ok && mode.String() != "" {
		cfg.Mode = mode.String()
	}
	cfg.Define["process.env.NODE_ENV"] = jsString(cfg.Mode)

	perf := bp.Mapping(plan.SectionPerformance)
	if hints, ok := perf.Str("hints"); ok && hints != "false" {
		cfg.Performance.Hints = hints
	}
	if size, ok := perf.Int("maxAssetSize"); ok {
		cfg.Performance.MaxAssetSize = size
	}

	specs, err := ParsePluginSpecs(bp.List(plan.SectionPluginSpecs))
	if err != nil {
		return Config{}, err
	}
	cfg.Plugins = specs

	for _, spec := range specs {
		switch spec.Name {
		case PluginDefine:
			prefix, ok := spec.Options.Str("prefix")
			if !ok || prefix == "" {
				prefix = profile.DefaultDefinePrefix
			}
			for k, v := range p.WithPrefix(prefix) {
				cfg.Define[k] = jsString(v)
				cfg.Define["process.env."+k] = jsString(v)
			}
		case PluginHot:
			cfg.LiveReload = true
		}
	}

	return cfg, nil
}

// nameTemplate converts a webpack filename template into esbuild naming syntax.
// esbuild appends the extension itself.
func nameTemplate(name string) string {
	name = strings.TrimSuffix(name, path.Ext(name))
	return strings.NewReplacer(
		"[contenthash]", "[hash]",
		"[chunkhash]", "[hash]",
		"[fullhash]", "[hash]",
		"[id]", "[name]",
		"[path]", "[dir]/",
	).Replace(name)
}

func parseFormat(format string, splitting bool) (api.Format, error) {
	switch format {
	case "":
		if splitting {
			return api.FormatESModule, nil
		}
		return api.FormatIIFE, nil
	case "esm":
		return api.FormatESModule, nil
	case "iife":
		if splitting {
			return api.FormatDefault, fmt.Errorf("%w: splitting requires esm output", ErrInvalidRule)
		}
		return api.FormatIIFE, nil
	case "cjs":
		if splitting {
			return api.FormatDefault, fmt.Errorf("%w: splitting requires esm output", ErrInvalidRule)
		}
		return api.FormatCommonJS, nil
	default:
		return api.FormatDefault, fmt.Errorf("%w: unknown output format %q", ErrInvalidRule, format)
	}
}

func sourceMapMode(devtool plan.Scalar) api.SourceMap {
	if b, ok := devtool.V.(bool); ok && !b {
		return api.SourceMapNone
	}
	switch s := devtool.String(); {
	case s == "" || s == "false" || s == "none":
		return api.SourceMapNone
	case strings.HasPrefix(s, "inline") || strings.HasPrefix(s, "eval"):
		return api.SourceMapInline
	case strings.HasPrefix(s, "hidden"):
		return api.SourceMapExternal
	default:
		return api.SourceMapLinked
	}
}

var loaderNames = map[string]api.Loader{
	"js":         api.LoaderJS,
	"jsx":        api.LoaderJSX,
	"ts":         api.LoaderTS,
	"tsx":        api.LoaderTSX,
	"json":       api.LoaderJSON,
	"text":       api.LoaderText,
	"base64":     api.LoaderBase64,
	"dataurl":    api.LoaderDataURL,
	"file":       api.LoaderFile,
	"binary":     api.LoaderBinary,
	"css":        api.LoaderCSS,
	"local-css":  api.LoaderLocalCSS,
	"global-css": api.LoaderGlobalCSS,
	"copy":       api.LoaderCopy,
	"empty":      api.LoaderEmpty,
	"default":    api.LoaderDefault,

	// webpack loader names used by existing plans
	"babel-loader": api.LoaderJSX,
	"file-loader":  api.LoaderFile,
	"url-loader":   api.LoaderDataURL,
	"raw-loader":   api.LoaderText,
	"css-loader":   api.LoaderCSS,
}

func parseLoader(name string) (api.Loader, error) {
	l, ok := loaderNames[strings.ToLower(name)]
	if !ok {
		return api.LoaderNone, fmt.Errorf("%w: %q", ErrUnknownLoader, name)
	}
	return l, nil
}

// loadersFromRules maps each {extensions, loader} rule into the esbuild loader table.
// Later rules win for the same extension.
func loadersFromRules(rules plan.List) (map[string]api.Loader, error) {
	out := map[string]api.Loader{}
	for i, item := range rules {
		rule, ok := item.(plan.Mapping)
		if !ok {
			return nil, fmt.Errorf("%w: rule %d is a %s", ErrInvalidRule, i, item.Kind())
		}
		name, ok := rule.Str("loader")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: rule %d has no loader", ErrInvalidRule, i)
		}
		loader, err := parseLoader(name)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		exts := rule.Strings("extensions")
		if len(exts) == 0 {
			return nil, fmt.Errorf("%w: rule %d has no extensions", ErrInvalidRule, i)
		}
		for _, ext := range exts {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			out[ext] = loader
		}
	}
	return out, nil
}

// jsString renders s as a JS string literal, like JSON.stringify.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

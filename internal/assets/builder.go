package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/buildplan/internal/logger"
	"github.com/wolfeidau/buildplan/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// Build runs esbuild with the configured settings and loads metadata
func (p *Pipeline) Build(ctx context.Context) (*BuildResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, span := telemetry.Tracer().Start(ctx, "assets.Build")
	defer span.End()

	started := time.Now()

	entryPoints, err := p.entryPoints()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	log.Info().Strs("entrypoints", entryPoints).Str("outdir", p.config.OutputDir).Msg("Building assets")

	if err := p.runClean(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := api.Build(p.options(entryPoints))

	res, err := p.complete(ctx, uuid.NewString(), started, result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("build.id", res.ID), attribute.Int("build.outputs", len(res.Outputs)))
	return res, nil
}

// Watch builds once and rebuilds whenever an input changes, calling onRebuild after
// every build. It blocks until ctx is cancelled.
func (p *Pipeline) Watch(ctx context.Context, onRebuild func(*BuildResult, error)) error {
	entryPoints, err := p.entryPoints()
	if err != nil {
		return err
	}

	p.mu.Lock()
	err = p.runClean()
	p.mu.Unlock()
	if err != nil {
		return err
	}

	var started atomic.Int64

	opts := p.options(entryPoints)
	opts.Plugins = append(opts.Plugins, api.Plugin{
		Name: "buildplan-watch",
		Setup: func(build api.PluginBuild) {
			build.OnStart(func() (api.OnStartResult, error) {
				started.Store(time.Now().UnixNano())
				log.Debug().Msg("Rebuild started")
				return api.OnStartResult{}, nil
			})
			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				p.mu.Lock()
				res, err := p.complete(ctx, uuid.NewString(), time.Unix(0, started.Load()), *result)
				p.mu.Unlock()

				if onRebuild != nil {
					onRebuild(res, err)
				}
				return api.OnEndResult{}, nil
			})
		},
	})

	bctx, ctxErr := api.Context(opts)
	if ctxErr != nil {
		logger.Messages(log.Logger, zerolog.ErrorLevel, ctxErr.Errors)
		return fmt.Errorf("%w: failed to create build context", ErrBuildFailed)
	}
	defer bctx.Dispose()

	if err := bctx.Watch(api.WatchOptions{}); err != nil {
		return fmt.Errorf("failed to start watch mode: %w", err)
	}

	log.Info().Strs("entrypoints", entryPoints).Msg("Watching assets for changes")

	<-ctx.Done()
	return nil
}

// complete records the outcome of an esbuild run: metafile, metadata, size
// checks and post-build plugins. Callers hold p.mu.
func (p *Pipeline) complete(ctx context.Context, id string, started time.Time, result api.BuildResult) (*BuildResult, error) {
	m := telemetry.GetMetrics()
	m.BuildsTotal.Add(ctx, 1)

	buildLog := log.With().Str("build_id", id).Logger()

	logger.Messages(buildLog, zerolog.WarnLevel, result.Warnings)

	if len(result.Errors) > 0 {
		logger.Messages(buildLog, zerolog.ErrorLevel, result.Errors)
		m.BuildErrorsTotal.Add(ctx, 1)
		return nil, fmt.Errorf("%w: %s", ErrBuildFailed, result.Errors[0].Text)
	}

	metafilePath := p.path(p.config.MetafilePath)
	if err := os.MkdirAll(filepath.Dir(metafilePath), 0o750); err != nil {
		return nil, err
	}
	if err := os.WriteFile(metafilePath, []byte(result.Metafile), 0600); err != nil {
		return nil, err
	}

	var metadata BuildMetadata
	if err := json.Unmarshal([]byte(result.Metafile), &metadata); err != nil {
		return nil, err
	}
	p.metadata = &metadata

	outputs := slices.Sorted(maps.Keys(metadata.Outputs))
	for _, file := range outputs {
		buildLog.Info().Str("file", file).Int("bytes", metadata.Outputs[file].Bytes).Msg("Built file")
	}

	if err := p.checkPerformance(buildLog); err != nil {
		m.BuildErrorsTotal.Add(ctx, 1)
		return nil, err
	}

	if err := p.runPostBuild(buildLog); err != nil {
		m.PluginErrorsTotal.Add(ctx, 1)
		return nil, err
	}

	duration := time.Since(started)
	m.OutputFilesTotal.Add(ctx, int64(len(outputs)))
	m.BuildDuration.Record(ctx, float64(duration.Milliseconds()),
		metric.WithAttributes(attribute.String("mode", p.config.Mode)))

	buildLog.Info().Dur("duration", duration).Int("outputs", len(outputs)).Msg("Build complete")

	return &BuildResult{
		ID:       id,
		Outputs:  outputs,
		Warnings: len(result.Warnings),
		Duration: duration,
	}, nil
}

func (p *Pipeline) entryPoints() ([]string, error) {
	entryPoints, err := filepath.Glob(p.path(p.config.EntryPointGlob))
	if err != nil {
		return nil, err
	}

	if len(entryPoints) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEntryPoints, p.config.EntryPointGlob)
	}

	return entryPoints, nil
}

func (p *Pipeline) options(entryPoints []string) api.BuildOptions {
	opts := api.BuildOptions{
		EntryPoints:       entryPoints,
		AbsWorkingDir:     p.workDir,
		Bundle:            true,
		Splitting:         p.config.Splitting,
		Write:             true,
		JSX:               api.JSXAutomatic,
		Outdir:            p.OutputDir(),
		EntryNames:        p.config.EntryNames,
		ChunkNames:        p.config.ChunkNames,
		AssetNames:        p.config.AssetNames,
		PublicPath:        p.config.PublicPath,
		Format:            p.config.Format,
		MinifyWhitespace:  p.config.Minify,
		MinifyIdentifiers: p.config.Minify,
		MinifySyntax:      p.config.Minify,
		TreeShaking:       api.TreeShakingTrue,
		Sourcemap:         p.config.SourceMap,
		Metafile:          true,
		Loader:            p.config.Loaders,
		ResolveExtensions: p.config.ResolveExtensions,
		Alias:             p.config.Alias,
		Define:            p.config.Define,
		LogLevel:          api.LogLevelSilent,
	}

	if p.config.LiveReload && p.config.LiveReloadPath != "" {
		opts.Banner = map[string]string{"js": liveReloadClient(p.config.LiveReloadPath)}
	}

	return opts
}

func (p *Pipeline) checkPerformance(buildLog zerolog.Logger) error {
	perf := p.config.Performance
	if perf.Hints == "" || perf.MaxAssetSize <= 0 {
		return nil
	}

	for _, file := range slices.Sorted(maps.Keys(p.metadata.Outputs)) {
		size := p.metadata.Outputs[file].Bytes
		if size <= perf.MaxAssetSize || strings.HasSuffix(file, ".map") {
			continue
		}
		if perf.Hints == "error" {
			return fmt.Errorf("%w: %s is %d bytes, limit %d", ErrAssetTooLarge, file, size, perf.MaxAssetSize)
		}
		buildLog.Warn().Str("file", file).Int("bytes", size).Int("limit", perf.MaxAssetSize).Msg("Asset exceeds recommended size")
	}

	return nil
}

// LoadScripts returns the ordered list of script URLs needed for the given entrypoint
// and the main entrypoint URL
func (p *Pipeline) LoadScripts(entryPointPath string) ([]string, string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.loadScripts(entryPointPath)
}

func (p *Pipeline) loadScripts(entryPointPath string) ([]string, string, error) {
	if p.metadata == nil {
		return nil, "", ErrNotBuilt
	}

	entryPointPath = path.Clean(filepath.ToSlash(entryPointPath))

	scripts := []string{}
	visited := make(map[string]bool)

	// Find the output file for this entrypoint
	for _, outputPath := range slices.Sorted(maps.Keys(p.metadata.Outputs)) {
		info := p.metadata.Outputs[outputPath]
		if info.EntryPoint != entryPointPath || strings.HasSuffix(outputPath, ".css") {
			continue
		}
		entrypoint := p.assetURL(outputPath)
		scripts = append(scripts, entrypoint)
		visited[outputPath] = true
		p.addDependencies(info, &scripts, visited)
		return scripts, entrypoint, nil
	}

	return nil, "", fmt.Errorf("%w: %s", ErrEntryPointNotFound, entryPointPath)
}

func (p *Pipeline) addDependencies(output OutputInfo, scripts *[]string, visited map[string]bool) {
	for _, imp := range output.Imports {
		if imp.Kind == "dynamic-import" || visited[imp.Path] {
			continue
		}
		chunkInfo, exists := p.metadata.Outputs[imp.Path]
		if !exists {
			continue
		}
		visited[imp.Path] = true
		*scripts = append(*scripts, p.assetURL(imp.Path))
		p.addDependencies(chunkInfo, scripts, visited)
	}
}

// assetURL maps a metafile output path to the URL it is served from.
func (p *Pipeline) assetURL(outputPath string) string {
	rel, err := filepath.Rel(p.OutputDir(), p.path(outputPath))
	if err != nil {
		rel = outputPath
	}

	prefix := p.config.PublicPath
	if prefix == "" || prefix == "auto" {
		prefix = "/"
	}

	return strings.TrimSuffix(prefix, "/") + "/" + filepath.ToSlash(rel)
}

func liveReloadClient(endpoint string) string {
	return fmt.Sprintf(`(() => {
  if (typeof window === "undefined" || typeof EventSource === "undefined" || window.__buildplanLiveReload) return;
  window.__buildplanLiveReload = true;
  const es = new EventSource(%s);
  es.addEventListener("reload", () => location.reload());
  es.addEventListener("content-changed", () => location.reload());
})();`, jsString(endpoint))
}

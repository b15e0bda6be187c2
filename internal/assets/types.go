package assets

import (
	"path/filepath"
	"sync"
	"time"
)

type BuildMetadata struct {
	Outputs map[string]OutputInfo `json:"outputs"`
}

type OutputInfo struct {
	EntryPoint string       `json:"entryPoint"`
	CSSBundle  string       `json:"cssBundle"`
	Imports    []ImportInfo `json:"imports"`
	Bytes      int          `json:"bytes"`
}

type ImportInfo struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

// BuildResult summarises one bundler run.
type BuildResult struct {
	// ID correlates log lines and live reload events for a build
	ID string
	// Outputs lists emitted files relative to the working directory
	Outputs  []string
	Warnings int
	Duration time.Duration
}

// Pipeline manages the asset build process and script loading
type Pipeline struct {
	config   Config
	workDir  string
	metadata *BuildMetadata
	mu       sync.RWMutex
}

// New creates a new asset pipeline with the given configuration
func New(config Config) (*Pipeline, error) {
	workDir := config.WorkDir
	if workDir == "" {
		workDir = "."
	}
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		config:  config,
		workDir: abs,
	}, nil
}

// Config returns the configuration the pipeline was created with.
func (p *Pipeline) Config() Config {
	return p.config
}

// path resolves a plan relative path against the working directory.
func (p *Pipeline) path(rel string) string {
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(p.workDir, filepath.FromSlash(rel))
}

// OutputDir is the absolute output directory.
func (p *Pipeline) OutputDir() string {
	return p.path(p.config.OutputDir)
}

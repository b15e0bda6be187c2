package assets

import "errors"

var (
	// ErrNoEntryPoints indicates the entry glob matched no files
	ErrNoEntryPoints = errors.New("no entry points found")
	// ErrUnknownLoader indicates a transform rule names a loader esbuild does not provide
	ErrUnknownLoader = errors.New("unknown loader")
	// ErrInvalidRule indicates a malformed transform rule
	ErrInvalidRule = errors.New("invalid transform rule")
	// ErrInvalidPlugin indicates a malformed or failing plugin spec
	ErrInvalidPlugin = errors.New("invalid plugin")
	// ErrBuildFailed indicates esbuild reported errors
	ErrBuildFailed = errors.New("esbuild failed with errors")
	// ErrNotBuilt indicates metadata was requested before a build completed
	ErrNotBuilt = errors.New("assets not built yet, call Build() first")
	// ErrEntryPointNotFound indicates the entry point is absent from the metafile
	ErrEntryPointNotFound = errors.New("entrypoint not found in metadata")
	// ErrAssetTooLarge indicates an output exceeded performance.maxAssetSize with hints set to error
	ErrAssetTooLarge = errors.New("asset exceeds size limit")
)

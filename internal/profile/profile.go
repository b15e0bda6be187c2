// Package profile loads the named build mode and its environment variables.
//
// A profile is built once at the command boundary and passed explicitly to the
// plan composer, which never consults the process environment itself.
package profile

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
)

const (
	Development = "development"
	Production  = "production"

	// DefaultDefinePrefix selects the variables exposed to bundled code.
	DefaultDefinePrefix = "MY_APP_"
)

// ErrInvalidProfile indicates an empty or malformed profile identifier
var ErrInvalidProfile = errors.New("invalid profile identifier")

// EnvironmentProfile is a build mode plus the variables resolved for it.
type EnvironmentProfile struct {
	ID        string
	Variables map[string]string
}

// New returns a profile with a copy of vars.
func New(id string, vars map[string]string) EnvironmentProfile {
	return EnvironmentProfile{ID: id, Variables: maps.Clone(vars)}
}

// Lookup returns the named variable.
func (p EnvironmentProfile) Lookup(name string) (string, bool) {
	v, ok := p.Variables[name]
	return v, ok
}

// WithPrefix returns the variables whose names start with prefix.
func (p EnvironmentProfile) WithPrefix(prefix string) map[string]string {
	out := map[string]string{}
	for k, v := range p.Variables {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out
}

// Registry is the closed set of recognized profile identifiers.
type Registry struct {
	ids map[string]struct{}
}

// NewRegistry creates a registry holding ids. Blank ids are ignored.
func NewRegistry(ids ...string) *Registry {
	r := &Registry{ids: map[string]struct{}{}}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		r.ids[id] = struct{}{}
	}
	return r
}

// DefaultRegistry recognizes development and production.
func DefaultRegistry() *Registry {
	return NewRegistry(Development, Production)
}

// Known reports whether id is registered.
func (r *Registry) Known(id string) bool {
	if r == nil {
		return false
	}
	_, ok := r.ids[id]
	return ok
}

// IDs returns the registered identifiers in sorted order.
func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(r.ids))
}

// Loader builds profiles from dotenv files and an explicit environment snapshot.
type Loader struct {
	// Dir holds the .env.<profile> files.
	Dir string
	// Environ is a KEY=VALUE snapshot, usually os.Environ(). Entries win over
	// values read from the dotenv file.
	Environ []string
}

// Load reads <Dir>/.env.<id> and overlays Environ. A missing file is not an error.
func (l Loader) Load(id string) (EnvironmentProfile, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return EnvironmentProfile{}, fmt.Errorf("%w: %q", ErrInvalidProfile, id)
	}

	vars, err := godotenv.Read(l.EnvFile(id))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return EnvironmentProfile{}, fmt.Errorf("failed to read env file for profile %q: %w", id, err)
		}
		vars = map[string]string{}
	}

	for _, kv := range l.Environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		vars[k] = v
	}

	return EnvironmentProfile{ID: id, Variables: vars}, nil
}

// EnvFile returns the dotenv path for id.
func (l Loader) EnvFile(id string) string {
	return filepath.Join(l.Dir, ".env."+id)
}

package plan

import (
	"fmt"
	"maps"
	"slices"
)

// Section names understood by the asset pipeline and dev server.
const (
	SectionEntry          = "entry"
	SectionOutput         = "output"
	SectionResolveRules   = "resolveRules"
	SectionTransformRules = "transformRules"
	SectionOptimization   = "optimization"
	SectionDevServer      = "devServerOptions"
	SectionPluginSpecs    = "pluginSpecs"
	SectionMode           = "mode"
	SectionDevtool        = "devtool"
	SectionPerformance    = "performance"
)

// BuildPlan is the fully resolved set of sections handed to the bundler for one build.
type BuildPlan map[string]Value

// Override is a partial BuildPlan layered onto a base for one profile.
type Override map[string]Value

// Sections returns the section names in sorted order.
func (p BuildPlan) Sections() []string {
	return slices.Sorted(maps.Keys(p))
}

// Section returns the named section.
func (p BuildPlan) Section(name string) (Value, bool) {
	v, ok := p[name]
	return v, ok
}

// Mapping returns a mapping section, or an empty mapping when it is absent.
func (p BuildPlan) Mapping(name string) Mapping {
	if m, ok := p[name].(Mapping); ok {
		return m
	}
	return Mapping{}
}

// List returns a list section, or nil when it is absent.
func (p BuildPlan) List(name string) List {
	if l, ok := p[name].(List); ok {
		return l
	}
	return nil
}

// Scalar returns a scalar section.
func (p BuildPlan) Scalar(name string) (Scalar, bool) {
	s, ok := p[name].(Scalar)
	return s, ok
}

// Clone returns a deep copy of the plan.
func (p BuildPlan) Clone() BuildPlan {
	out := make(BuildPlan, len(p))
	for k, v := range p {
		out[k] = v.Clone()
	}
	return out
}

// Native converts the plan into plain Go maps, slices and scalars for encoding.
func (p BuildPlan) Native() map[string]any {
	return Mapping(p).Native().(map[string]any)
}

// Equal reports whether two plans have the same sections with equal values.
func (p BuildPlan) Equal(other BuildPlan) bool {
	return Equal(Mapping(p), Mapping(other))
}

// SectionSpec describes the statically enforced shape of a known section.
type SectionSpec struct {
	Kind     Kind
	Required bool
}

// Schema maps known section names to their specs. Sections not in the schema are
// accepted with whatever kind they are given.
type Schema map[string]SectionSpec

// DefaultSchema returns the schema of the sections understood by this module.
func DefaultSchema() Schema {
	return Schema{
		SectionEntry:          {Kind: KindScalar, Required: true},
		SectionOutput:         {Kind: KindMapping, Required: true},
		SectionResolveRules:   {Kind: KindMapping, Required: true},
		SectionTransformRules: {Kind: KindList, Required: true},
		SectionOptimization:   {Kind: KindMapping, Required: true},
		SectionPluginSpecs:    {Kind: KindList, Required: true},
		SectionDevServer:      {Kind: KindMapping},
		SectionMode:           {Kind: KindScalar},
		SectionDevtool:        {Kind: KindScalar},
		SectionPerformance:    {Kind: KindMapping},
	}
}

// checkKind returns ErrSectionKind when a known section holds the wrong kind.
func (s Schema) checkKind(name string, v Value, where string) error {
	spec, ok := s[name]
	if !ok {
		return nil
	}
	if v.Kind() != spec.Kind {
		return fmt.Errorf("%w: %s section %q is %s, want %s", ErrSectionKind, where, name, v.Kind(), spec.Kind)
	}
	return nil
}

// validateBase checks that every required section is present and correctly shaped.
func (s Schema) validateBase(base BuildPlan) error {
	for _, name := range slices.Sorted(maps.Keys(s)) {
		v, ok := base[name]
		if !ok {
			if s[name].Required {
				return fmt.Errorf("%w: %q", ErrMissingBaseSection, name)
			}
			continue
		}
		if err := s.checkKind(name, v, "base"); err != nil {
			return err
		}
	}
	return nil
}

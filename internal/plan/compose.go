package plan

import (
	"fmt"
	"maps"
	"slices"

	"github.com/wolfeidau/buildplan/internal/profile"
)

// ProfileSet reports whether a profile identifier is recognized.
type ProfileSet interface {
	Known(id string) bool
}

// Result is the output of a composition.
type Result struct {
	Plan BuildPlan
	// Unresolved lists placeholder names that had no value, sorted and unique.
	Unresolved []string
}

// Composer layers a profile override onto a base plan.
type Composer struct {
	profiles ProfileSet
	schema   Schema
	strict   bool
	deep     bool
}

// Option configures a Composer.
type Option func(*Composer)

// WithSchema replaces the default section schema.
func WithSchema(schema Schema) Option {
	return func(c *Composer) {
		c.schema = schema
	}
}

// WithStrictPlaceholders makes unresolved placeholders an error instead of an empty value.
func WithStrictPlaceholders() Option {
	return func(c *Composer) {
		c.strict = true
	}
}

// WithDeepMerge merges nested mappings recursively and appends nested lists,
// like webpack-merge. By default an override key replaces the base key.
func WithDeepMerge() Option {
	return func(c *Composer) {
		c.deep = true
	}
}

// NewComposer creates a composer that accepts only the given profiles.
func NewComposer(profiles ProfileSet, opts ...Option) *Composer {
	c := &Composer{
		profiles: profiles,
		schema:   DefaultSchema(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose merges override onto base for the given profile and substitutes
// placeholders from the profile variables. Neither input is modified.
//
// Placeholders in base are expanded as well, so composing with an empty
// override returns base unchanged only when base holds no placeholders.
// Otherwise it returns base with its placeholders substituted.
func (c *Composer) Compose(base BuildPlan, p profile.EnvironmentProfile, override Override) (*Result, error) {
	if c.profiles == nil || !c.profiles.Known(p.ID) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, p.ID)
	}

	if err := c.schema.validateBase(base); err != nil {
		return nil, err
	}

	out := base.Clone()

	for _, name := range slices.Sorted(maps.Keys(override)) {
		ov := override[name]
		if ov == nil {
			continue
		}
		if err := c.schema.checkKind(name, ov, "override"); err != nil {
			return nil, err
		}
		if bv, ok := out[name]; ok {
			out[name] = merge(bv, ov, c.deep)
			continue
		}
		out[name] = ov.Clone()
	}

	sub := newSubstituter(p.Variables)
	for name, v := range out {
		out[name] = sub.apply(v)
	}

	unresolved := sub.unresolved()
	if c.strict && len(unresolved) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnresolvedPlaceholder, unresolved)
	}

	return &Result{Plan: out, Unresolved: unresolved}, nil
}

// merge combines an override value with a base value. Lists append, mappings
// take the override's keys and everything else is replaced by the override.
// With deep set, keys present on both sides are merged recursively.
func merge(base, override Value, deep bool) Value {
	switch b := base.(type) {
	case List:
		if o, ok := override.(List); ok {
			out := make(List, 0, len(b)+len(o))
			out = append(out, b.Clone().(List)...)
			return append(out, o.Clone().(List)...)
		}
	case Mapping:
		if o, ok := override.(Mapping); ok {
			out := b.Clone().(Mapping)
			if out == nil {
				out = Mapping{}
			}
			for k, ov := range o {
				if ov == nil {
					out[k] = nil
					continue
				}
				if bv, exists := out[k]; deep && exists && bv != nil {
					out[k] = merge(bv, ov, true)
					continue
				}
				out[k] = ov.Clone()
			}
			return out
		}
	}
	return override.Clone()
}

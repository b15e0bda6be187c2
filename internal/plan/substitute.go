package plan

import (
	"maps"
	"regexp"
	"slices"
)

// placeholderPattern matches ${NAME} and ${NAME:-default}. The default also
// applies when NAME is set but empty.
var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

type substituter struct {
	vars    map[string]string
	missing map[string]struct{}
}

func newSubstituter(vars map[string]string) *substituter {
	return &substituter{
		vars:    vars,
		missing: map[string]struct{}{},
	}
}

// apply returns a copy of v with every string scalar expanded.
func (s *substituter) apply(v Value) Value {
	switch t := v.(type) {
	case Scalar:
		str, ok := t.V.(string)
		if !ok {
			return t
		}
		return S(s.expand(str))
	case List:
		out := make(List, len(t))
		for i, item := range t {
			out[i] = s.apply(item)
		}
		return out
	case Mapping:
		out := make(Mapping, len(t))
		for k, item := range t {
			out[k] = s.apply(item)
		}
		return out
	default:
		return v
	}
}

func (s *substituter) expand(str string) string {
	return placeholderPattern.ReplaceAllStringFunc(str, func(match string) string {
		groups := placeholderPattern.FindStringSubmatch(match)
		name, hasDefault := groups[1], groups[2] != ""
		if val, ok := s.vars[name]; ok && (val != "" || !hasDefault) {
			return val
		}
		if hasDefault {
			return groups[3]
		}
		s.missing[name] = struct{}{}
		return ""
	})
}

func (s *substituter) unresolved() []string {
	if len(s.missing) == 0 {
		return nil
	}
	return slices.Sorted(maps.Keys(s.missing))
}

// Expand substitutes placeholders in a single string and reports unresolved names.
func Expand(str string, vars map[string]string) (string, []string) {
	s := newSubstituter(vars)
	return s.expand(str), s.unresolved()
}

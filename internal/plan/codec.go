package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Format selects the encoding used by Encode.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// BaseFile is the name of the base plan inside a plan directory.
const BaseFile = "base.yaml"

// maxDecodedNodes bounds the number of values a document may expand to once
// aliases are resolved.
const maxDecodedNodes = 100_000

// Decode reads a YAML (or JSON) plan document. The top level must be a mapping
// and section names must be unique.
func Decode(r io.Reader) (BuildPlan, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return BuildPlan{}, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return BuildPlan{}, nil
		}
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: line %d: top level must be a mapping of sections", ErrInvalidPlan, root.Line)
	}

	d := &nodeDecoder{active: map[*yaml.Node]bool{}}
	v, err := d.fromNode(root, true)
	if err != nil {
		return nil, err
	}
	return BuildPlan(v.(Mapping)), nil
}

// ReadFile decodes the plan stored at path.
func ReadFile(path string) (BuildPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan %s: %w", path, err)
	}
	p, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ReadOverride loads <dir>/<profileID>.yaml (or .yml). A missing file yields an
// empty override.
func ReadOverride(dir, profileID string) (Override, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		p, err := ReadFile(filepath.Join(dir, profileID+ext))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		return Override(p), nil
	}
	return Override{}, nil
}

// Encode writes the plan in the requested format.
func Encode(w io.Writer, p BuildPlan, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p.Native())
	case FormatYAML, "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(p.Native()); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// nodeDecoder converts a yaml node tree into plan values, expanding aliases.
type nodeDecoder struct {
	nodes  int
	active map[*yaml.Node]bool
}

func (d *nodeDecoder) fromNode(n *yaml.Node, topLevel bool) (Value, error) {
	d.nodes++
	if d.nodes > maxDecodedNodes {
		return nil, fmt.Errorf("%w: line %d: document expands to more than %d values", ErrInvalidPlan, n.Line, maxDecodedNodes)
	}
	if n.Kind == yaml.SequenceNode || n.Kind == yaml.MappingNode {
		d.active[n] = true
		defer delete(d.active, n)
	}

	switch n.Kind {
	case yaml.AliasNode:
		if n.Alias == nil {
			return nil, fmt.Errorf("%w: line %d: unknown alias %q", ErrInvalidPlan, n.Line, n.Value)
		}
		if d.active[n.Alias] {
			return nil, fmt.Errorf("%w: line %d: cyclic alias %q", ErrInvalidPlan, n.Line, n.Value)
		}
		return d.fromNode(n.Alias, false)
	case yaml.ScalarNode:
		if n.Tag == "!!timestamp" || n.Tag == "!!binary" {
			return S(n.Value), nil
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrInvalidPlan, n.Line, err)
		}
		return FromNative(v)
	case yaml.SequenceNode:
		out := make(List, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := d.fromNode(c, false)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		out := make(Mapping, len(n.Content)/2)
		inherited := Mapping{}
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, vn := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("%w: line %d: mapping keys must be scalars", ErrInvalidPlan, k.Line)
			}
			if k.Tag == "!!merge" {
				if err := d.mergeKeys(inherited, vn); err != nil {
					return nil, err
				}
				continue
			}
			if _, dup := out[k.Value]; dup {
				if topLevel {
					return nil, fmt.Errorf("%w: line %d: %q", ErrDuplicateSection, k.Line, k.Value)
				}
				return nil, fmt.Errorf("%w: line %d: duplicate key %q", ErrInvalidPlan, k.Line, k.Value)
			}
			v, err := d.fromNode(vn, false)
			if err != nil {
				return nil, err
			}
			out[k.Value] = v
		}
		for k, v := range inherited {
			if _, exists := out[k]; !exists {
				out[k] = v
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: line %d: unexpected node", ErrInvalidPlan, n.Line)
	}
}

// mergeKeys collects the entries referenced by a YAML "<<" merge key. Earlier
// sources win over later ones.
func (d *nodeDecoder) mergeKeys(out Mapping, n *yaml.Node) error {
	v, err := d.fromNode(n, false)
	if err != nil {
		return err
	}
	sources := []Value{v}
	if l, ok := v.(List); ok {
		sources = l
	}
	for _, src := range sources {
		m, ok := src.(Mapping)
		if !ok {
			return fmt.Errorf("%w: line %d: merge key must reference a mapping", ErrInvalidPlan, n.Line)
		}
		for k, item := range m {
			if _, exists := out[k]; !exists {
				out[k] = item
			}
		}
	}
	return nil
}

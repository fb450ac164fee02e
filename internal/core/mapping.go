package core

import (
	"fmt"
	"strings"
)

// MappingType selects how a rule produces its value.
type MappingType string

const (
	MappingStandard MappingType = "standard"
	MappingStatic   MappingType = "static"
	MappingTemplate MappingType = "template"
	MappingVector   MappingType = "vector"
	MappingCustom   MappingType = "custom_mapping"
)

// ArrayMarker suffixes a path segment that appends to an array.
const ArrayMarker = "[]"

// Segment is one step of a destination path.
type Segment struct {
	Key    string
	Append bool
}

// Path is a parsed, dot-separated destination path.
type Path []Segment

// ParsePath parses "a.b[].c" into segments. A segment ending in "[]"
// appends to the array stored under its key.
func ParsePath(raw string) (Path, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("destination path is empty")
	}
	parts := strings.Split(raw, ".")
	path := make(Path, 0, len(parts))
	for _, part := range parts {
		seg := Segment{Key: part}
		if strings.HasSuffix(part, ArrayMarker) {
			seg.Key = strings.TrimSuffix(part, ArrayMarker)
			seg.Append = true
		}
		if seg.Key == "" {
			return nil, fmt.Errorf("destination path %q has an empty segment", raw)
		}
		path = append(path, seg)
	}
	return path, nil
}

// String renders the path back to its dotted form.
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, seg := range p {
		parts[i] = seg.Key
		if seg.Append {
			parts[i] += ArrayMarker
		}
	}
	return strings.Join(parts, ".")
}

// EmbeddingConfig selects the embedding model for vector rules.
type EmbeddingConfig struct {
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
}

// MappingRule maps one source value onto a destination path.
type MappingRule struct {
	Type      MappingType      `json:"mapping_type" yaml:"mapping_type"`
	From      string           `json:"from" yaml:"from"`
	To        string           `json:"to" yaml:"to"`
	Value     any              `json:"value,omitempty" yaml:"value,omitempty"`
	Template  string           `json:"template,omitempty" yaml:"template,omitempty"`
	Embedding *EmbeddingConfig `json:"embedding_config,omitempty" yaml:"embedding_config,omitempty"`
	Options   map[string]any   `json:"options,omitempty" yaml:"options,omitempty"`

	// Dest is compiled from To by Compile.
	Dest Path `json:"-" yaml:"-"`
}

// Compile validates the rule and parses its destination path.
func (r *MappingRule) Compile() error {
	if r.Type == "" {
		r.Type = MappingStandard
	}
	switch r.Type {
	case MappingStandard, MappingVector:
		if r.From == "" {
			return fmt.Errorf("%s rule requires from", r.Type)
		}
	case MappingTemplate:
		if r.TemplateSource() == "" {
			return fmt.Errorf("template rule requires a template")
		}
	case MappingStatic, MappingCustom:
	default:
		return fmt.Errorf("unknown mapping_type %q", r.Type)
	}
	dest, err := ParsePath(r.To)
	if err != nil {
		return err
	}
	r.Dest = dest
	return nil
}

// TemplateSource returns the template body; older configs carry it in From.
func (r *MappingRule) TemplateSource() string {
	if r.Template != "" {
		return r.Template
	}
	return r.From
}

// Option returns a string option.
func (r *MappingRule) Option(key string) string {
	if v, ok := r.Options[key].(string); ok {
		return v
	}
	return ""
}

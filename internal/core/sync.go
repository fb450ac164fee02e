package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// SyncMode is the policy for reconciling with existing destination rows.
type SyncMode string

const (
	SyncInsert SyncMode = "insert"
	SyncUpsert SyncMode = "upsert"
	SyncUpdate SyncMode = "update"
)

// ErrUniqueIdentifierMissing is reported when a reconciling mode has no
// unique identifier configured.
var ErrUniqueIdentifierMissing = errors.New("unique_identifier not configured")

// ErrUniqueIdentifierIncomplete is reported when a unique identifier names
// only one of its two fields.
var ErrUniqueIdentifierIncomplete = errors.New("unique_identifier_config requires source_field and destination_field")

// UniqueIdentifierConfig names the source field matched against a
// destination field when reconciling.
type UniqueIdentifierConfig struct {
	SourceField      string `json:"source_field" yaml:"source_field"`
	DestinationField string `json:"destination_field" yaml:"destination_field"`
}

// StreamConfig is the destination stream metadata declared by the catalog.
type StreamConfig struct {
	Name                   string         `json:"name" yaml:"name"`
	BatchSupport           bool           `json:"batch_support" yaml:"batch_support"`
	BatchSize              int            `json:"batch_size" yaml:"batch_size"`
	RequestRateConcurrency int            `json:"request_rate_concurrency" yaml:"request_rate_concurrency"`
	JSONSchema             map[string]any `json:"json_schema,omitempty" yaml:"json_schema,omitempty"`
}

// Properties returns the top-level field schemas, or nil.
func (s StreamConfig) Properties() map[string]any {
	props, _ := s.JSONSchema["properties"].(map[string]any)
	return props
}

// DestinationConfig identifies the connector and its connection settings.
type DestinationConfig struct {
	Connector string         `json:"connector" yaml:"connector"`
	Config    map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// SyncConfig is the write-time configuration of a sync.
type SyncConfig struct {
	ID                  string                  `json:"id" yaml:"id"`
	DestinationSyncMode SyncMode                `json:"destination_sync_mode" yaml:"destination_sync_mode"`
	UniqueIdentifier    *UniqueIdentifierConfig `json:"unique_identifier_config,omitempty" yaml:"unique_identifier_config,omitempty"`
	Mapping             map[string]string       `json:"mapping,omitempty" yaml:"mapping,omitempty"`
	Rules               []MappingRule           `json:"rules,omitempty" yaml:"rules,omitempty"`
	Stream              StreamConfig            `json:"stream" yaml:"stream"`
	Destination         DestinationConfig       `json:"destination" yaml:"destination"`

	fields []FieldMapping
}

// FieldMapping is one compiled entry of the legacy flat mapping.
type FieldMapping struct {
	From string
	Dest Path
}

// Prepare validates the mode and compiles every rule's destination path.
// It must be called once after the config is loaded.
func (c *SyncConfig) Prepare() error {
	switch c.DestinationSyncMode {
	case "", SyncInsert, SyncUpsert, SyncUpdate:
	default:
		return NewError(CodeInvalidConfig, false, fmt.Errorf("unknown destination_sync_mode %q", c.DestinationSyncMode))
	}
	for i := range c.Rules {
		if err := c.Rules[i].Compile(); err != nil {
			return NewError(CodeInvalidConfig, false, fmt.Errorf("rule %d: %w", i, err))
		}
	}
	fields, err := compileFieldMappings(c.Mapping)
	if err != nil {
		return NewError(CodeInvalidConfig, false, err)
	}
	c.fields = fields
	return nil
}

// Validate checks the unique identifier: when one is configured it must name
// both fields. A reconciling mode without one is accepted here; the connector
// degrades upsert to insert and fails every update. Schema membership of the
// destination field is checked by ReconcileKey, which knows the connector's
// native fields.
func (c *SyncConfig) Validate() error {
	uid := c.UniqueIdentifier
	if uid == nil || (uid.SourceField == "" && uid.DestinationField == "") {
		return nil
	}
	if strings.TrimSpace(uid.SourceField) == "" || strings.TrimSpace(uid.DestinationField) == "" {
		return NewError(CodeInvalidConfig, false, ErrUniqueIdentifierIncomplete)
	}
	return nil
}

// FieldMappings returns the legacy flat mapping ordered by source key.
// An unprepared config is compiled on each call, skipping invalid paths.
func (c *SyncConfig) FieldMappings() []FieldMapping {
	if c.fields != nil || len(c.Mapping) == 0 {
		return c.fields
	}
	fields, _ := compileFieldMappings(c.Mapping)
	return fields
}

func compileFieldMappings(mapping map[string]string) ([]FieldMapping, error) {
	if len(mapping) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]FieldMapping, 0, len(keys))
	var firstErr error
	for _, from := range keys {
		dest, err := ParsePath(mapping[from])
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("mapping %q: %w", from, err)
			}
			continue
		}
		fields = append(fields, FieldMapping{From: from, Dest: dest})
	}
	return fields, firstErr
}

// ReconcileKey returns the validated unique identifier config. It returns
// ErrUniqueIdentifierMissing when none is configured. A destination field
// must be declared in the stream schema unless it is one of native.
func (c *SyncConfig) ReconcileKey(native ...string) (*UniqueIdentifierConfig, error) {
	uid := c.UniqueIdentifier
	if uid == nil || (uid.SourceField == "" && uid.DestinationField == "") {
		return nil, ErrUniqueIdentifierMissing
	}
	if strings.TrimSpace(uid.SourceField) == "" || strings.TrimSpace(uid.DestinationField) == "" {
		return nil, ErrUniqueIdentifierIncomplete
	}
	for _, n := range native {
		if uid.DestinationField == n {
			return uid, nil
		}
	}
	if props := c.Stream.Properties(); len(props) > 0 {
		if _, ok := props[uid.DestinationField]; !ok {
			return nil, fmt.Errorf("unique_identifier destination_field %q is not in the stream schema", uid.DestinationField)
		}
	}
	return uid, nil
}

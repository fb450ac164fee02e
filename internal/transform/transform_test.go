package transform

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igualparatodos/multiwoven/internal/core"
	"github.com/igualparatodos/multiwoven/internal/embedding"
	"github.com/igualparatodos/multiwoven/internal/handler"
	"github.com/igualparatodos/multiwoven/internal/lookup"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustPrepare(t *testing.T, sync *core.SyncConfig) *core.SyncConfig {
	t.Helper()
	require.NoError(t, sync.Prepare())
	return sync
}

// indexHandler resolves custom mappings from preloaded indexes only.
type indexHandler struct{}

func (indexHandler) TransformCustomMapping(_ context.Context, in *handler.CustomMappingInput) (any, bool) {
	idx, ok := in.Preload.Lookup(in.Rule.Option("linked_table"), in.Rule.Option("linked_field"))
	if !ok {
		return nil, false
	}
	ids := idx.IDs(in.Record[in.Rule.From])
	if len(ids) == 0 {
		return nil, false
	}
	return ids, true
}

func (indexHandler) BuildCustomMappingIndexes(context.Context, *core.SyncConfig, *core.Run, *lookup.Cache) (lookup.PreloadIndexes, error) {
	return nil, nil
}

// =============================================================================
// RULE TESTS
// =============================================================================

func TestTransform_Unit_RuleTypes(t *testing.T) {
	tr := New(WithLogger(quietLogger()), WithHandlers(handler.NewRegistry()))
	sync := mustPrepare(t, &core.SyncConfig{
		Rules: []core.MappingRule{
			{Type: core.MappingStandard, From: "name", To: "Name"},
			{Type: core.MappingStatic, Value: "crm", To: "Source"},
			{Type: core.MappingTemplate, Template: "{{ first | upcase }}-{{ code | regex_replace: '[^0-9]', '' }}", To: "Label"},
			{Type: core.MappingStandard, From: "address.city", To: "Location.City"},
		},
	})

	out := tr.Transform(context.Background(), Input{
		Sync: sync,
		Record: map[string]any{
			"name":    "O'Brien",
			"first":   "ada",
			"code":    "A-12-B3",
			"address": map[string]any{"city": "Lisbon"},
		},
	})

	assert.Equal(t, "O''Brien", out["Name"])
	assert.Equal(t, "crm", out["Source"])
	assert.Equal(t, "ADA-123", out["Label"])
	assert.Equal(t, map[string]any{"City": "Lisbon"}, out["Location"])
}

func TestTransform_Unit_LaterRuleOverwrites(t *testing.T) {
	tr := New(WithLogger(quietLogger()))
	sync := mustPrepare(t, &core.SyncConfig{
		Rules: []core.MappingRule{
			{From: "a", To: "X"},
			{Type: core.MappingStatic, Value: "fixed", To: "X"},
		},
	})

	out := tr.Transform(context.Background(), Input{Sync: sync, Record: map[string]any{"a": "first"}})
	assert.Equal(t, "fixed", out["X"])
}

func TestTransform_Unit_LegacyMapping(t *testing.T) {
	tr := New(WithLogger(quietLogger()))
	sync := mustPrepare(t, &core.SyncConfig{
		Mapping: map[string]string{"email": "contact.email", "name": "Name"},
	})

	out := tr.Transform(context.Background(), Input{
		Sync:   sync,
		Record: map[string]any{"email": "a@x.io", "name": "Ada", "ignored": 1},
	})

	assert.Equal(t, map[string]any{
		"Name":    "Ada",
		"contact": map[string]any{"email": "a@x.io"},
	}, out)
}

func TestTransform_Unit_CustomMappingWithoutIndexLeavesPathUnset(t *testing.T) {
	reg := handler.NewRegistry()
	reg.Register("airtable", indexHandler{})
	tr := New(WithLogger(quietLogger()), WithHandlers(reg))

	sync := mustPrepare(t, &core.SyncConfig{
		Destination: core.DestinationConfig{Connector: "airtable"},
		Rules: []core.MappingRule{
			{Type: core.MappingCustom, From: "company", To: "Company", Options: map[string]any{
				"linked_table": "Companies", "linked_field": "Name",
			}},
		},
	})

	out := tr.Transform(context.Background(), Input{Sync: sync, Record: map[string]any{"company": "Acme"}})
	_, present := out["Company"]
	assert.False(t, present)

	idx := lookup.NewIndex("Companies", "Name")
	idx.Add("Acme", "recA")
	out = tr.Transform(context.Background(), Input{
		Sync:    sync,
		Record:  map[string]any{"company": "Acme"},
		Preload: lookup.PreloadIndexes{idx.Key(): idx},
	})
	assert.Equal(t, []string{"recA"}, out["Company"])
}

func TestTransform_Unit_UnknownConnectorCustomMappingIsNoop(t *testing.T) {
	tr := New(WithLogger(quietLogger()), WithHandlers(handler.NewRegistry()))
	sync := mustPrepare(t, &core.SyncConfig{
		Destination: core.DestinationConfig{Connector: "nowhere"},
		Rules:       []core.MappingRule{{Type: core.MappingCustom, From: "x", To: "Y"}},
	})

	out := tr.Transform(context.Background(), Input{Sync: sync, Record: map[string]any{"x": 1}})
	assert.Empty(t, out)
}

func TestTransform_Unit_VectorRule(t *testing.T) {
	set := embedding.NewSet(nil).Add("local", embedding.New(embedding.Config{Provider: "local", Dim: 4}))
	tr := New(WithLogger(quietLogger()), WithEmbedders(set))
	sync := mustPrepare(t, &core.SyncConfig{
		Rules: []core.MappingRule{
			{Type: core.MappingVector, From: "bio", To: "Embedding", Embedding: &core.EmbeddingConfig{Provider: "local"}},
			{Type: core.MappingVector, From: "bio", To: "Raw"},
		},
	})

	out := tr.Transform(context.Background(), Input{Sync: sync, Record: map[string]any{"bio": "likes go"}})
	vec, ok := out["Embedding"].([]float32)
	require.True(t, ok)
	assert.Len(t, vec, 4)
	assert.Equal(t, "likes go", out["Raw"])
}

func TestTransform_Unit_BadTemplateSkipsRule(t *testing.T) {
	tr := New(WithLogger(quietLogger()))
	sync := mustPrepare(t, &core.SyncConfig{
		Rules: []core.MappingRule{
			{Type: core.MappingTemplate, Template: "{{ name ", To: "Broken"},
			{From: "name", To: "Name"},
		},
	})

	out := tr.Transform(context.Background(), Input{Sync: sync, Record: map[string]any{"name": "Ada"}})
	assert.Equal(t, map[string]any{"Name": "Ada"}, out)
}

// =============================================================================
// PATH TESTS
// =============================================================================

func TestAssign_Unit_ArrayMarker(t *testing.T) {
	dst := map[string]any{}
	mustPath := func(raw string) core.Path {
		p, err := core.ParsePath(raw)
		require.NoError(t, err)
		return p
	}

	Assign(dst, mustPath("tags[]"), "a")
	Assign(dst, mustPath("tags[]"), "b")
	Assign(dst, mustPath("items[].name"), "pen")
	Assign(dst, mustPath("items[].qty"), 2)

	assert.Equal(t, []any{"a", "b"}, dst["tags"])
	assert.Equal(t, []any{map[string]any{"name": "pen", "qty": 2}}, dst["items"])
}

func TestAssign_Unit_NewElementWhenLastIsScalar(t *testing.T) {
	dst := map[string]any{"items": []any{"scalar"}}
	p, err := core.ParsePath("items[].name")
	require.NoError(t, err)

	Assign(dst, p, "pen")
	assert.Equal(t, []any{"scalar", map[string]any{"name": "pen"}}, dst["items"])
}

// =============================================================================
// COERCION TESTS
// =============================================================================

func TestCoerce_Unit_SchemaTypes(t *testing.T) {
	props := map[string]any{
		"count":   map[string]any{"type": "integer"},
		"price":   map[string]any{"type": []any{"number", "null"}},
		"active":  map[string]any{"type": "boolean"},
		"off":     map[string]any{"type": "boolean"},
		"when":    map[string]any{"type": "string", "format": "date-time"},
		"day":     map[string]any{"type": "string", "format": "date"},
		"scores":  map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
		"bad":     map[string]any{"type": "number"},
		"badDate": map[string]any{"type": "string", "format": "date"},
		"huge":    map[string]any{"type": "integer"},
		"hugeNum": map[string]any{"type": "integer"},
		"inf":     map[string]any{"type": "integer"},
		"minInt":  map[string]any{"type": "integer"},
	}
	record := map[string]any{
		"count":   "42",
		"price":   "9.5",
		"active":  "YES",
		"off":     "0",
		"when":    "2024-01-02 03:04:05+0000",
		"day":     "2024-01-02 03:04:05",
		"scores":  []any{"1", "2", "x"},
		"bad":     "abc",
		"badDate": "not a date",
		"extra":   "7",
		"huge":    "1e20",
		"hugeNum": 1e19,
		"inf":     math.Inf(1),
		"minInt":  "-9.223372036854775808e18",
	}

	Coerce(record, props)

	assert.Equal(t, int64(42), record["count"])
	assert.Equal(t, 9.5, record["price"])
	assert.Equal(t, true, record["active"])
	assert.Equal(t, false, record["off"])
	assert.Equal(t, "2024-01-02T03:04:05Z", record["when"])
	assert.Equal(t, "2024-01-02", record["day"])
	assert.Equal(t, []any{int64(1), int64(2), "x"}, record["scores"])
	assert.Equal(t, "abc", record["bad"])
	assert.Equal(t, "not a date", record["badDate"])
	assert.Equal(t, "7", record["extra"])
	assert.Equal(t, "1e20", record["huge"])
	assert.Equal(t, 1e19, record["hugeNum"])
	assert.Equal(t, math.Inf(1), record["inf"])
	assert.Equal(t, int64(math.MinInt64), record["minInt"])
}

func TestTransform_Unit_CoercesAgainstStreamSchema(t *testing.T) {
	tr := New(WithLogger(quietLogger()))
	sync := mustPrepare(t, &core.SyncConfig{
		Rules: []core.MappingRule{{From: "qty", To: "Quantity"}},
		Stream: core.StreamConfig{JSONSchema: map[string]any{
			"properties": map[string]any{"Quantity": map[string]any{"type": "integer"}},
		}},
	})

	out := tr.Transform(context.Background(), Input{Sync: sync, Record: map[string]any{"qty": "42"}})
	assert.Equal(t, int64(42), out["Quantity"])
}

// =============================================================================
// FILTER TESTS
// =============================================================================

func TestFilters_Unit_Templates(t *testing.T) {
	tr := New(WithLogger(quietLogger()))

	cases := map[string]string{
		"{{ d | to_datetime }}":               "2024-01-02T03:04:05Z",
		"{{ d | to_datetime: '%Y/%m/%d' }}":   "2024/01/02",
		"{{ n | cast: 'integer' | plus: 1 }}": "43",
		"{{ html | strip_html }}":             "hi",
	}
	record := map[string]any{"d": "2024-01-02T03:04:05Z", "n": "42", "html": "<b>hi</b>"}
	for tpl, want := range cases {
		got, err := tr.render(tpl, record)
		require.NoError(t, err, tpl)
		assert.Equal(t, want, got, tpl)
	}
}

func TestFilters_Unit_InvalidRegexReturnsInput(t *testing.T) {
	assert.Equal(t, "abc", regexReplace("abc", "(", "x"))
	assert.Equal(t, "42", cast("42", "unknown"))
	assert.Equal(t, "nope", toDatetime("nope", func(s string) string { return s }))
}

package airtable

import (
	"context"
	"strings"

	"github.com/igualparatodos/multiwoven/internal/core"
	"github.com/igualparatodos/multiwoven/internal/handler"
	"github.com/igualparatodos/multiwoven/internal/lookup"
)

// Custom mapping options.
const (
	OptionLinkedTable = "linked_table"
	OptionLinkedField = "linked_field"
)

var _ handler.Handler = (*Handler)(nil)

// Handler resolves linked-record fields: a custom_mapping rule maps a source
// value onto the ids of the records in linked_table whose linked_field holds
// that value. It holds no connections; each lookup borrows the pooled client
// of the sync's base, the one the run's destination writes through.
type Handler struct{}

// NewHandler creates the Airtable custom mapping handler.
func NewHandler() *Handler {
	return &Handler{}
}

// connection opens a pooled connection for the sync's destination settings.
// Callers must Close it.
func (h *Handler) connection(sync *core.SyncConfig) (*Airtable, error) {
	return Connect(ConfigFromMap(sync.Destination.Config))
}

// TransformCustomMapping returns the linked record ids for the rule's source
// value. With preload indexes present only they are consulted; otherwise the
// values are resolved remotely and merged into the run cache.
func (h *Handler) TransformCustomMapping(ctx context.Context, in *handler.CustomMappingInput) (any, bool) {
	table, field := in.Rule.Option(OptionLinkedTable), in.Rule.Option(OptionLinkedField)
	if table == "" || field == "" {
		return nil, false
	}
	values := linkValues(in.Record[in.Rule.From])
	if len(values) == 0 {
		return nil, false
	}

	var idx *lookup.Index
	if in.Preload != nil {
		found, ok := in.Preload.Lookup(table, field)
		if !ok {
			return nil, false
		}
		idx = found
	} else {
		idx = h.resolve(ctx, in, table, field, values)
		if idx == nil {
			return nil, false
		}
	}

	var ids []string
	seen := make(map[string]bool)
	for _, v := range values {
		for _, id := range idx.IDs(v) {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return nil, false
	}
	return ids, true
}

// resolve looks values up through the run cache, querying the destination
// only for values the cache does not know yet.
func (h *Handler) resolve(ctx context.Context, in *handler.CustomMappingInput, table, field string, values []any) *lookup.Index {
	key := lookup.Key{Table: table, Field: field}

	var missing []any
	if in.Cache != nil {
		if snap, ok := in.Cache.Snapshot(key); ok {
			for _, v := range values {
				if !snap.Has(v) {
					missing = append(missing, v)
				}
			}
			if len(missing) == 0 {
				return snap
			}
		}
	}
	if missing == nil {
		missing = values
	}

	conn, err := h.connection(in.Sync)
	if err != nil {
		return nil
	}
	defer conn.Close()
	found := conn.Resolver().FindIDsByValues(ctx, table, field, missing)
	if in.Cache == nil {
		return found
	}
	in.Cache.Merge(found)
	snap, _ := in.Cache.Snapshot(key)
	return snap
}

// BuildCustomMappingIndexes scans each distinct linked table and field once.
func (h *Handler) BuildCustomMappingIndexes(ctx context.Context, sync *core.SyncConfig, run *core.Run, cache *lookup.Cache) (lookup.PreloadIndexes, error) {
	out := lookup.PreloadIndexes{}

	var keys []lookup.Key
	for i := range sync.Rules {
		rule := &sync.Rules[i]
		if rule.Type != core.MappingCustom {
			continue
		}
		key := lookup.Key{Table: rule.Option(OptionLinkedTable), Field: rule.Option(OptionLinkedField)}
		if key.Table == "" || key.Field == "" {
			continue
		}
		if _, ok := out[key]; ok {
			continue
		}
		out[key] = nil
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return out, nil
	}

	conn, err := h.connection(sync)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if cache == nil {
		runID := ""
		if run != nil {
			runID = run.ID
		}
		cache = lookup.NewCache(runID)
	}

	for _, key := range keys {
		build := func(ctx context.Context) *lookup.Index {
			return conn.Resolver().BuildFullIndex(ctx, key.Table, key.Field)
		}
		err := cache.Do(ctx, key, build, func(idx *lookup.Index) error {
			out[key] = idx.Clone()
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// linkValues splits a source value into the values to link. Strings may
// carry several comma-separated values.
func linkValues(value any) []any {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case string:
		var out []any
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	default:
		return []any{v}
	}
}

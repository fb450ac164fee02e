// Package lookup resolves destination record ids by the value of a match
// field.
//
// An Index maps a normalized field value to every destination record id that
// carries it. Indexes are built either by a full paginated scan of a table or
// by one equality-filtered query per value. A run shares its indexes through
// a Cache; the batch strategy hands read-only PreloadIndexes to the
// transformer.
package lookup

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Key identifies an index within a run.
type Key struct {
	Table string
	Field string
}

func (k Key) String() string {
	return k.Table + "." + k.Field
}

// Index maps normalized values to destination record ids. Ids are kept in
// insertion order and never duplicated. An Index is not safe for concurrent
// mutation; share it through a Cache.
type Index struct {
	Table string
	Field string

	// Partial is set when a scan stopped early; lookups may then miss ids
	// that exist remotely.
	Partial bool

	// Rows counts the destination rows merged into the index.
	Rows int

	ids map[string][]string
}

// NewIndex creates an empty index.
func NewIndex(table, field string) *Index {
	return &Index{
		Table: table,
		Field: field,
		ids:   make(map[string][]string),
	}
}

// Key returns the cache key of the index.
func (i *Index) Key() Key {
	return Key{Table: i.Table, Field: i.Field}
}

// Add records id under value. Array values register every element.
func (i *Index) Add(value any, id string) {
	if id == "" {
		return
	}
	if items, ok := value.([]any); ok {
		for _, item := range items {
			i.Add(item, id)
		}
		return
	}
	key, ok := KeyOf(value)
	if !ok {
		return
	}
	i.addKey(key, id)
}

func (i *Index) addKey(key, id string) {
	for _, existing := range i.ids[key] {
		if existing == id {
			return
		}
	}
	i.ids[key] = append(i.ids[key], id)
}

// IDs returns the ids registered for value, or nil.
func (i *Index) IDs(value any) []string {
	if i == nil {
		return nil
	}
	key, ok := KeyOf(value)
	if !ok {
		return nil
	}
	return i.ids[key]
}

// Has reports whether any id is registered for value.
func (i *Index) Has(value any) bool {
	return len(i.IDs(value)) > 0
}

// Len returns the number of distinct values.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.ids)
}

// Values returns the distinct normalized values, sorted.
func (i *Index) Values() []string {
	values := make([]string, 0, len(i.ids))
	for v := range i.ids {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

// Merge adds every entry of other. A partial source marks the receiver
// partial.
func (i *Index) Merge(other *Index) {
	if other == nil {
		return
	}
	for key, ids := range other.ids {
		for _, id := range ids {
			i.addKey(key, id)
		}
	}
	i.Rows += other.Rows
	i.Partial = i.Partial || other.Partial
}

// Clone returns a deep copy.
func (i *Index) Clone() *Index {
	out := NewIndex(i.Table, i.Field)
	out.Merge(i)
	return out
}

// KeyOf normalizes a field value into an index key. Numbers compare by value
// regardless of representation, so 42, 42.0 and "42" share a key.
func KeyOf(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case int:
		return strconv.Itoa(v), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float32:
		return formatFloat(float64(v)), true
	case float64:
		return formatFloat(v), true
	case json.Number:
		return v.String(), true
	case []any, map[string]any:
		return "", false
	default:
		return fmt.Sprint(v), true
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// PreloadIndexes are read-only index snapshots built before a batch
// strategy transforms its pages.
type PreloadIndexes map[Key]*Index

// Lookup returns the preloaded index for table and field.
func (p PreloadIndexes) Lookup(table, field string) (*Index, bool) {
	if p == nil {
		return nil, false
	}
	idx, ok := p[Key{Table: table, Field: field}]
	return idx, ok
}

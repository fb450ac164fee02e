package lookup

import (
	"context"
	"log/slog"
)

// Row is one destination record as returned by a scan.
type Row struct {
	ID     string
	Fields map[string]any
}

// Query restricts a scan. Fields limits the returned columns; Filter is a
// destination-specific formula.
type Query struct {
	Fields []string
	Filter string
}

// TableReader is implemented by connectors that can page through a table.
// ScanRecords calls visit once per page and stops at the first error; pages
// visited before the error stay visited.
type TableReader interface {
	ScanRecords(ctx context.Context, table string, q Query, visit func(rows []Row) error) error
	EqualityFilter(field string, value any) string
}

// Resolver builds indexes from a TableReader.
type Resolver struct {
	reader TableReader
	logger *slog.Logger
}

// NewResolver creates a resolver. A nil logger uses slog.Default().
func NewResolver(reader TableReader, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{reader: reader, logger: logger}
}

// BuildFullIndex scans the whole table requesting only field. A scan that
// fails part way returns what was read with Partial set.
func (r *Resolver) BuildFullIndex(ctx context.Context, table, field string) *Index {
	idx := NewIndex(table, field)
	err := r.reader.ScanRecords(ctx, table, Query{Fields: []string{field}}, func(rows []Row) error {
		for _, row := range rows {
			idx.Add(row.Fields[field], row.ID)
			idx.Rows++
		}
		return nil
	})
	if err != nil {
		idx.Partial = true
		r.logger.Warn("lookup index scan truncated",
			"table", table,
			"field", field,
			"rowsSeen", idx.Rows,
			"error", err,
		)
	}
	return idx
}

// FindIDsByValues issues one equality-filtered query per distinct value.
// Values that fail to resolve are left out and the index is marked Partial.
func (r *Resolver) FindIDsByValues(ctx context.Context, table, field string, values []any) *Index {
	idx := NewIndex(table, field)

	seen := make(map[string]bool, len(values))
	for _, value := range values {
		key, ok := KeyOf(value)
		if !ok || seen[key] {
			continue
		}
		seen[key] = true

		if ctx.Err() != nil {
			idx.Partial = true
			break
		}

		q := Query{
			Fields: []string{field},
			Filter: r.reader.EqualityFilter(field, value),
		}
		err := r.reader.ScanRecords(ctx, table, q, func(rows []Row) error {
			for _, row := range rows {
				if row.ID == "" {
					continue
				}
				idx.addKey(key, row.ID)
				idx.Rows++
			}
			return nil
		})
		if err != nil {
			idx.Partial = true
			r.logger.Warn("lookup by value failed",
				"table", table,
				"field", field,
				"value", key,
				"error", err,
			)
		}
	}
	return idx
}

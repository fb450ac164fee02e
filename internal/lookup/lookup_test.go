package lookup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves pages of rows and can fail after a number of pages.
type fakeReader struct {
	pages     [][]Row
	failAfter int // pages delivered before failing; <0 never fails
	queries   []Query
	byValue   map[string][]Row
	mu        sync.Mutex
}

func (f *fakeReader) ScanRecords(ctx context.Context, table string, q Query, visit func([]Row) error) error {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	if q.Filter != "" {
		rows, ok := f.byValue[q.Filter]
		if !ok {
			return nil
		}
		return visit(rows)
	}
	for i, page := range f.pages {
		if f.failAfter >= 0 && i >= f.failAfter {
			return errors.New("HTTP 500: upstream")
		}
		if err := visit(page); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeReader) EqualityFilter(field string, value any) string {
	return fmt.Sprintf("{%s}='%v'", field, value)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// INDEX TESTS
// =============================================================================

func TestIndex_Unit_KeepsEveryIDPerValue(t *testing.T) {
	idx := NewIndex("People", "Email")
	idx.Add("a@x.io", "rec1")
	idx.Add("a@x.io", "rec2")
	idx.Add("a@x.io", "rec1")

	assert.Equal(t, []string{"rec1", "rec2"}, idx.IDs("a@x.io"))
	assert.Equal(t, 1, idx.Len())
}

func TestIndex_Unit_NumericKeysNormalize(t *testing.T) {
	idx := NewIndex("Orders", "Number")
	idx.Add(float64(42), "rec1")

	assert.True(t, idx.Has("42"))
	assert.True(t, idx.Has(42))
	assert.False(t, idx.Has("42.5"))
}

func TestIndex_Unit_ArrayValuesRegisterEachElement(t *testing.T) {
	idx := NewIndex("People", "Tags")
	idx.Add([]any{"red", "blue"}, "rec1")

	assert.Equal(t, []string{"rec1"}, idx.IDs("red"))
	assert.Equal(t, []string{"rec1"}, idx.IDs("blue"))
}

func TestIndex_Unit_EmptyValuesIgnored(t *testing.T) {
	idx := NewIndex("People", "Email")
	idx.Add(nil, "rec1")
	idx.Add("", "rec2")
	idx.Add("a@x.io", "")

	assert.Equal(t, 0, idx.Len())
}

func TestIndex_Unit_MergeAndClone(t *testing.T) {
	a := NewIndex("T", "F")
	a.Add("x", "rec1")
	b := NewIndex("T", "F")
	b.Add("x", "rec2")
	b.Partial = true

	clone := a.Clone()
	a.Merge(b)

	assert.Equal(t, []string{"rec1", "rec2"}, a.IDs("x"))
	assert.True(t, a.Partial)
	assert.Equal(t, []string{"rec1"}, clone.IDs("x"))
}

// =============================================================================
// RESOLVER TESTS
// =============================================================================

func TestResolver_Unit_BuildFullIndexMergesEveryPage(t *testing.T) {
	reader := &fakeReader{
		failAfter: -1,
		pages: [][]Row{
			{{ID: "rec1", Fields: map[string]any{"Email": "a@x.io"}}},
			{{ID: "rec2", Fields: map[string]any{"Email": "a@x.io"}}, {ID: "rec3", Fields: map[string]any{"Email": "b@x.io"}}},
		},
	}

	idx := NewResolver(reader, quietLogger()).BuildFullIndex(context.Background(), "People", "Email")

	assert.False(t, idx.Partial)
	assert.Equal(t, 3, idx.Rows)
	assert.Equal(t, []string{"rec1", "rec2"}, idx.IDs("a@x.io"))
	assert.Equal(t, []string{"rec3"}, idx.IDs("b@x.io"))
	require.Len(t, reader.queries, 1)
	assert.Equal(t, []string{"Email"}, reader.queries[0].Fields)
}

func TestResolver_Unit_FailedPageYieldsPartialIndex(t *testing.T) {
	reader := &fakeReader{
		failAfter: 1,
		pages: [][]Row{
			{{ID: "rec1", Fields: map[string]any{"Email": "a@x.io"}}},
			{{ID: "rec2", Fields: map[string]any{"Email": "b@x.io"}}},
		},
	}

	idx := NewResolver(reader, quietLogger()).BuildFullIndex(context.Background(), "People", "Email")

	assert.True(t, idx.Partial)
	assert.True(t, idx.Has("a@x.io"))
	assert.False(t, idx.Has("b@x.io"))
}

func TestResolver_Unit_FindIDsByValuesQueriesOncePerDistinctValue(t *testing.T) {
	reader := &fakeReader{
		failAfter: -1,
		byValue: map[string][]Row{
			"{Email}='a@x.io'": {{ID: "rec1"}, {ID: "rec9"}},
		},
	}

	idx := NewResolver(reader, quietLogger()).FindIDsByValues(
		context.Background(), "People", "Email", []any{"a@x.io", "a@x.io", "z@x.io", nil})

	assert.Len(t, reader.queries, 2)
	assert.Equal(t, []string{"rec1", "rec9"}, idx.IDs("a@x.io"))
	assert.False(t, idx.Has("z@x.io"))
	assert.False(t, idx.Partial)
}

// =============================================================================
// CACHE TESTS
// =============================================================================

func TestCache_Unit_BuildsOncePerKey(t *testing.T) {
	cache := NewCache("run-1")
	key := Key{Table: "People", Field: "Email"}

	var builds int
	build := func(ctx context.Context) *Index {
		builds++
		idx := NewIndex(key.Table, key.Field)
		idx.Add("a@x.io", "rec1")
		return idx
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = cache.Do(context.Background(), key, build, func(idx *Index) error {
				idx.Add(fmt.Sprintf("new-%d", i), fmt.Sprintf("rec-new-%d", i))
				return nil
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, builds)
	snap, ok := cache.Snapshot(key)
	require.True(t, ok)
	assert.Equal(t, 21, snap.Len())
	assert.Equal(t, "run-1", cache.RunID())
}

func TestCache_Unit_MergeCreatesAndExtends(t *testing.T) {
	cache := NewCache("run-1")

	first := NewIndex("T", "F")
	first.Add("x", "rec1")
	cache.Merge(first)

	second := NewIndex("T", "F")
	second.Add("x", "rec2")
	cache.Merge(second)

	snap, ok := cache.Snapshot(Key{Table: "T", Field: "F"})
	require.True(t, ok)
	assert.Equal(t, []string{"rec1", "rec2"}, snap.IDs("x"))
	assert.Equal(t, []string{"rec1"}, first.IDs("x"))
}

func TestCache_Unit_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewCache("run-1").Do(ctx, Key{Table: "T", Field: "F"}, nil, func(*Index) error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPreloadIndexes_Unit_Lookup(t *testing.T) {
	idx := NewIndex("T", "F")
	pre := PreloadIndexes{idx.Key(): idx}

	got, ok := pre.Lookup("T", "F")
	require.True(t, ok)
	assert.Same(t, idx, got)

	_, ok = PreloadIndexes(nil).Lookup("T", "F")
	assert.False(t, ok)
}

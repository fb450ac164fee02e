package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igualparatodos/multiwoven/internal/core"
	"github.com/igualparatodos/multiwoven/internal/lookup"
)

type staticHandler struct{ value any }

func (h staticHandler) TransformCustomMapping(context.Context, *CustomMappingInput) (any, bool) {
	return h.value, true
}

func (h staticHandler) BuildCustomMappingIndexes(context.Context, *core.SyncConfig, *core.Run, *lookup.Cache) (lookup.PreloadIndexes, error) {
	idx := lookup.NewIndex("T", "F")
	return lookup.PreloadIndexes{idx.Key(): idx}, nil
}

func TestRegistry_Unit_UnknownNameFallsBackToNoop(t *testing.T) {
	reg := NewRegistry()
	h := reg.HandlerFor("destination.unknown")

	value, ok := h.TransformCustomMapping(context.Background(), &CustomMappingInput{})
	assert.False(t, ok)
	assert.Nil(t, value)

	pre, err := h.BuildCustomMappingIndexes(context.Background(), &core.SyncConfig{}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, pre)
	assert.False(t, reg.Has("destination.unknown"))
}

func TestRegistry_Unit_RegisteredHandlerIsReturned(t *testing.T) {
	reg := NewRegistry()
	reg.Register("destination.static", staticHandler{value: "v"})

	value, ok := reg.HandlerFor("destination.static").TransformCustomMapping(context.Background(), &CustomMappingInput{})
	assert.True(t, ok)
	assert.Equal(t, "v", value)

	pre, err := reg.HandlerFor("destination.static").BuildCustomMappingIndexes(context.Background(), &core.SyncConfig{}, nil, nil)
	require.NoError(t, err)
	_, found := pre.Lookup("T", "F")
	assert.True(t, found)
}

func TestRegistry_Unit_DuplicateRegistrationPanics(t *testing.T) {
	reg := NewRegistry()
	reg.Register("x", Noop{})
	assert.Panics(t, func() { reg.Register("x", Noop{}) })
}

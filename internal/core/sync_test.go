package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncConfig_Unit_Validate(t *testing.T) {
	tests := []struct {
		name    string
		uid     *UniqueIdentifierConfig
		wantErr bool
	}{
		{name: "none configured", uid: nil},
		{name: "both empty", uid: &UniqueIdentifierConfig{}},
		{name: "complete", uid: &UniqueIdentifierConfig{SourceField: "email", DestinationField: "Email"}},
		{name: "missing destination", uid: &UniqueIdentifierConfig{SourceField: "email"}, wantErr: true},
		{name: "blank source", uid: &UniqueIdentifierConfig{SourceField: "  ", DestinationField: "Email"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &SyncConfig{DestinationSyncMode: SyncUpdate, UniqueIdentifier: tt.uid}
			require.NoError(t, cfg.Prepare())
			err := cfg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var coded *Error
			require.ErrorAs(t, err, &coded)
			assert.Equal(t, CodeInvalidConfig, coded.Code)
			assert.ErrorIs(t, err, ErrUniqueIdentifierIncomplete)
		})
	}
}

func TestSyncConfig_Unit_ReconcileKeyChecksSchema(t *testing.T) {
	cfg := &SyncConfig{
		UniqueIdentifier: &UniqueIdentifierConfig{SourceField: "email", DestinationField: "Email"},
		Stream: StreamConfig{JSONSchema: map[string]any{
			"properties": map[string]any{"Name": map[string]any{"type": "string"}},
		}},
	}
	_, err := cfg.ReconcileKey()
	assert.Error(t, err)

	cfg.UniqueIdentifier.DestinationField = "id"
	uid, err := cfg.ReconcileKey("id")
	require.NoError(t, err)
	assert.Equal(t, "id", uid.DestinationField)

	cfg.UniqueIdentifier = nil
	_, err = cfg.ReconcileKey()
	assert.ErrorIs(t, err, ErrUniqueIdentifierMissing)
}

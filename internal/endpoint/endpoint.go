// Package endpoint defines the contract that destination connectors implement.
//
// Architecture:
//
//	Destination - Base contract (ID, Validate, Capabilities, Descriptor, Write)
//	Registry    - Factories indexed by connector name
//
// Write never returns an error: data-level failures fold into the tracking
// report and structural failures come back as a control message.
package endpoint

import (
	"context"

	"github.com/igualparatodos/multiwoven/internal/core"
	"github.com/igualparatodos/multiwoven/internal/lookup"
)

// Destination is the write contract every connector implements.
type Destination interface {
	// ID returns the connector name (e.g., "airtable").
	ID() string

	// ValidateConfig tests configuration validity and connectivity.
	ValidateConfig(ctx context.Context) (*ValidationResult, error)

	// GetCapabilities returns the set of supported operations.
	GetCapabilities() *Capabilities

	// GetDescriptor returns metadata about this destination type.
	GetDescriptor() *Descriptor

	// Write delivers records and reports the outcome.
	Write(ctx context.Context, req *WriteRequest) *core.Message

	// Close releases any resources held by the destination.
	Close() error
}

// WriteRequest carries one write call.
type WriteRequest struct {
	Sync    *core.SyncConfig
	Records []map[string]any
	Action  core.Action

	// Run and Cache are scoped to the current run. Cache may be nil, in
	// which case the connector builds an uncached index per call.
	Run   *core.Run
	Cache *lookup.Cache
}

// Mode resolves the effective sync mode; a config without a mode falls back
// to the record action.
func (r *WriteRequest) Mode() core.SyncMode {
	if r.Sync != nil && r.Sync.DestinationSyncMode != "" {
		return r.Sync.DestinationSyncMode
	}
	if r.Action == core.ActionUpdate {
		return core.SyncUpdate
	}
	return core.SyncInsert
}

// ValidationResult is the outcome of a connection probe.
type ValidationResult struct {
	Valid   bool
	Message string
}

// Capabilities describes what a destination supports.
type Capabilities struct {
	SupportsInsert bool
	SupportsUpsert bool
	SupportsUpdate bool
	SupportsBatch  bool
	MaxChunkSize   int
}

// Descriptor is display metadata for a destination type.
type Descriptor struct {
	ID          string
	Family      string
	Title       string
	Vendor      string
	Description string
}

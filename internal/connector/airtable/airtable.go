package airtable

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/igualparatodos/multiwoven/internal/connector/http"
	"github.com/igualparatodos/multiwoven/internal/core"
	"github.com/igualparatodos/multiwoven/internal/endpoint"
	"github.com/igualparatodos/multiwoven/internal/lookup"
)

// =============================================================================
// AIRTABLE CONNECTOR
// Implements endpoint.Destination and lookup.TableReader
// =============================================================================

// Ensure interface compliance
var (
	_ endpoint.Destination = (*Airtable)(nil)
	_ lookup.TableReader   = (*Airtable)(nil)
)

// Airtable writes records into one Airtable base.
type Airtable struct {
	*http.Base
	config   *Config
	resolver *lookup.Resolver
	logger   *slog.Logger

	release   func()
	closeOnce sync.Once
}

// New creates an Airtable connector with a client of its own.
func New(config *Config) (*Airtable, error) {
	if err := config.Validate(); err != nil {
		return nil, core.NewError(core.CodeInvalidConfig, false, err)
	}
	return newAirtable(config, http.NewBase(ConnectorID, clientConfig(config)), nil), nil
}

// Connect creates an Airtable connector whose HTTP client, and with it the
// rate limiter, is shared with every other open connection to the same base.
// Close releases the share.
func Connect(config *Config) (*Airtable, error) {
	if err := config.Validate(); err != nil {
		return nil, core.NewError(core.CodeInvalidConfig, false, err)
	}
	client, release := clients.acquire(config)
	return newAirtable(config, &http.Base{Client: client, EndpointID: ConnectorID}, release), nil
}

func newAirtable(config *Config, base *http.Base, release func()) *Airtable {
	logger := slog.Default().With("connector", ConnectorID, "baseId", config.BaseID)
	a := &Airtable{
		Base:    base,
		config:  config,
		logger:  logger,
		release: release,
	}
	a.resolver = lookup.NewResolver(a, logger)
	return a
}

// Close releases the shared client, if any. It is safe to call twice.
func (a *Airtable) Close() error {
	a.closeOnce.Do(func() {
		if a.release != nil {
			a.release()
		}
	})
	return nil
}

func clientConfig(config *Config) *http.ClientConfig {
	httpConfig := http.DefaultClientConfig()
	httpConfig.BaseURL = config.BaseURL
	httpConfig.Auth = http.BearerToken{Token: config.APIKey}
	httpConfig.Headers["Accept"] = "application/json"
	if config.RateLimit > 0 {
		httpConfig.RateLimit = config.RateLimit
	}
	if config.MaxRetries != 0 {
		httpConfig.MaxRetries = config.MaxRetries
	}
	return httpConfig
}

// =============================================================================
// ENDPOINT INTERFACE
// =============================================================================

// ValidateConfig probes the configured table, or the base schema when no
// table is configured.
func (a *Airtable) ValidateConfig(ctx context.Context) (*endpoint.ValidationResult, error) {
	if a.config.Table != "" {
		return a.Probe(ctx, a.tablePath(a.config.Table), url.Values{"pageSize": {"1"}})
	}
	return a.Probe(ctx, "/v0/meta/bases/"+url.PathEscape(a.config.BaseID)+"/tables", nil)
}

// GetCapabilities returns Airtable write capabilities.
func (a *Airtable) GetCapabilities() *endpoint.Capabilities {
	return &endpoint.Capabilities{
		SupportsInsert: true,
		SupportsUpsert: true,
		SupportsUpdate: true,
		SupportsBatch:  true,
		MaxChunkSize:   ChunkSize,
	}
}

// GetDescriptor returns the Airtable destination descriptor.
func (a *Airtable) GetDescriptor() *endpoint.Descriptor {
	return &endpoint.Descriptor{
		ID:          ConnectorID,
		Family:      "http.rest",
		Title:       "Airtable",
		Vendor:      "Airtable",
		Description: "Airtable REST API destination with insert, upsert and update",
	}
}

// Resolver returns the lookup resolver backed by this connection.
func (a *Airtable) Resolver() *lookup.Resolver {
	return a.resolver
}

// tableFor returns the table a sync writes to. A stream name of the form
// "base/table" resolves to its last segment.
func (a *Airtable) tableFor(sync *core.SyncConfig) string {
	if sync != nil && sync.Stream.Name != "" {
		name := sync.Stream.Name
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		return name
	}
	return a.config.Table
}

func (a *Airtable) tablePath(table string) string {
	return "/v0/" + url.PathEscape(a.config.BaseID) + "/" + url.PathEscape(table)
}

package airtable

import (
	"strings"
)

// ConnectorID is the name the connector registers under.
const ConnectorID = "airtable"

// DefaultBaseURL is the public Airtable API.
const DefaultBaseURL = "https://api.airtable.com"

// ChunkSize is the number of records per create or update request for
// every sync mode. Airtable rejects larger batches.
const ChunkSize = 10

// DefaultPageSize is the page size used when scanning a table.
const DefaultPageSize = 100

// NativeIDField is the record id field; matching on it needs no index.
const NativeIDField = "id"

// Config holds Airtable connection configuration.
type Config struct {
	// BaseURL overrides the API host (tests, proxies).
	BaseURL string `json:"baseUrl,omitempty"`

	// APIKey is a personal access token.
	APIKey string `json:"apiKey"`

	// BaseID identifies the Airtable base (app...).
	BaseID string `json:"baseId"`

	// Table is the default table id or name; the stream name is used when empty.
	Table string `json:"table,omitempty"`

	// PageSize is the number of records per list request (max 100).
	PageSize int `json:"pageSize,omitempty"`

	// RateLimit is requests per second (Airtable allows 5 per base).
	RateLimit float64 `json:"rateLimit,omitempty"`

	// MaxRetries for 429 and 5xx responses. Negative disables retries.
	MaxRetries int `json:"maxRetries,omitempty"`
}

// Validate validates the configuration and applies defaults.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return &ValidationError{Field: "apiKey", Message: "required"}
	}
	if c.BaseID == "" {
		return &ValidationError{Field: "baseId", Message: "required"}
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.PageSize <= 0 || c.PageSize > DefaultPageSize {
		c.PageSize = DefaultPageSize
	}
	return nil
}

// cacheKey identifies a connection for reuse.
func (c *Config) cacheKey() string {
	return strings.Join([]string{c.BaseURL, c.BaseID, c.APIKey}, "\x00")
}

// ConfigFromMap reads a Config from connector settings.
func ConfigFromMap(m map[string]any) *Config {
	return &Config{
		BaseURL:    getString(m, "baseUrl", ""),
		APIKey:     getString(m, "apiKey", ""),
		BaseID:     getString(m, "baseId", ""),
		Table:      getString(m, "table", ""),
		PageSize:   getInt(m, "pageSize", DefaultPageSize),
		RateLimit:  getFloat(m, "rateLimit", 0),
		MaxRetries: getInt(m, "maxRetries", 0),
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// =============================================================================
// AIRTABLE API TYPES
// =============================================================================

type createRecord struct {
	Fields map[string]any `json:"fields"`
}

type createRequest struct {
	Records  []createRecord `json:"records"`
	Typecast bool           `json:"typecast"`
}

type updateRecord struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

type updateRequest struct {
	Records  []updateRecord `json:"records"`
	Typecast bool           `json:"typecast"`
}

// apiRecord is a record as returned by list, create and update.
type apiRecord struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime,omitempty"`
	Fields      map[string]any `json:"fields"`
}

type recordsResponse struct {
	Records []apiRecord `json:"records"`
	Offset  string      `json:"offset,omitempty"`
}

// --- Config Helpers ---

func getString(m map[string]any, key, defaultVal string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return defaultVal
}

func getInt(m map[string]any, key string, defaultVal int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return defaultVal
}

func getFloat(m map[string]any, key string, defaultVal float64) float64 {
	switch v := m[key].(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	return defaultVal
}

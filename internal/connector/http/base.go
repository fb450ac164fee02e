package http

import (
	"context"
	"fmt"
	"net/url"

	"github.com/igualparatodos/multiwoven/internal/endpoint"
)

// Base carries the HTTP client and identity shared by REST destinations.
// Connectors embed it and supply their own descriptor and writes.
type Base struct {
	Client     *Client
	EndpointID string
}

// NewBase creates a Base for the named connector.
func NewBase(id string, config *ClientConfig) *Base {
	return &Base{Client: NewClient(config), EndpointID: id}
}

func (b *Base) ID() string { return b.EndpointID }

// Close is a no-op; connections are pooled by the transport.
func (b *Base) Close() error { return nil }

// Probe issues a GET against probePath. HTTP failures become an invalid
// result; transport failures are returned as errors.
func (b *Base) Probe(ctx context.Context, probePath string, query url.Values) (*endpoint.ValidationResult, error) {
	_, err := b.Client.Get(ctx, probePath, query)
	if err == nil {
		return &endpoint.ValidationResult{Valid: true, Message: "Connection successful"}, nil
	}
	httpErr, ok := AsHTTPError(err)
	if !ok {
		return nil, err
	}
	msg := fmt.Sprintf("Connection failed: HTTP %d", httpErr.StatusCode)
	if httpErr.IsStructural() {
		msg += " (check credentials, base and table)"
	}
	return &endpoint.ValidationResult{Valid: false, Message: msg}, nil
}

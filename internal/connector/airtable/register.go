package airtable

import (
	"github.com/igualparatodos/multiwoven/internal/endpoint"
	"github.com/igualparatodos/multiwoven/internal/handler"
)

// init registers the Airtable factory and custom mapping handler with the
// global registries.
func init() {
	endpoint.Register(ConnectorID, func(config map[string]any) (endpoint.Destination, error) {
		a, err := Connect(ConfigFromMap(config))
		if err != nil {
			return nil, err
		}
		return a, nil
	})
	handler.Register(ConnectorID, NewHandler())
}

// Package http provides a generic HTTP base for REST API destinations.
// This serves as the foundation for connectors like Airtable.
//
// Structure:
//
//	client.go     - HTTP client with rate limiting and retry
//	auth.go       - Request credentials (bearer token)
//	paginator.go  - Opaque offset-token pagination
//	base.go       - Shared destination plumbing (descriptor, probe)
package http

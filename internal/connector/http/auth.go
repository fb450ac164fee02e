package http

import "net/http"

// AuthConfig decorates outbound requests with credentials.
type AuthConfig interface {
	Apply(req *http.Request)
}

// NoAuth leaves requests untouched.
type NoAuth struct{}

func (NoAuth) Apply(*http.Request) {}

// BearerToken sends a personal access token in the Authorization header.
type BearerToken struct {
	Token string
}

func (a BearerToken) Apply(req *http.Request) {
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}
}

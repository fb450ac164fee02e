package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
)

// =============================================================================
// PAGINATION STRATEGIES
// =============================================================================

// Paginator handles API pagination.
type Paginator interface {
	// NextPage returns the request for the next page, or nil if done.
	NextPage(ctx context.Context, resp *Response) (*Request, error)
}

// DefaultMaxPages bounds a token loop whose server never stops paging.
const DefaultMaxPages = 10_000

// =============================================================================
// OFFSET TOKEN PAGINATION
// =============================================================================

// OffsetTokenPaginator follows an opaque offset token returned with each
// page. The loop ends when the token is absent, repeats, or MaxPages pages
// have been requested.
type OffsetTokenPaginator struct {
	Path        string
	Query       url.Values
	PageSize    int
	TokenKey    string // query param and JSON key (default: "offset")
	PageSizeKey string // query param (default: "pageSize")
	MaxPages    int

	token string
	pages int
	seen  map[string]bool
}

// NewOffsetTokenPaginator creates a token paginator. base is copied.
func NewOffsetTokenPaginator(path string, base url.Values, pageSize int) *OffsetTokenPaginator {
	query := url.Values{}
	for k, v := range base {
		query[k] = append([]string(nil), v...)
	}
	return &OffsetTokenPaginator{
		Path:        path,
		Query:       query,
		PageSize:    pageSize,
		TokenKey:    "offset",
		PageSizeKey: "pageSize",
		MaxPages:    DefaultMaxPages,
		seen:        make(map[string]bool),
	}
}

// FirstPage returns the request for the current token.
func (p *OffsetTokenPaginator) FirstPage() *Request {
	query := url.Values{}
	for k, v := range p.Query {
		query[k] = v
	}
	if p.PageSize > 0 {
		query.Set(p.PageSizeKey, strconv.Itoa(p.PageSize))
	}
	if p.token != "" {
		query.Set(p.TokenKey, p.token)
	}
	p.pages++
	return &Request{
		Method: http.MethodGet,
		Path:   p.Path,
		Query:  query,
	}
}

// NextPage returns the next page request based on response.
func (p *OffsetTokenPaginator) NextPage(ctx context.Context, resp *Response) (*Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return nil, err
	}
	next, _ := data[p.TokenKey].(string)
	if next == "" || p.seen[next] {
		return nil, nil
	}
	if p.MaxPages > 0 && p.pages >= p.MaxPages {
		return nil, nil
	}
	p.seen[next] = true
	p.token = next
	return p.FirstPage(), nil
}

// Pages returns how many page requests were built.
func (p *OffsetTokenPaginator) Pages() int {
	return p.pages
}

// Package embedding turns text into vectors for vector mapping rules.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"

	httpclient "github.com/igualparatodos/multiwoven/internal/connector/http"
)

// Provider defines the minimal embed API.
type Provider interface {
	EmbedText(ctx context.Context, model string, texts []string) ([][]float32, error)
	ModelName() string // Returns the active model name for metadata
}

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
	ProviderZero   = "zero"
)

// DefaultDim is the vector size used when none is configured.
const DefaultDim = 1536

// Config selects and configures a provider.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Dim      int
}

// New builds the configured provider. openai without an API key falls back
// to the zero provider.
func New(cfg Config) Provider {
	dim := cfg.Dim
	if dim <= 0 {
		dim = DefaultDim
	}
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		if cfg.APIKey != "" {
			return NewOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL)
		}
	case ProviderLocal:
		return &localProvider{dim: dim}
	}
	return &zeroProvider{dim: dim} // fallback
}

// Set resolves a provider by name, falling back to a default.
type Set struct {
	Default Provider
	byName  map[string]Provider
}

// NewSet creates a set whose default is def.
func NewSet(def Provider) *Set {
	if def == nil {
		def = &zeroProvider{dim: DefaultDim}
	}
	return &Set{Default: def, byName: make(map[string]Provider)}
}

// Add registers p under name.
func (s *Set) Add(name string, p Provider) *Set {
	s.byName[strings.ToLower(name)] = p
	return s
}

// For returns the provider registered under name, or the default.
func (s *Set) For(name string) Provider {
	if p, ok := s.byName[strings.ToLower(name)]; ok {
		return p
	}
	return s.Default
}

// =============================================================================
// ZERO PROVIDER
// =============================================================================

// zeroProvider returns zero vectors (placeholder until real provider is wired).
type zeroProvider struct {
	dim int
}

func (p *zeroProvider) EmbedText(_ context.Context, _ string, texts []string) ([][]float32, error) {
	if p.dim <= 0 {
		return nil, errors.New("invalid embedding dimension")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, p.dim)
	}
	return out, nil
}

func (p *zeroProvider) ModelName() string {
	return "zero-vector"
}

// =============================================================================
// OPENAI PROVIDER
// =============================================================================

const openAIBaseURL = "https://api.openai.com/v1"

// OpenAI calls the embeddings endpoint through the shared rate-limited client.
type OpenAI struct {
	client *httpclient.Client
	model  string
}

// NewOpenAI creates an OpenAI provider. An empty baseURL uses the public API.
func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	if model == "" {
		model = "text-embedding-3-small"
	}
	if baseURL == "" {
		baseURL = openAIBaseURL
	}
	return &OpenAI{
		client: httpclient.NewClient(&httpclient.ClientConfig{
			BaseURL: baseURL,
			Auth:    httpclient.BearerToken{Token: apiKey},
			Timeout: 30 * time.Second,
		}),
		model: model,
	}
}

type openAIRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (p *OpenAI) EmbedText(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if model == "" {
		model = p.model
	}
	resp, err := p.client.Post(ctx, "/embeddings", openAIRequest{Model: model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	var decoded openAIResponse
	if err := resp.JSON(&decoded); err != nil {
		return nil, err
	}
	if len(decoded.Data) != len(texts) {
		return nil, errors.New("embedding count mismatch")
	}
	out := make([][]float32, len(texts))
	for i, d := range decoded.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}

func (p *OpenAI) ModelName() string {
	return p.model
}

// =============================================================================
// LOCAL PROVIDER
// =============================================================================

// localProvider produces deterministic hashed embeddings without external services.
type localProvider struct {
	dim int
}

func (p *localProvider) EmbedText(_ context.Context, _ string, texts []string) ([][]float32, error) {
	if p.dim <= 0 {
		return nil, errors.New("invalid embedding dimension")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.embedOne(t)
	}
	return out, nil
}

func (p *localProvider) embedOne(text string) []float32 {
	vec := make([]float32, p.dim)
	words := strings.Fields(text)
	if len(words) == 0 {
		return vec
	}
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.ToLower(w)))
		vec[h.Sum32()%uint32(p.dim)] += 1.0
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	if sum > 0 {
		n := float32(1.0 / math.Sqrt(sum))
		for i := range vec {
			vec[i] *= n
		}
	}
	return vec
}

func (p *localProvider) ModelName() string {
	return "local-fnv-hash"
}

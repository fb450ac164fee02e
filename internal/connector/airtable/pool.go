package airtable

import (
	"sync"

	"github.com/igualparatodos/multiwoven/internal/connector/http"
)

// clientPool shares one HTTP client per base and token among the open
// connections, so writes and lookups against a base draw from one rate
// limiter. An entry is dropped when its last connection closes.
type clientPool struct {
	mu      sync.Mutex
	clients map[string]*pooledClient
}

type pooledClient struct {
	client *http.Client
	refs   int
}

var clients = newClientPool()

func newClientPool() *clientPool {
	return &clientPool{clients: make(map[string]*pooledClient)}
}

// acquire returns the shared client for config and a release func that
// drops the reference once, however often it is called.
func (p *clientPool) acquire(config *Config) (*http.Client, func()) {
	key := config.cacheKey()

	p.mu.Lock()
	defer p.mu.Unlock()

	pc, ok := p.clients[key]
	if !ok {
		pc = &pooledClient{client: http.NewClient(clientConfig(config))}
		p.clients[key] = pc
	}
	pc.refs++

	var once sync.Once
	return pc.client, func() {
		once.Do(func() { p.release(key) })
	}
}

func (p *clientPool) release(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pc, ok := p.clients[key]
	if !ok {
		return
	}
	if pc.refs--; pc.refs <= 0 {
		delete(p.clients, key)
	}
}

// open reports the number of pooled clients.
func (p *clientPool) open() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

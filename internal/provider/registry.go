package provider

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

var ErrUnknownProvider = errors.New("unknown provider")

// Config is what every adapter constructor takes.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// Client returns the configured HTTP client or the shared one.
func (c Config) Client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return SharedHTTPClient()
}

// SharedHTTPClient is the process-wide connection pool used by all adapters.
// No overall timeout is set because streams are long lived; cancellation comes
// from the request context.
var SharedHTTPClient = sync.OnceValue(func() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	}
	return &http.Client{Transport: transport}
})

type Factory func() Provider

// Entry describes one registered backend. Capabilities are static so routing
// never has to construct the adapter.
type Entry struct {
	ID                 string
	Enabled            bool
	CredentialsPresent bool
	Capabilities       Capabilities
	Factory            Factory

	once     sync.Once
	instance Provider
}

// Usable reports whether the entry is both switched on and has credentials.
func (e *Entry) Usable() bool {
	return e.Enabled && e.CredentialsPresent
}

// Info is the read-only view of an entry.
type Info struct {
	ID                 string       `json:"id"`
	Enabled            bool         `json:"enabled"`
	CredentialsPresent bool         `json:"credentialsPresent"`
	Capabilities       Capabilities `json:"capabilities"`
}

// Usable mirrors Entry.Usable.
func (i Info) Usable() bool {
	return i.Enabled && i.CredentialsPresent
}

// Registry maps provider ids to lazily constructed adapters. Entries are
// registered at startup; Get is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

func (r *Registry) Register(e *Entry) error {
	if e.ID == "" {
		return fmt.Errorf("provider entry has no id")
	}
	if e.Factory == nil {
		return fmt.Errorf("provider %q has no factory", e.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.ID]; ok {
		return fmt.Errorf("provider %q already registered", e.ID)
	}
	r.entries[e.ID] = e
	r.order = append(r.order, e.ID)
	return nil
}

// Get returns the adapter for id, building it on first use. Concurrent first
// callers all receive the same instance.
func (r *Registry) Get(id string) (Provider, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	e.once.Do(func() {
		e.instance = e.Factory()
	})
	return e.instance, nil
}

// Lookup returns the static info for id.
func (r *Registry) Lookup(id string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Info{}, false
	}
	return e.info(), true
}

// Snapshot lists every entry in registration order.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].info())
	}
	return out
}

func (e *Entry) info() Info {
	return Info{
		ID:                 e.ID,
		Enabled:            e.Enabled,
		CredentialsPresent: e.CredentialsPresent,
		Capabilities:       e.Capabilities,
	}
}

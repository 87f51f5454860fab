// Package provider abstracts outbound calls to third-party model APIs.
package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Response carries the provider output and authoritative token usage.
type Response struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
	TokensUsed   int64
}

// Client is one provider endpoint. Implementations must honor ctx deadlines.
type Client interface {
	Call(ctx context.Context, modelID, prompt string) (*Response, error)
}

// Error wraps a failed provider call with enough context for fallback
// decisions and the aggregated failure report.
type Error struct {
	Provider   string
	ModelID    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("provider %s model %s: %v", e.Provider, e.ModelID, e.Err)
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s model %s: status=%d", e.Provider, e.ModelID, e.StatusCode)
	}
	return fmt.Sprintf("provider %s model %s: request failed", e.Provider, e.ModelID)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Registry maps provider names to clients.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register installs or replaces the client for a provider name.
func (r *Registry) Register(name string, client Client) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || client == nil {
		return
	}
	r.mu.Lock()
	r.clients[name] = client
	r.mu.Unlock()
}

// Get returns the client for a provider name.
func (r *Registry) Get(name string) (Client, bool) {
	r.mu.RLock()
	client, ok := r.clients[strings.ToLower(strings.TrimSpace(name))]
	r.mu.RUnlock()
	return client, ok
}

package scanning

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedBackend is returned for backend identifiers no provider can serve
var ErrUnsupportedBackend = errors.New("unsupported backend")

// Provider names used as backend identifier prefixes, e.g. "ollama:llava:1.6"
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Invoker sends one image and prompt to the named backend and returns its raw text
type Invoker interface {
	Invoke(ctx context.Context, backendID string, img Image, prompt string) (string, error)
}

// Backend is a provider that runs a vision prompt against one of its models
type Backend interface {
	Generate(ctx context.Context, model string, img Image, prompt string) (string, error)
	Close() error
}

// ParseBackendID splits a backend identifier into provider and model.
// Identifiers without a known provider prefix are Gemini model names.
func ParseBackendID(id string) (provider, model string) {
	id = strings.TrimSpace(id)
	if prefix, rest, ok := strings.Cut(id, ":"); ok {
		switch prefix {
		case ProviderGemini, ProviderOllama, ProviderOpenAI:
			return prefix, strings.TrimSpace(rest)
		}
	}
	return ProviderGemini, id
}

// Router implements Invoker by dispatching to registered providers
type Router struct {
	backends map[string]Backend
}

// NewRouter creates a Router with no providers
func NewRouter() *Router {
	return &Router{backends: make(map[string]Backend)}
}

// Register makes a provider available to Invoke
func (r *Router) Register(provider string, backend Backend) {
	r.backends[provider] = backend
}

// Invoke routes the call to the provider named by backendID
func (r *Router) Invoke(ctx context.Context, backendID string, img Image, prompt string) (string, error) {
	provider, model := ParseBackendID(backendID)
	if model == "" {
		return "", fmt.Errorf("%w: %q has no model name", ErrUnsupportedBackend, backendID)
	}

	backend, ok := r.backends[provider]
	if !ok {
		return "", fmt.Errorf("%w: provider %q is not configured", ErrUnsupportedBackend, provider)
	}

	return backend.Generate(ctx, model, img, prompt)
}

// Close closes every registered provider
func (r *Router) Close() error {
	var errs []error
	for provider, backend := range r.backends {
		if err := backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", provider, err))
		}
	}
	return errors.Join(errs...)
}

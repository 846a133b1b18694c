// Package keys keeps provider API keys supplied at runtime. Keys live in
// memory only and are handed to the worker through its environment.
package keys

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/pritzvi/linked-out/internal/faults"
)

// Provider names an LLM vendor whose key the worker may need.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
)

var envNames = map[Provider]string{
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderGemini:    "GEMINI_API_KEY",
}

// EnvName returns the environment variable that carries p's key.
func EnvName(p Provider) (string, bool) {
	name, ok := envNames[p]
	return name, ok
}

// Registry is a concurrency-safe map of provider keys.
type Registry struct {
	mu   sync.RWMutex
	keys map[Provider]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{keys: make(map[Provider]string)}
}

// Set stores the key for a provider, replacing any earlier one.
func (r *Registry) Set(p Provider, secret string) error {
	if _, ok := envNames[p]; !ok {
		return &faults.Error{Kind: faults.KindValidation, Code: "unknown_provider",
			Msg: fmt.Sprintf("unknown provider %q", p)}
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return &faults.Error{Kind: faults.KindValidation, Code: "empty_key",
			Msg: fmt.Sprintf("%s key is empty", p)}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[p] = secret
	return nil
}

// Get returns the key for a provider.
func (r *Registry) Get(p Provider) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.keys[p]
	return k, ok
}

// Providers lists the providers with a key set, sorted.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.keys))
	for p := range r.keys {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Environ renders the stored keys as NAME=value pairs, sorted by provider.
func (r *Registry) Environ() []string {
	providers := r.Providers()

	r.mu.RLock()
	defer r.mu.RUnlock()
	env := make([]string, 0, len(providers))
	for _, p := range providers {
		if k, ok := r.keys[p]; ok {
			env = append(env, envNames[p]+"="+k)
		}
	}
	return env
}

// Mask shortens a key for display, keeping only its last four characters.
func Mask(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", 8) + secret[len(secret)-4:]
}

package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/viper"

	"github.com/pritzvi/linked-out/internal/keys"
	"github.com/pritzvi/linked-out/internal/llm"
)

// newLLMClient creates an LLM client from config/env, or returns nil if no API key is configured.
func newLLMClient() *llm.Client {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil
	}
	return llm.NewClient(apiKey, viper.GetString("anthropic.model"))
}

// newKeyRegistry seeds a registry with every provider key found in config
// or the environment.
func newKeyRegistry() *keys.Registry {
	reg := keys.NewRegistry()
	if k := viper.GetString("anthropic.api_key"); k != "" {
		_ = reg.Set(keys.ProviderAnthropic, k)
	}
	for _, p := range []keys.Provider{keys.ProviderAnthropic, keys.ProviderOpenAI, keys.ProviderGemini} {
		if _, ok := reg.Get(p); ok {
			continue
		}
		name, _ := keys.EnvName(p)
		if k := os.Getenv(name); k != "" {
			_ = reg.Set(p, k)
		}
	}
	return reg
}

// registrySummarizer builds an LLM client per call from the anthropic key
// currently in the registry, so keys added through the API take effect.
type registrySummarizer struct {
	reg   *keys.Registry
	model string
}

var errNoAnthropicKey = errors.New("no anthropic key registered")

func (r registrySummarizer) client() (*llm.Client, error) {
	k, ok := r.reg.Get(keys.ProviderAnthropic)
	if !ok {
		return nil, errNoAnthropicKey
	}
	return llm.NewClient(k, r.model), nil
}

func (r registrySummarizer) SummarizeResume(ctx context.Context, resume string) (string, error) {
	c, err := r.client()
	if err != nil {
		return "", err
	}
	return c.SummarizeResume(ctx, resume)
}

func (r registrySummarizer) ConnectionExamples(ctx context.Context, summary string) ([]string, error) {
	c, err := r.client()
	if err != nil {
		return nil, err
	}
	return c.ConnectionExamples(ctx, summary)
}

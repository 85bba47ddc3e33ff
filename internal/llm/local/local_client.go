// Package local talks to self-hosted models behind an OpenAI-compatible
// chat completions endpoint (Ollama, vLLM, llama.cpp server).
package local

import (
	"fmt"

	"annotext/internal/domain"
	"annotext/internal/llm"
	"annotext/internal/llm/openai"
	"annotext/internal/port"
)

// Factory builds a client for domain.ProviderLocal. A base URL is required;
// the API key is optional.
func Factory(cfg *llm.ProviderConfig) (port.CompletionClient, error) {
	return newClient(cfg, domain.ProviderLocal)
}

// CustomFactory builds a client for domain.ProviderCustom, which is any
// other OpenAI-compatible gateway.
func CustomFactory(cfg *llm.ProviderConfig) (port.CompletionClient, error) {
	return newClient(cfg, domain.ProviderCustom)
}

func newClient(cfg *llm.ProviderConfig, provider domain.Provider) (port.CompletionClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: %s provider needs api_base_url", domain.ErrConfiguration, provider)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: %s provider needs model_name", domain.ErrConfiguration, provider)
	}
	return openai.NewClientWithOptions(cfg, openai.EndpointFor(cfg.BaseURL), openai.Options{
		Provider:        string(provider),
		DisableJSONMode: true,
	}), nil
}

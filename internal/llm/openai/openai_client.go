package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"annotext/internal/domain"
	"annotext/internal/llm"
	"annotext/internal/port"
)

const (
	apiURL       = "https://api.openai.com/v1/chat/completions"
	defaultModel = "gpt-4o-mini"
)

// Client implements port.CompletionClient using the OpenAI Chat Completions
// API. It also serves any server that speaks the same protocol.
type Client struct {
	provider string
	apiKey   string
	model    string
	endpoint string
	jsonMode bool
	client   *http.Client
}

// Options adjusts a Client for OpenAI-compatible servers.
type Options struct {
	// Provider is the name used in errors and completions.
	Provider string
	// DisableJSONMode omits response_format, which some servers reject.
	DisableJSONMode bool
}

// NewClient creates an OpenAI client from a provider config. A BaseURL
// replaces the public API root.
func NewClient(cfg *llm.ProviderConfig) *Client {
	return NewClientWithOptions(cfg, endpointFor(cfg.BaseURL), Options{Provider: string(domain.ProviderOpenAI)})
}

// NewClientWithEndpoint creates a client pointing at a custom API endpoint (for testing).
func NewClientWithEndpoint(cfg *llm.ProviderConfig, endpoint string) *Client {
	return NewClientWithOptions(cfg, endpoint, Options{Provider: string(domain.ProviderOpenAI)})
}

// NewClientWithOptions creates a client against endpoint with explicit options.
func NewClientWithOptions(cfg *llm.ProviderConfig, endpoint string, opts Options) *Client {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	if opts.Provider == "" {
		opts.Provider = string(domain.ProviderOpenAI)
	}
	return &Client{
		provider: opts.Provider,
		apiKey:   cfg.APIKey,
		model:    model,
		endpoint: endpoint,
		jsonMode: !opts.DisableJSONMode,
		client:   &http.Client{Timeout: cfg.Timeout()},
	}
}

// Factory adapts NewClient to llm.ProviderFactory.
func Factory(cfg *llm.ProviderConfig) (port.CompletionClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai api key is not set", domain.ErrConfiguration)
	}
	return NewClient(cfg), nil
}

// EndpointFor returns the chat completions URL under base.
func EndpointFor(base string) string {
	return endpointFor(base)
}

func endpointFor(base string) string {
	if base == "" {
		return apiURL
	}
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}

func (c *Client) Complete(ctx context.Context, in port.CompletionRequest) (*port.Completion, error) {
	messages := make([]map[string]interface{}, 0, 2)
	if in.SystemMessage != "" {
		messages = append(messages, map[string]interface{}{"role": "system", "content": in.SystemMessage})
	}
	messages = append(messages, map[string]interface{}{"role": "user", "content": in.Prompt})

	reqBody := map[string]interface{}{
		"model":       c.model,
		"messages":    messages,
		"max_tokens":  in.MaxTokens,
		"temperature": in.Temperature,
	}
	if in.JSONMode && c.jsonMode {
		reqBody["response_format"] = map[string]interface{}{"type": "json_object"}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s API: %w", c.provider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, llm.StatusError(c.provider, resp, respBody)
	}

	return c.parseResponse(respBody)
}

// apiResponse models the Chat Completions API response.
type apiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *Client) parseResponse(body []byte) (*port.Completion, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w (raw: %s)", err, llm.Truncate(string(body), 500))
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from %s API: no choices", c.provider)
	}

	model := resp.Model
	if model == "" {
		model = c.model
	}
	return &port.Completion{
		Text:             resp.Choices[0].Message.Content,
		Provider:         c.provider,
		Model:            model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		Truncated:        resp.Choices[0].FinishReason == "length",
	}, nil
}

// Package llmclient is an OpenAI-compatible chat-completions caller
// with a single private primitive (callLLM) and four best-effort public
// translation operations layered on top of it.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"hnzh/internal/domain/llm"
	"hnzh/internal/httpclient"
	"hnzh/internal/logging"
	"hnzh/internal/xerrors"
)

// Provider describes one configured chat-completions backend.
type Provider struct {
	Name          string
	BaseURL       string
	Model         string
	APIKey        string
	ThinkingModel bool
}

// Client implements llm.Translator. One provider is "current" at a time,
// selected from a persisted list; callers swap providers with SetCurrent.
type Client struct {
	http   *http.Client
	logger logging.Logger
	retry  xerrors.RetryConfig

	mu        sync.RWMutex
	providers map[string]Provider
	current   string
}

var _ llm.Translator = (*Client)(nil)

const temperature = 0.3

// New creates a client with the given providers and initial current provider name.
func New(providers []Provider, current string, logger logging.Logger) *Client {
	logger = logging.OrNop(logger)
	c := &Client{
		http:      httpclient.NewWithCircuitBreaker(60*time.Second, logger, "llm-client"),
		logger:    logger,
		retry:     xerrors.DefaultRetryConfig(),
		providers: make(map[string]Provider, len(providers)),
	}
	for _, p := range providers {
		c.providers[p.Name] = p
	}
	c.current = current
	return c
}

// SetCurrent switches the active provider by name.
func (c *Client) SetCurrent(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.providers[name]; !ok {
		return fmt.Errorf("unknown provider %q", name)
	}
	c.current = name
	return nil
}

func (c *Client) currentProvider() (Provider, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.providers[c.current]
	if !ok {
		return Provider{}, fmt.Errorf("no current provider configured")
	}
	return p, nil
}

type chatRequest struct {
	Model          string              `json:"model"`
	Messages       []llm.Message       `json:"messages"`
	Temperature    float64             `json:"temperature"`
	ResponseFormat *responseFormatSpec `json:"response_format,omitempty"`
}

type responseFormatSpec struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// callLLM is the single private primitive every public operation funnels
// through. It returns nil (not an error) on any failure after
// retries are exhausted, matching the "value or null" contract; callers
// degrade to an empty result rather than propagating an error.
func (c *Client) callLLM(ctx context.Context, messages []llm.Message, jsonMode bool) *string {
	provider, err := c.currentProvider()
	if err != nil {
		c.logger.Warn("llmclient: %v", err)
		return nil
	}

	req := chatRequest{
		Model:       provider.Model,
		Messages:    messages,
		Temperature: temperature,
	}
	if jsonMode {
		req.ResponseFormat = &responseFormatSpec{Type: "json_object"}
	}

	result, err := xerrors.RetryWithResult(ctx, c.retry, func(ctx context.Context) (string, error) {
		return c.doCall(ctx, provider, req)
	}, c.logger)
	if err != nil {
		c.logger.Warn("llmclient: call failed after retries: %v", err)
		return nil
	}

	if provider.ThinkingModel {
		result = stripThinking(result)
	}
	return &result
}

func (c *Client) doCall(ctx context.Context, provider Provider, req chatRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", xerrors.NewPermanentError(err, "bad request payload")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(provider.BaseURL, "/")+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", xerrors.NewPermanentError(err, "bad http request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+provider.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", xerrors.NewTransientError(err, "llm request failed")
	}
	defer resp.Body.Close()

	body, err := httpclient.ReadAllWithLimit(resp.Body, 16<<20)
	if err != nil {
		return "", xerrors.NewTransientError(err, "llm response read failed")
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var parsed chatResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", xerrors.NewPermanentError(err, "malformed llm response")
		}
		if len(parsed.Choices) == 0 {
			return "", xerrors.NewPermanentError(fmt.Errorf("empty choices"), "llm returned no choices")
		}
		return parsed.Choices[0].Message.Content, nil
	case resp.StatusCode >= 500:
		return "", xerrors.NewTransientError(fmt.Errorf("http %d", resp.StatusCode), "llm server error")
	default:
		return "", xerrors.NewPermanentError(fmt.Errorf("http %d: %s", resp.StatusCode, body), "llm client error")
	}
}

// stripThinking removes a leading <think>...</think> block for
// thinking-model providers.
func stripThinking(s string) string {
	const open, close = "<think>", "</think>"
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, open) {
		return s
	}
	idx := strings.Index(trimmed, close)
	if idx == -1 {
		return s
	}
	return strings.TrimSpace(trimmed[idx+len(close):])
}

// stripCodeFence removes a leading ```json and trailing ``` if present.
func stripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}

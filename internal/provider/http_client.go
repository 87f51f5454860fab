package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxResponseBytes = 4 << 20

// HTTPClient talks to an OpenAI-compatible chat completions endpoint. Most
// commercial providers and gateways speak this wire shape.
type HTTPClient struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient constructs a client for one provider endpoint. Timeouts are
// enforced by the caller's context; the transport-level timeout is only a
// backstop.
func NewHTTPClient(name, baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		name:    name,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Call implements Client.
func (c *HTTPClient) Call(ctx context.Context, modelID, prompt string) (*Response, error) {
	body, errMarshal := json.Marshal(chatRequest{
		Model:    modelID,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if errMarshal != nil {
		return nil, &Error{Provider: c.name, ModelID: modelID, Err: errMarshal}
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if errReq != nil {
		return nil, &Error{Provider: c.name, ModelID: modelID, Err: errReq}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, errDo := c.client.Do(req)
	if errDo != nil {
		return nil, &Error{Provider: c.name, ModelID: modelID, Err: errDo}
	}
	defer func() { _ = res.Body.Close() }()

	raw, errRead := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if errRead != nil {
		return nil, &Error{Provider: c.name, ModelID: modelID, StatusCode: res.StatusCode, Err: errRead}
	}
	if res.StatusCode != http.StatusOK {
		return nil, &Error{Provider: c.name, ModelID: modelID, StatusCode: res.StatusCode,
			Err: fmt.Errorf("unexpected status %d", res.StatusCode)}
	}

	var parsed chatResponse
	if errUnmarshal := json.Unmarshal(raw, &parsed); errUnmarshal != nil {
		return nil, &Error{Provider: c.name, ModelID: modelID, StatusCode: res.StatusCode,
			Err: fmt.Errorf("malformed payload: %w", errUnmarshal)}
	}
	if parsed.Error != nil {
		return nil, &Error{Provider: c.name, ModelID: modelID, StatusCode: res.StatusCode,
			Err: fmt.Errorf("provider error: %s", parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 {
		return nil, &Error{Provider: c.name, ModelID: modelID, StatusCode: res.StatusCode,
			Err: fmt.Errorf("malformed payload: no choices")}
	}

	total := parsed.Usage.TotalTokens
	if total == 0 {
		total = parsed.Usage.PromptTokens + parsed.Usage.CompletionTokens
	}

	return &Response{
		Text:         parsed.Choices[0].Message.Content,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
		TokensUsed:   total,
	}, nil
}

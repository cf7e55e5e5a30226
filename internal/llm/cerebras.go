package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const cerebrasProvider = "cerebras"

func init() {
	RegisterProvider(cerebrasProvider, func(s Settings) (Provider, error) {
		if s.APIKey == "" {
			return nil, &ProviderError{Provider: cerebrasProvider, Code: ErrCodeAPIKey, Message: "api key missing"}
		}
		return NewCerebrasClient(s.APIKey, s.Model), nil
	})
}

type CerebrasClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
	Endpoint   string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Stream         bool            `json:"stream,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatCompletionsResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

func NewCerebrasClient(apiKey, model string) *CerebrasClient {
	if model == "" {
		model = "llama-3.3-70b"
	}
	return &CerebrasClient{
		// Callers bound each request with a context deadline.
		HTTPClient: &http.Client{Timeout: 90 * time.Second},
		APIKey:     apiKey,
		Model:      model,
		Endpoint:   "https://api.cerebras.ai/v1/chat/completions",
	}
}

func (c *CerebrasClient) Name() string { return cerebrasProvider }

// Generate runs one chat completion and asks for a JSON object back.
func (c *CerebrasClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	if c.APIKey == "" {
		return "", &ProviderError{Provider: cerebrasProvider, Code: ErrCodeAPIKey, Message: "api key missing"}
	}

	var messages []chatMessage
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	reqBody, err := json.Marshal(chatCompletionsRequest{
		Model:          c.Model,
		Messages:       messages,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", &ProviderError{Provider: cerebrasProvider, Code: ErrCodeInvalidInput, Message: "encode request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", &ProviderError{Provider: cerebrasProvider, Code: ErrCodeInvalidInput, Message: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		code := ErrCodeServiceDown
		if errors.Is(err, context.DeadlineExceeded) {
			code = ErrCodeTimeout
		}
		return "", &ProviderError{Provider: cerebrasProvider, Code: code, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &ProviderError{
			Provider: cerebrasProvider,
			Code:     statusCode(resp.StatusCode),
			Message:  fmt.Sprintf("status=%d body=%s", resp.StatusCode, string(b)),
		}
	}
	var cr chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", &ProviderError{Provider: cerebrasProvider, Code: ErrCodeBadResponse, Message: "decode response", Err: err}
	}
	if len(cr.Choices) == 0 {
		return "", &ProviderError{Provider: cerebrasProvider, Code: ErrCodeBadResponse, Message: "empty choices"}
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}

func statusCode(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrCodeAPIKey
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimit
	case status >= 500:
		return ErrCodeServiceDown
	default:
		return ErrCodeInvalidInput
	}
}

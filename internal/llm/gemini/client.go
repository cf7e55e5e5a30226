package gemini

import (
	"context"

	"google.golang.org/genai"

	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/llm"
)

const providerName = "gemini"

// Client is a Gemini LLM client
type Client struct {
	client *genai.Client
	model  string
}

func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &llm.ProviderError{
			Provider: providerName,
			Code:     llm.ErrCodeAPIKey,
			Message:  "Failed to create Gemini client",
			Err:      err,
		}
	}
	return &Client{client: client, model: model}, nil
}

func (c *Client) Name() string { return providerName }

// Generate sends the system instructions and prompt as one request.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		code := llm.ErrCodeServiceDown
		if ctx.Err() != nil {
			code = llm.ErrCodeTimeout
		}
		return "", &llm.ProviderError{Provider: providerName, Code: code, Message: "Failed to generate content", Err: err}
	}
	if result == nil {
		return "", &llm.ProviderError{Provider: providerName, Code: llm.ErrCodeBadResponse, Message: "No response generated"}
	}
	text, err := result.Text()
	if err != nil {
		return "", &llm.ProviderError{Provider: providerName, Code: llm.ErrCodeBadResponse, Message: "Failed to extract response text", Err: err}
	}
	if text == "" {
		return "", &llm.ProviderError{Provider: providerName, Code: llm.ErrCodeBadResponse, Message: "Empty response generated"}
	}
	return text, nil
}

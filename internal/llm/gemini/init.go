package gemini

import (
	"context"

	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/llm"
)

// Register Gemini provider on package import
func init() {
	llm.RegisterProvider(providerName, func(s llm.Settings) (llm.Provider, error) {
		if s.APIKey == "" {
			return nil, &llm.ProviderError{Provider: providerName, Code: llm.ErrCodeAPIKey, Message: "api key missing"}
		}
		return NewClient(context.Background(), s.APIKey, s.Model)
	})
}

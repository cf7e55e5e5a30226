package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

const elevenLabsProvider = "elevenlabs"

// ElevenLabsClient synthesizes speech over the ElevenLabs HTTP streaming endpoint.
type ElevenLabsClient struct {
	APIKey     string
	VoiceID    string
	ModelID    string
	BaseURL    string
	HTTPClient *http.Client
	Log        *zap.Logger
}

func NewElevenLabsClient(apiKey, voiceID string, log *zap.Logger) *ElevenLabsClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &ElevenLabsClient{
		APIKey:     apiKey,
		VoiceID:    voiceID,
		ModelID:    "eleven_flash_v2_5",
		BaseURL:    "https://api.elevenlabs.io",
		HTTPClient: &http.Client{},
		Log:        log,
	}
}

func (e *ElevenLabsClient) Name() string { return elevenLabsProvider }

// Synthesize returns the full utterance as 48kHz PCM16LE mono.
func (e *ElevenLabsClient) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	if e.APIKey == "" || e.VoiceID == "" {
		return nil, permanent(elevenLabsProvider, "api key or voice id missing")
	}
	if text == "" {
		return nil, nil
	}

	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return nil, permanent(elevenLabsProvider, "base url: %v", err)
	}
	u.Path = "/v1/text-to-speech/" + e.VoiceID + "/stream"
	q := u.Query()
	q.Set("output_format", "pcm_48000")
	// 0..4, lower is lower latency
	q.Set("optimize_streaming_latency", "2")
	u.RawQuery = q.Encode()

	body := map[string]any{
		"model_id": e.ModelID,
		"text":     text,
		"voice_settings": map[string]any{
			"stability":         0.4,
			"similarity_boost":  0.7,
			"style":             0.0,
			"use_speaker_boost": true,
		},
	}
	if code := languageCode(language); code != "" {
		body["language_code"] = code
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, permanent(elevenLabsProvider, "encode request: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(buf))
	if err != nil {
		return nil, permanent(elevenLabsProvider, "build request: %v", err)
	}
	req.Header.Set("xi-api-key", e.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := e.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if retryableStatus(resp.StatusCode) {
			return nil, fmt.Errorf("elevenlabs: status=%d body=%s", resp.StatusCode, string(b))
		}
		return nil, permanent(elevenLabsProvider, "status=%d body=%s", resp.StatusCode, string(b))
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("elevenlabs: read audio: %w", err)
	}
	e.Log.Debug("elevenlabs: synthesized", zap.Int("bytes", len(pcm)))
	return pcm, nil
}

// retryableStatus covers throttling and server-side failures.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

// languageCode reduces a BCP 47 tag like "en-US" to "en".
func languageCode(tag string) string {
	for i, r := range tag {
		if r == '-' || r == '_' {
			return tag[:i]
		}
	}
	return tag
}

package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestElevenLabs_Synthesize(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/voice-1/stream" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("output_format") != "pcm_48000" {
			t.Errorf("unexpected output format %q", r.URL.Query().Get("output_format"))
		}
		if r.Header.Get("xi-api-key") != "k" {
			t.Errorf("missing api key header")
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte{1, 2, 3, 4})
	}))
	defer srv.Close()

	c := NewElevenLabsClient("k", "voice-1", nil)
	c.BaseURL = srv.URL
	pcm, err := c.Synthesize(context.Background(), "Hello there", "en-US")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pcm) != 4 {
		t.Fatalf("expected 4 bytes, got %d", len(pcm))
	}
	if gotBody["text"] != "Hello there" || gotBody["language_code"] != "en" {
		t.Fatalf("unexpected request body: %v", gotBody)
	}
}

func TestElevenLabs_StatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		permanent bool
	}{
		{http.StatusUnauthorized, true},
		{http.StatusBadRequest, true},
		{http.StatusTooManyRequests, false},
		{http.StatusBadGateway, false},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		c := NewElevenLabsClient("k", "v", nil)
		c.BaseURL = srv.URL
		_, err := c.Synthesize(context.Background(), "hi", "")
		srv.Close()
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		if IsPermanent(err) != tc.permanent {
			t.Fatalf("status %d: permanent=%v, want %v", tc.status, IsPermanent(err), tc.permanent)
		}
	}
}

func TestElevenLabs_MissingCredentials(t *testing.T) {
	_, err := NewElevenLabsClient("", "", nil).Synthesize(context.Background(), "hi", "")
	if !IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

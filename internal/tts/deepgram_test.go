package tts

import (
	"context"
	"testing"
	"time"
)

// Without an API key Synthesize must fail fast and permanently.
func TestDeepgram_Synthesize_NoKey(t *testing.T) {
	d := NewDeepgramClient("", "", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := d.Synthesize(ctx, "hello", "en-US")
	if err == nil {
		t.Fatalf("expected error when api key missing")
	}
	if !IsPermanent(err) {
		t.Fatalf("missing key should be permanent, got %v", err)
	}
}

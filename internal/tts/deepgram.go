package tts

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
)

const deepgramProvider = "deepgram"

// DeepgramClient synthesizes speech over the Deepgram speak websocket.
type DeepgramClient struct {
	apiKey     string
	model      string
	sampleRate int
	encoding   string
	log        *zap.Logger

	// idleWindow ends collection once audio stops arriving.
	idleWindow time.Duration
	deadline   time.Duration
}

func NewDeepgramClient(apiKey, model string, log *zap.Logger) *DeepgramClient {
	if model == "" {
		model = "aura-2-thalia-en"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DeepgramClient{
		apiKey:     apiKey,
		model:      model,
		sampleRate: 48000,
		encoding:   "linear16",
		log:        log,
		idleWindow: 400 * time.Millisecond,
		deadline:   12 * time.Second,
	}
}

func (d *DeepgramClient) Name() string { return deepgramProvider }

// Synthesize returns the full utterance as 48kHz PCM16LE mono. Deepgram has
// no break tags, so they are stripped first.
func (d *DeepgramClient) Synthesize(ctx context.Context, text, _ string) ([]byte, error) {
	if d.apiKey == "" {
		return nil, permanent(deepgramProvider, "API key missing")
	}
	text = StripBreaks(text)
	if text == "" {
		return nil, nil
	}

	options := &clientinterfaces.WSSpeakOptions{
		Model:      d.model,
		Encoding:   d.encoding,
		SampleRate: d.sampleRate,
	}

	var (
		mu        sync.Mutex
		audio     bytes.Buffer
		lastRecv  atomic.Int64
		seenAudio atomic.Bool
	)
	cb := &speakCallback{onBinary: func(data []byte) error {
		if len(data) == 0 {
			return nil
		}
		lastRecv.Store(time.Now().UnixNano())
		seenAudio.Store(true)
		mu.Lock()
		audio.Write(data)
		mu.Unlock()
		return nil
	}}

	dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, cb)
	if err != nil {
		return nil, fmt.Errorf("deepgram: create ws client: %w", err)
	}
	defer dg.Stop()

	if ok := dg.Connect(); !ok {
		return nil, fmt.Errorf("deepgram: connect failed")
	}
	if err := dg.SpeakWithText(text); err != nil {
		return nil, fmt.Errorf("deepgram: speak text: %w", err)
	}
	if err := dg.Flush(); err != nil {
		d.log.Debug("deepgram: flush", zap.Error(err))
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.Now().Add(d.deadline)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		if seenAudio.Load() {
			last := time.Unix(0, lastRecv.Load())
			if time.Since(last) > d.idleWindow {
				break
			}
		}
		if time.Now().After(deadline) {
			if !seenAudio.Load() {
				return nil, fmt.Errorf("deepgram: no audio before deadline")
			}
			break
		}
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]byte, audio.Len())
	copy(out, audio.Bytes())
	d.log.Debug("deepgram: synthesized", zap.Int("bytes", len(out)))
	return out, nil
}

type speakCallback struct{ onBinary func([]byte) error }

func (s *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCallback) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speakCallback) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCallback) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCallback) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (s *speakCallback) Error(*msginterfaces.ErrorResponse) error       { return nil }
func (s *speakCallback) UnhandledEvent([]byte) error                    { return nil }
func (s *speakCallback) Binary(byMsg []byte) error {
	if s.onBinary != nil {
		return s.onBinary(byMsg)
	}
	return nil
}

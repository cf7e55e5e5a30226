package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/agent"
)

const defaultStreamingURL = "wss://streaming.assemblyai.com/v3/ws"

// AssemblyAI opens streaming transcription sessions. Each Open is a fresh
// websocket, so a stopped stream can always be replaced by a new one.
type AssemblyAI struct {
	apiKey     string
	url        string
	sampleRate int
	dialer     websocket.Dialer
	log        *zap.Logger
}

func NewAssemblyAI(apiKey string, log *zap.Logger) *AssemblyAI {
	if log == nil {
		log = zap.NewNop()
	}
	return &AssemblyAI{
		apiKey:     apiKey,
		url:        defaultStreamingURL,
		sampleRate: 16000,
		dialer:     websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:        log,
	}
}

// WithURL points the client at another streaming endpoint.
func (a *AssemblyAI) WithURL(u string) *AssemblyAI {
	a.url = u
	return a
}

// AssemblyAI message types
type BeginMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type TurnMessage struct {
	Type           string `json:"type"`
	TurnOrder      int    `json:"turn_order"`
	Transcript     string `json:"transcript"`
	EndOfTurn      bool   `json:"end_of_turn"`
	TurnFormatted  bool   `json:"turn_is_formatted"`
	AudioStartTime int64  `json:"audio_start_time,omitempty"`
	AudioEndTime   int64  `json:"audio_end_time,omitempty"`
}

type TerminationMessage struct {
	Type                   string  `json:"type"`
	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Open connects a new streaming session.
func (a *AssemblyAI) Open(ctx context.Context) (agent.SpeechStream, error) {
	if a.apiKey == "" {
		return nil, fmt.Errorf("AssemblyAI API key is empty")
	}

	params := url.Values{}
	params.Set("sample_rate", fmt.Sprint(a.sampleRate))
	params.Set("format_turns", "false")
	params.Set("encoding", "pcm_s16le")
	wsURL := a.url + "?" + params.Encode()

	headers := http.Header{"Authorization": {a.apiKey}}
	conn, resp, err := a.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			a.log.Warn("assemblyai: connection refused", zap.Int("status", resp.StatusCode))
		}
		return nil, fmt.Errorf("failed to connect to AssemblyAI: %w", err)
	}

	s := &stream{
		conn:    conn,
		log:     a.log,
		updates: make(chan agent.TranscriptUpdate, 64),
		audio:   make(chan []byte, 1000),
		stopCh:  make(chan struct{}),
	}
	go s.handleMessages()
	go s.sendAudioData()
	a.log.Debug("assemblyai: stream opened")
	return s, nil
}

// stream is one AssemblyAI session. Final text accumulates completed turns;
// the current turn's text is reported as partial.
type stream struct {
	conn    *websocket.Conn
	log     *zap.Logger
	updates chan agent.TranscriptUpdate
	audio   chan []byte
	stopCh  chan struct{}
	once    sync.Once
	writeMu sync.Mutex

	final string
}

func (s *stream) Updates() <-chan agent.TranscriptUpdate { return s.updates }

// SendPCM16KLE queues 16kHz PCM16LE audio; it drops audio when the queue is full.
func (s *stream) SendPCM16KLE(pcm []byte) error {
	select {
	case <-s.stopCh:
		return fmt.Errorf("assemblyai: stream closed")
	default:
	}
	select {
	case s.audio <- pcm:
	default:
		s.log.Debug("assemblyai: audio buffer full, dropping packet")
	}
	return nil
}

// Close terminates the session. It does not wait for the reader to drain.
func (s *stream) Close() error {
	s.once.Do(func() {
		close(s.stopCh)
		s.writeMu.Lock()
		_ = s.conn.WriteJSON(map[string]string{"type": "Terminate"})
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	return nil
}

// handleMessages processes incoming WebSocket messages until the connection ends.
func (s *stream) handleMessages() {
	defer close(s.updates)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("assemblyai: recovered from panic in handleMessages", zap.Any("panic", r))
		}
	}()
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopCh:
			default:
				s.emit(agent.TranscriptUpdate{Err: fmt.Errorf("assemblyai: read: %w", err)})
			}
			return
		}
		s.processMessage(message)
	}
}

// processMessage handles different message types from AssemblyAI
func (s *stream) processMessage(message []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		s.log.Warn("assemblyai: unmarshal message", zap.Error(err))
		return
	}
	switch base.Type {
	case "Begin":
		var msg BeginMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.log.Warn("assemblyai: unmarshal Begin", zap.Error(err))
			return
		}
		s.log.Debug("assemblyai: session began", zap.String("id", msg.ID), zap.Time("expires_at", time.Unix(msg.ExpiresAt, 0)))
	case "Turn":
		var msg TurnMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.log.Warn("assemblyai: unmarshal Turn", zap.Error(err))
			return
		}
		s.applyTurn(msg)
	case "Termination":
		var msg TerminationMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.log.Warn("assemblyai: unmarshal Termination", zap.Error(err))
			return
		}
		s.log.Debug("assemblyai: session terminated",
			zap.Float64("audio_seconds", msg.AudioDurationSeconds),
			zap.Float64("session_seconds", msg.SessionDurationSeconds))
	case "Error":
		var msg ErrorMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.log.Warn("assemblyai: unmarshal Error", zap.Error(err))
			return
		}
		s.emit(agent.TranscriptUpdate{Err: fmt.Errorf("assemblyai: %s", msg.Error)})
	default:
		s.log.Debug("assemblyai: unknown message type", zap.String("type", base.Type))
	}
}

// applyTurn folds a turn into the cumulative transcript. The committed text
// is the raw end-of-turn transcript, which extends the partials that preceded
// it; formatted re-sends can drop or reword words and are ignored.
func (s *stream) applyTurn(msg TurnMessage) {
	if msg.TurnFormatted {
		return
	}
	text := strings.TrimSpace(msg.Transcript)
	if msg.EndOfTurn {
		if text != "" {
			if s.final != "" {
				s.final += " "
			}
			s.final += text
		}
		s.emit(agent.TranscriptUpdate{Final: s.final})
		return
	}
	s.emit(agent.TranscriptUpdate{Final: s.final, Partial: text})
}

func (s *stream) emit(u agent.TranscriptUpdate) {
	select {
	case s.updates <- u:
	case <-s.stopCh:
	}
}

// sendAudioData sends queued audio data to AssemblyAI
func (s *stream) sendAudioData() {
	for {
		select {
		case <-s.stopCh:
			return
		case pcm := <-s.audio:
			s.writeMu.Lock()
			err := s.conn.WriteMessage(websocket.BinaryMessage, pcm)
			s.writeMu.Unlock()
			if err != nil {
				s.log.Debug("assemblyai: send audio", zap.Error(err))
				return
			}
		}
	}
}

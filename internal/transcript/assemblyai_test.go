package transcript

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/agent"
)

func newTestStream() *stream {
	return &stream{
		log:     zap.NewNop(),
		updates: make(chan agent.TranscriptUpdate, 16),
		stopCh:  make(chan struct{}),
	}
}

func TestProcessMessage_TurnsAccumulate(t *testing.T) {
	s := newTestStream()
	msgs := []string{
		`{"type":"Begin","id":"abc","expires_at":1700000000}`,
		`{"type":"Turn","turn_order":0,"transcript":"hello","end_of_turn":false}`,
		`{"type":"Turn","turn_order":0,"transcript":"hello world","end_of_turn":true,"turn_is_formatted":false}`,
		`{"type":"Turn","turn_order":0,"transcript":"Hello world.","end_of_turn":true,"turn_is_formatted":true}`,
		`{"type":"Turn","turn_order":1,"transcript":"second","end_of_turn":false}`,
	}
	for _, m := range msgs {
		s.processMessage([]byte(m))
	}
	want := []agent.TranscriptUpdate{
		{Partial: "hello"},
		{Final: "hello world"},
		{Final: "hello world", Partial: "second"},
	}
	for i, w := range want {
		select {
		case got := <-s.updates:
			if got.Final != w.Final || got.Partial != w.Partial || got.Err != nil {
				t.Fatalf("update %d = %+v, want %+v", i, got, w)
			}
		default:
			t.Fatalf("missing update %d", i)
		}
	}
}

// The capture layer only ever appends the part of the cumulative text beyond
// what it already applied, so each update must extend the previous one.
func TestProcessMessage_CumulativeTextOnlyExtends(t *testing.T) {
	s := newTestStream()
	msgs := []string{
		`{"type":"Turn","turn_order":0,"transcript":"um so I think","end_of_turn":false}`,
		`{"type":"Turn","turn_order":0,"transcript":"um so I think we should uh use a queue","end_of_turn":true,"turn_is_formatted":false}`,
		`{"type":"Turn","turn_order":0,"transcript":"So I think we should use a queue.","end_of_turn":true,"turn_is_formatted":true}`,
		`{"type":"Turn","turn_order":1,"transcript":"with retries","end_of_turn":false}`,
		`{"type":"Turn","turn_order":1,"transcript":"with retries and backoff","end_of_turn":true,"turn_is_formatted":false}`,
	}
	for _, m := range msgs {
		s.processMessage([]byte(m))
	}
	close(s.updates)

	prev := ""
	for u := range s.updates {
		text := strings.TrimSpace(u.Final + " " + u.Partial)
		if !strings.HasPrefix(text, prev) {
			t.Fatalf("update %q does not extend %q", text, prev)
		}
		prev = text
	}
	if want := "um so I think we should uh use a queue with retries and backoff"; prev != want {
		t.Fatalf("final text %q, want %q", prev, want)
	}
}

func TestProcessMessage_ErrorSurfaces(t *testing.T) {
	s := newTestStream()
	s.processMessage([]byte(`{"type":"Error","error":"bad audio"}`))
	u := <-s.updates
	if u.Err == nil || !strings.Contains(u.Err.Error(), "bad audio") {
		t.Fatalf("expected error update, got %+v", u)
	}
}

func TestOpen_NoKey(t *testing.T) {
	if _, err := NewAssemblyAI("", nil).Open(context.Background()); err == nil {
		t.Fatalf("expected error with empty key")
	}
}

func TestOpen_StreamsAgainstServer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotAudio := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Turn","transcript":"hi there","end_of_turn":false}`))
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				select {
				case gotAudio <- data:
				default:
				}
			}
		}
	}))
	defer srv.Close()

	a := NewAssemblyAI("key", nil).WithURL("ws" + strings.TrimPrefix(srv.URL, "http"))
	st, err := a.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	select {
	case u := <-st.Updates():
		if u.Partial != "hi there" {
			t.Fatalf("unexpected update %+v", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for update")
	}

	if err := st.SendPCM16KLE([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("SendPCM16KLE: %v", err)
	}
	select {
	case data := <-gotAudio:
		if len(data) != 4 {
			t.Fatalf("unexpected audio payload %v", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for audio at server")
	}

	_ = st.Close()
	_ = st.Close()
	// Updates closes once the reader exits.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-st.Updates():
			if !ok {
				if err := st.SendPCM16KLE([]byte{0}); err == nil {
					t.Fatalf("send after close should fail")
				}
				return
			}
		case <-deadline:
			t.Fatalf("updates channel not closed after Close")
		}
	}
}

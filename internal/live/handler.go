package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/agent"
	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/auth"
)

// ErrInviteRequired is returned by a Builder when an invited session is
// opened without a valid invite.
var ErrInviteRequired = errors.New("invite required")

// EndedError is returned by a Builder when the session already finished. The
// client is sent to Redirect instead of getting a new interview.
type EndedError struct {
	Redirect string
}

func (e *EndedError) Error() string { return "session already ended" }

// Media is what the socket provides to a session.
type Media struct {
	Player  agent.Player
	Devices agent.MediaDevices
	Local   agent.LocalSpeaker
	Proctor agent.Proctor
	Hooks   agent.Hooks
}

// Builder creates the session for token. invite is nil when none was presented.
type Builder func(ctx context.Context, token string, invite *auth.InviteClaims, media Media) (*agent.Session, error)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler serves the per-session control socket.
type Handler struct {
	Build      Builder
	Registry   *Registry
	Invites    *auth.Invites
	ICEServers string
	Log        *zap.Logger
}

// ServeWS upgrades the request and runs the session until the socket closes.
// A closed socket counts as the page unloading.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request, token string) {
	log := h.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("token", token))

	var claims *auth.InviteClaims
	if inv := r.URL.Query().Get("invite"); inv != "" && h.Invites != nil {
		c, err := h.Invites.Validate(inv, token)
		if err != nil {
			http.Error(w, "invalid invite", http.StatusUnauthorized)
			return
		}
		claims = c
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("live: ws upgrade", zap.Error(err))
		return
	}
	b := newBridge(conn, h.ICEServers, log)
	defer b.shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Nothing is queued before the session starts, so the writer is not yet
	// running and the refusal frames below can be written directly.
	sess, err := h.Build(ctx, token, claims, Media{Player: b, Devices: b, Local: b, Proctor: b, Hooks: b.hooks()})
	if err != nil {
		var ended *EndedError
		if errors.As(err, &ended) {
			log.Info("live: session already ended", zap.String("redirect", ended.Redirect))
			_ = conn.WriteJSON(Message{Type: "redirect", URL: ended.Redirect})
			return
		}
		log.Warn("live: build session", zap.Error(err))
		_ = conn.WriteJSON(Message{Type: "error", Error: err.Error()})
		return
	}
	go b.writeLoop()
	b.sess = sess
	if prev := h.Registry.Add(token, sess); prev != nil {
		log.Info("live: replacing session from an older connection")
		go prev.Close()
	}
	defer func() {
		h.Registry.Remove(token, sess)
		b.Release()
		sess.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Debug("live: socket closed", zap.Error(err))
			return
		}
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		if !b.dispatch(ctx, m) {
			return
		}
	}
}

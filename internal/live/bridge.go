package live

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/agent"
	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/rtc"
)

var (
	errNoPeer       = errors.New("no media connection")
	errSocketClosed = errors.New("session socket closed")
)

// bridge connects one browser socket to one session. It is the session's
// player, media devices, local speaker, proctor and event sink.
type bridge struct {
	conn *websocket.Conn
	log  *zap.Logger
	ice  string

	out  chan Message
	done chan struct{}
	once sync.Once

	sess *agent.Session

	peerMu sync.Mutex
	peer   *rtc.Peer

	speakMu  sync.Mutex
	speakSeq uint64
	waiters  map[uint64]chan error

	modalOpen atomic.Bool
}

func newBridge(conn *websocket.Conn, ice string, log *zap.Logger) *bridge {
	return &bridge{
		conn:    conn,
		log:     log,
		ice:     ice,
		out:     make(chan Message, 256),
		done:    make(chan struct{}),
		waiters: make(map[uint64]chan error),
	}
}

// send queues a frame for the writer. It never blocks: hooks call it while
// the session lock is held.
func (b *bridge) send(m Message) {
	select {
	case <-b.done:
		return
	default:
	}
	select {
	case b.out <- m:
	default:
		b.log.Warn("live: outbound queue full, dropping", zap.String("type", m.Type))
	}
}

func (b *bridge) writeLoop() {
	for {
		select {
		case <-b.done:
			return
		case m := <-b.out:
			if err := b.conn.WriteJSON(m); err != nil {
				b.log.Debug("live: write", zap.Error(err))
				b.shutdown()
				return
			}
		}
	}
}

func (b *bridge) shutdown() {
	b.once.Do(func() {
		close(b.done)
		_ = b.conn.Close()
		b.speakMu.Lock()
		for id, ch := range b.waiters {
			ch <- errSocketClosed
			delete(b.waiters, id)
		}
		b.speakMu.Unlock()
	})
}

func (b *bridge) hooks() agent.Hooks {
	return agent.Hooks{
		OnPhase: func(p agent.Phase) { b.send(Message{Type: "phase", Phase: p.String()}) },
		OnEntry: func(e agent.ConversationEntry) {
			b.send(Message{Type: "entry", Speaker: e.Speaker, Text: e.Text})
		},
		OnTranscript:   func(text string) { b.send(Message{Type: "transcript", Text: text}) },
		OnCaptureIssue: func(issue bool) { b.send(Message{Type: "capture_issue", Value: flag(issue)}) },
		OnRedirect:     func(url string) { b.send(Message{Type: "redirect", URL: url}) },
	}
}

func (b *bridge) currentPeer() *rtc.Peer {
	b.peerMu.Lock()
	defer b.peerMu.Unlock()
	return b.peer
}

// Play implements agent.Player on the current peer connection.
func (b *bridge) Play(ctx context.Context, pcm []byte) error {
	p := b.currentPeer()
	if p == nil {
		return errNoPeer
	}
	return p.Player().Play(ctx, pcm)
}

func (b *bridge) Stop() {
	if p := b.currentPeer(); p != nil {
		p.Player().Stop()
	}
}

// Release implements agent.MediaDevices.
func (b *bridge) Release() {
	b.peerMu.Lock()
	p := b.peer
	b.peer = nil
	b.peerMu.Unlock()
	if p != nil {
		p.Close()
	}
}

// Speak implements agent.LocalSpeaker by asking the browser to speak text
// with its own speech engine and waiting for it to report back.
func (b *bridge) Speak(ctx context.Context, text, language string) error {
	ch := make(chan error, 1)
	b.speakMu.Lock()
	select {
	case <-b.done:
		b.speakMu.Unlock()
		return errSocketClosed
	default:
	}
	b.speakSeq++
	id := b.speakSeq
	b.waiters[id] = ch
	b.speakMu.Unlock()

	b.send(Message{Type: "speak", ID: id, Text: text, Language: language})
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		b.speakMu.Lock()
		delete(b.waiters, id)
		b.speakMu.Unlock()
		return ctx.Err()
	}
}

func (b *bridge) speakDone(id uint64, errText string) {
	b.speakMu.Lock()
	ch, ok := b.waiters[id]
	delete(b.waiters, id)
	b.speakMu.Unlock()
	if !ok {
		return
	}
	if errText != "" {
		ch <- errors.New(errText)
		return
	}
	ch <- nil
}

// IsModalOpen and ConfirmEnd implement agent.Proctor.
func (b *bridge) IsModalOpen() bool { return b.modalOpen.Load() }

func (b *bridge) ConfirmEnd() {
	b.modalOpen.Store(false)
	b.send(Message{Type: "proctor_confirm"})
}

func (b *bridge) handleOffer(sdp string) {
	b.Release()
	p, err := rtc.NewPeer(b.ice, b.sess.FeedPCM16KLE, b.log)
	if err != nil {
		b.sendError(err)
		return
	}
	p.OnICECandidate(func(c webrtc.ICECandidateInit, done bool) {
		if done {
			b.send(Message{Type: "ice-complete"})
			return
		}
		b.send(Message{Type: "candidate", Candidate: c.Candidate, SDPMid: c.SDPMid, SDPMLineIndex: c.SDPMLineIndex})
	})
	answer, err := p.Answer(sdp)
	if err != nil {
		p.Close()
		b.sendError(err)
		return
	}
	b.peerMu.Lock()
	b.peer = p
	b.peerMu.Unlock()
	b.send(Message{Type: "answer", SDP: answer})
}

func (b *bridge) sendError(err error) {
	b.send(Message{Type: "error", Error: err.Error()})
}

// dispatch applies one client frame. It reports false when the client said
// goodbye.
func (b *bridge) dispatch(ctx context.Context, m Message) bool {
	s := b.sess
	switch m.Type {
	case "mount":
		nav := agent.NavigationNavigate
		if m.Navigation == string(agent.NavigationReload) {
			nav = agent.NavigationReload
		}
		go func() {
			if err := s.Start(ctx, nav); err != nil && !errors.Is(err, agent.ErrReloaded) {
				b.sendError(err)
			}
		}()
	case "offer":
		b.handleOffer(m.SDP)
	case "candidate":
		if p := b.currentPeer(); p != nil {
			if err := p.AddCandidate(webrtc.ICECandidateInit{Candidate: m.Candidate, SDPMid: m.SDPMid, SDPMLineIndex: m.SDPMLineIndex}); err != nil {
				b.log.Debug("live: add candidate", zap.Error(err))
			}
		}
	case "submit":
		if err := s.Submit(m.Text); err != nil {
			b.sendError(err)
		}
	case "edit":
		s.EditTranscript(m.Text)
	case "pause":
		if err := s.Pause(ctx); err != nil {
			b.sendError(err)
		}
	case "resume":
		if err := s.Resume(ctx); err != nil {
			b.sendError(err)
		}
	case "mute":
		s.SetMuted(m.flag())
	case "speaker_mute":
		s.SetSpeakerMuted(m.flag())
	case "voice_mode":
		s.SetVoiceMode(m.flag())
	case "visibility":
		s.Guard().VisibilityChanged(m.flag())
	case "blur":
		s.Guard().WindowBlurred()
	case "fullscreen":
		s.Guard().FullscreenChanged(m.flag())
	case "proctor":
		s.Guard().ProctorViolation(m.Reason)
	case "proctor_modal":
		b.modalOpen.Store(m.flag())
	case "hotkey":
		s.Guard().Hotkey(m.Combo)
	case "unload":
		s.Guard().PageUnload()
	case "state":
		st := s.State()
		b.send(Message{Type: "state", State: &st})
	case "speak_done":
		b.speakDone(m.ID, m.Error)
	case "bye":
		return false
	default:
		b.log.Debug("live: unknown message", zap.String("type", m.Type))
	}
	return true
}

package live

import "github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/agent"

// Message is the JSON frame exchanged over the session socket in both
// directions.
//
// Client to server: mount, offer, candidate, submit, edit, pause, resume,
// mute, speaker_mute, voice_mode, visibility, blur, fullscreen, proctor,
// proctor_modal, hotkey, unload, state, speak_done, bye.
//
// Server to client: answer, candidate, ice-complete, phase, entry,
// transcript, capture_issue, speak, proctor_confirm, redirect, state, error.
type Message struct {
	Type string `json:"type"`

	// WebRTC signaling
	SDP           string  `json:"sdp,omitempty"`
	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`

	Navigation string              `json:"navigation,omitempty"`
	Text       string              `json:"text,omitempty"`
	Value      *bool               `json:"value,omitempty"`
	Reason     string              `json:"reason,omitempty"`
	Combo      string              `json:"combo,omitempty"`
	ID         uint64              `json:"id,omitempty"`
	Language   string              `json:"language,omitempty"`
	Phase      string              `json:"phase,omitempty"`
	Speaker    agent.Speaker       `json:"speaker,omitempty"`
	URL        string              `json:"url,omitempty"`
	State      *agent.SessionState `json:"state,omitempty"`
	Error      string              `json:"error,omitempty"`
}

func flag(v bool) *bool { return &v }

func (m Message) flag() bool { return m.Value != nil && *m.Value }

package agent

import (
	"strings"
	"time"
	"unicode"
)

// DefaultManualWindow is how long typed input keeps priority over speech.
const DefaultManualWindow = time.Second

type inputSource int

const (
	sourceNone inputSource = iota
	sourceSpeech
	sourceManual
)

// Buffer is the working answer for the current question. Speech deltas and
// manual edits flow through it so the two sources never clobber each other.
// Buffer is not safe for concurrent use; the session lock guards it.
type Buffer struct {
	window time.Duration
	now    func() time.Time

	text       string
	pending    string
	lastManual time.Time
	lastSource inputSource
	spoke      bool
	typed      bool
}

func NewBuffer(window time.Duration) *Buffer {
	return &Buffer{window: window, now: time.Now}
}

// ApplySpeech appends a recognized-speech delta. Inside the manual-priority
// window the delta is held back and appended once the window has passed.
// It reports whether the visible text changed.
func (b *Buffer) ApplySpeech(delta string) bool {
	if delta == "" {
		return false
	}
	if b.inManualWindow() {
		b.pending += delta
		return false
	}
	b.appendSpeech(b.pending + delta)
	b.pending = ""
	return true
}

// ApplyManual replaces the text with the candidate's edited value.
func (b *Buffer) ApplyManual(text string) {
	b.text = text
	b.lastManual = b.now()
	b.lastSource = sourceManual
	if strings.TrimSpace(text) != "" {
		b.typed = true
	}
}

// Flush appends held-back speech regardless of the manual window.
func (b *Buffer) Flush() bool {
	if b.pending == "" {
		return false
	}
	b.appendSpeech(b.pending)
	b.pending = ""
	return true
}

func (b *Buffer) appendSpeech(delta string) {
	if b.lastSource != sourceSpeech && b.text != "" && !endsWithSpace(b.text) && !startsWithSpace(delta) {
		b.text += " "
	}
	b.text += delta
	b.lastSource = sourceSpeech
	if strings.TrimSpace(delta) != "" {
		b.spoke = true
	}
}

func (b *Buffer) inManualWindow() bool {
	return !b.lastManual.IsZero() && b.now().Sub(b.lastManual) < b.window
}

func (b *Buffer) Text() string { return b.text }

// ResponseType reports which sources contributed to the current text.
func (b *Buffer) ResponseType() ResponseType {
	switch {
	case b.spoke && b.typed:
		return ResponseMixed
	case b.typed:
		return ResponseTyped
	default:
		return ResponseSpoken
	}
}

// Reset clears the buffer for a new turn.
func (b *Buffer) Reset() {
	b.Restore("")
}

// Restore sets the text verbatim, dropping pending speech and source history.
func (b *Buffer) Restore(text string) {
	b.text = text
	b.pending = ""
	b.lastManual = time.Time{}
	b.lastSource = sourceNone
	b.spoke = false
	b.typed = false
}

func endsWithSpace(s string) bool {
	if s == "" {
		return false
	}
	r := []rune(s)
	return unicode.IsSpace(r[len(r)-1])
}

func startsWithSpace(s string) bool {
	for _, r := range s {
		return unicode.IsSpace(r)
	}
	return false
}

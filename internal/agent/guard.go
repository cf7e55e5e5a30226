package agent

import (
	"strings"

	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/metrics"
)

// EmergencyHotkey ends the session and completes it regardless of state.
const EmergencyHotkey = "ctrl+shift+e"

// GuardPolicy says which environment changes end the session.
type GuardPolicy struct {
	RequireFullscreen bool
	TerminateOnHidden bool
}

type terminator interface {
	terminate(reason string, kind FinalizeKind) bool
}

// Guard turns environment and proctoring signals into session termination.
// Every method reports whether the signal ended the session; signals after
// the first termination are no-ops.
type Guard struct {
	target terminator
	policy GuardPolicy
}

func NewGuard(target terminator, policy GuardPolicy) *Guard {
	return &Guard{target: target, policy: policy}
}

func (g *Guard) fire(reason string, kind FinalizeKind) bool {
	ended := g.target.terminate(reason, kind)
	if ended {
		metrics.GuardTriggers.WithLabelValues(reason).Inc()
	}
	return ended
}

func (g *Guard) FullscreenChanged(fullscreen bool) bool {
	if fullscreen || !g.policy.RequireFullscreen {
		return false
	}
	return g.fire("fullscreen_exited", NotFinalized)
}

func (g *Guard) VisibilityChanged(hidden bool) bool {
	if !hidden || !g.policy.TerminateOnHidden {
		return false
	}
	return g.fire("tab_hidden", NotFinalized)
}

func (g *Guard) WindowBlurred() bool {
	if !g.policy.TerminateOnHidden {
		return false
	}
	return g.fire("window_blurred", NotFinalized)
}

// ProctorViolation may be signalled repeatedly; only the first one counts.
func (g *Guard) ProctorViolation(reason string) bool {
	if reason == "" {
		reason = "unspecified"
	}
	return g.fire("proctor_violation:"+reason, NotFinalized)
}

func (g *Guard) PageUnload() bool {
	return g.fire("page_unload", NotFinalized)
}

// Hotkey handles a key combination such as "Ctrl+Shift+E".
func (g *Guard) Hotkey(combo string) bool {
	if normalizeCombo(combo) != EmergencyHotkey {
		return false
	}
	return g.fire("emergency_override", FinalizedComplete)
}

var modifierOrder = []string{"ctrl", "alt", "shift", "meta"}

// normalizeCombo lowercases a key combination and orders its modifiers.
func normalizeCombo(combo string) string {
	mods := map[string]bool{}
	key := ""
	for _, p := range strings.Split(strings.ToLower(strings.ReplaceAll(combo, " ", "")), "+") {
		switch p {
		case "control", "ctrl":
			mods["ctrl"] = true
		case "shift", "alt", "meta":
			mods[p] = true
		default:
			key = p
		}
	}
	var out []string
	for _, m := range modifierOrder {
		if mods[m] {
			out = append(out, m)
		}
	}
	return strings.Join(append(out, key), "+")
}

package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/metrics"
	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/tts"
)

// Tier records which synthesis path produced audio for an utterance.
type Tier string

const (
	TierRemote Tier = "remote"
	TierLocal  Tier = "local"
	TierNone   Tier = "none"
)

// SynthesisConfig tunes retries and the local fallback.
type SynthesisConfig struct {
	MaxAttempts  int
	BaseBackoff  time.Duration
	LocalTimeout time.Duration
}

func DefaultSynthesisConfig() SynthesisConfig {
	return SynthesisConfig{MaxAttempts: 3, BaseBackoff: 300 * time.Millisecond, LocalTimeout: 8 * time.Second}
}

// Synthesis turns prompt text into audio with a remote-then-local-then-nothing
// fallback chain. Only one utterance plays at a time.
type Synthesis struct {
	remote Synthesizer
	local  LocalSpeaker
	player Player
	cfg    SynthesisConfig
	log    *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	lastSpoken string
	spokeAny   bool
	playing    bool
	stopped    bool
	cancel     context.CancelFunc
}

func NewSynthesis(remote Synthesizer, local LocalSpeaker, player Player, cfg SynthesisConfig, log *zap.Logger) *Synthesis {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Synthesis{remote: remote, local: local, player: player, cfg: cfg, log: log, sleep: sleepCtx}
}

// Claim checks the speaking preconditions and reserves the playback slot.
// The first utterance of a session is always allowed; later ones must be
// non-empty, differ from the last spoken text and not overlap playback.
func (s *Synthesis) Claim(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(text) == "" {
		return false
	}
	if s.spokeAny && (s.playing || text == s.lastSpoken) {
		return false
	}
	s.spokeAny = true
	s.playing = true
	s.stopped = false
	s.lastSpoken = text
	return true
}

// Speak plays a claimed utterance and releases the slot when done. It never
// returns an error: failures degrade to the next tier and finally to silence.
func (s *Synthesis) Speak(ctx context.Context, text, language string) Tier {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.stopped {
		// Stopped between Claim and Speak.
		cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		s.playing = false
		s.cancel = nil
		s.mu.Unlock()
	}()

	tier := s.run(ctx, text, language)
	metrics.SynthesisOutcomes.WithLabelValues(string(tier)).Inc()
	return tier
}

func (s *Synthesis) run(ctx context.Context, text, language string) Tier {
	if s.remote != nil && s.player != nil {
		pcm, err := s.synthesizeWithRetry(ctx, tts.PrepareForSpeech(text), language)
		if err == nil {
			if err := s.player.Play(ctx, pcm); err != nil && ctx.Err() == nil {
				s.log.Warn("synthesis: playback failed", zap.Error(err))
			}
			return TierRemote
		}
		if ctx.Err() != nil {
			return TierNone
		}
		s.log.Warn("synthesis: remote tier failed, trying local", zap.Error(err))
	}

	if s.local != nil {
		lctx, lcancel := context.WithTimeout(ctx, s.cfg.LocalTimeout)
		err := s.local.Speak(lctx, text, language)
		lcancel()
		if err == nil {
			return TierLocal
		}
		if ctx.Err() != nil {
			return TierNone
		}
		s.log.Warn("synthesis: local tier failed", zap.Error(err))
	}

	s.log.Info("synthesis: continuing without audio")
	return TierNone
}

func (s *Synthesis) synthesizeWithRetry(ctx context.Context, text, language string) ([]byte, error) {
	var lastErr error
	backoff := s.cfg.BaseBackoff
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		pcm, err := s.remote.Synthesize(ctx, text, language)
		if err == nil && len(pcm) > 0 {
			return pcm, nil
		}
		if err == nil {
			err = errEmptyAudio
		}
		lastErr = err
		if isPermanent(err) || attempt == s.cfg.MaxAttempts {
			break
		}
		s.log.Debug("synthesis: retrying", zap.Int("attempt", attempt), zap.Duration("backoff", backoff), zap.Error(err))
		if err := s.sleep(ctx, backoff); err != nil {
			return nil, err
		}
		backoff *= 2
	}
	return nil, lastErr
}

// Stop interrupts playback in flight.
func (s *Synthesis) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	if s.playing {
		s.stopped = true
	}
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if s.player != nil {
		s.player.Stop()
	}
}

func (s *Synthesis) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

var errEmptyAudio = errors.New("synthesis returned no audio")

func isPermanent(err error) bool {
	var p interface{ Permanent() bool }
	return errors.As(err, &p) && p.Permanent()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

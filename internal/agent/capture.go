package agent

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Capture owns the speech-recognition stream. At most one stream runs at a
// time, and whether it should run is decided by a predicate evaluated when
// Reconcile executes, never by a value captured earlier.
//
// Lock order: Capture.mu is taken before the session lock (the predicate
// reads session state). Callers must not hold the session lock while calling
// Reconcile or Stop.
type Capture struct {
	opener    StreamOpener
	log       *zap.Logger
	shouldRun func() bool
	onDelta   func(gen uint64, delta string)
	onIssue   func(bool)

	mu      sync.Mutex
	stream  SpeechStream
	applied int
	// hangups counts engine-closed streams since the last one that
	// delivered text; it drives the reopen delay.
	hangups int

	reopenMin time.Duration
	reopenMax time.Duration

	gen   atomic.Uint64
	issue atomic.Bool
}

func NewCapture(opener StreamOpener, log *zap.Logger, shouldRun func() bool, onDelta func(uint64, string), onIssue func(bool)) *Capture {
	if log == nil {
		log = zap.NewNop()
	}
	if onIssue == nil {
		onIssue = func(bool) {}
	}
	return &Capture{
		opener:    opener,
		log:       log,
		shouldRun: shouldRun,
		onDelta:   onDelta,
		onIssue:   onIssue,
		reopenMin: 250 * time.Millisecond,
		reopenMax: 15 * time.Second,
	}
}

// reopenDelayLocked doubles from reopenMin with each consecutive hang-up.
func (c *Capture) reopenDelayLocked() time.Duration {
	d := c.reopenMin
	for i := 1; i < c.hangups && d < c.reopenMax; i++ {
		d *= 2
	}
	if d > c.reopenMax {
		d = c.reopenMax
	}
	return d
}

// Reconcile starts or stops the stream so that it runs exactly when the
// predicate holds. Starting a running stream or stopping a stopped one is a no-op.
func (c *Capture) Reconcile(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	want := c.opener != nil && c.shouldRun()
	switch {
	case want && c.stream == nil:
		c.startLocked(ctx)
	case !want && c.stream != nil:
		c.stopLocked()
	}
}

// Stop force-stops the stream, e.g. before prompt audio plays.
func (c *Capture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		c.stopLocked()
	}
}

func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

// Generation identifies the current stream. Deltas carry the generation they
// were computed for so stale ones can be dropped.
func (c *Capture) Generation() uint64 { return c.gen.Load() }

// Issue reports whether the last stream attempt failed.
func (c *Capture) Issue() bool { return c.issue.Load() }

// Feed forwards 16kHz PCM to the active stream; audio is dropped when none runs.
func (c *Capture) Feed(pcm []byte) {
	c.mu.Lock()
	s := c.stream
	c.mu.Unlock()
	if s == nil {
		return
	}
	if err := s.SendPCM16KLE(pcm); err != nil {
		c.log.Debug("capture: send audio", zap.Error(err))
	}
}

func (c *Capture) startLocked(ctx context.Context) {
	s, err := c.opener.Open(ctx)
	if err != nil {
		c.log.Warn("capture: open stream", zap.Error(err))
		c.setIssue(true)
		return
	}
	gen := c.gen.Add(1)
	c.stream = s
	c.applied = 0
	c.setIssue(false)
	go c.consume(s, gen)
}

func (c *Capture) stopLocked() {
	s := c.stream
	c.stream = nil
	c.gen.Add(1)
	if err := s.Close(); err != nil {
		c.log.Debug("capture: close stream", zap.Error(err))
	}
}

func (c *Capture) consume(s SpeechStream, gen uint64) {
	for u := range s.Updates() {
		if u.Err != nil {
			c.log.Warn("capture: stream error", zap.Error(u.Err))
			if c.gen.Load() == gen {
				c.setIssue(true)
			}
			continue
		}
		if delta, ok := c.advance(gen, u); ok {
			c.onDelta(gen, delta)
		}
	}
	c.mu.Lock()
	ended := c.stream == s
	var delay time.Duration
	if ended {
		c.stream = nil
		c.gen.Add(1)
		c.hangups++
		delay = c.reopenDelayLocked()
	}
	c.mu.Unlock()
	if !ended {
		return
	}
	// The engine closed the stream on its own while it was still wanted.
	// Reconcile re-reads the predicate after the wait, so a session that
	// stopped wanting capture in the meantime opens nothing.
	c.log.Info("capture: stream ended by engine, reopening", zap.Duration("after", delay))
	time.Sleep(delay)
	c.Reconcile(context.Background())
}

// advance converts a cumulative update into the suffix not yet applied.
// A combined text no longer than what was already applied is a no-op, so the
// buffer only ever grows.
func (c *Capture) advance(gen uint64, u TranscriptUpdate) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen.Load() != gen {
		return "", false
	}
	c.hangups = 0
	combined := []rune(joinTranscript(u.Final, u.Partial))
	if len(combined) <= c.applied {
		return "", false
	}
	delta := string(combined[c.applied:])
	c.applied = len(combined)
	return delta, true
}

func (c *Capture) setIssue(v bool) {
	if c.issue.Swap(v) != v {
		c.onIssue(v)
	}
}

func joinTranscript(final, partial string) string {
	switch {
	case final == "":
		return partial
	case partial == "":
		return final
	case strings.HasSuffix(final, " ") || strings.HasPrefix(partial, " "):
		return final + partial
	default:
		return final + " " + partial
	}
}

package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeStream struct {
	updates chan TranscriptUpdate
	once    sync.Once
	closed  atomic.Bool

	mu  sync.Mutex
	pcm [][]byte
}

func newFakeStream() *fakeStream {
	return &fakeStream{updates: make(chan TranscriptUpdate, 16)}
}

func (f *fakeStream) Updates() <-chan TranscriptUpdate { return f.updates }

func (f *fakeStream) SendPCM16KLE(pcm []byte) error {
	if f.closed.Load() {
		return errors.New("closed")
	}
	f.mu.Lock()
	f.pcm = append(f.pcm, pcm)
	f.mu.Unlock()
	return nil
}

func (f *fakeStream) Close() error {
	f.closed.Store(true)
	f.end()
	return nil
}

// end closes the update channel as if the engine hung up.
func (f *fakeStream) end() { f.once.Do(func() { close(f.updates) }) }

func (f *fakeStream) push(u TranscriptUpdate) { f.updates <- u }

func (f *fakeStream) isClosed() bool { return f.closed.Load() }

type fakeOpener struct {
	mu      sync.Mutex
	streams []*fakeStream
	fail    error
	// hangUp makes every stream end as soon as it opens.
	hangUp bool
}

func (f *fakeOpener) Open(context.Context) (SpeechStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	s := newFakeStream()
	if f.hangUp {
		s.end()
	}
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *fakeOpener) opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

func (f *fakeOpener) last() *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[len(f.streams)-1]
}

func (f *fakeOpener) setFail(err error) {
	f.mu.Lock()
	f.fail = err
	f.mu.Unlock()
}

func TestCaptureRunsAtMostOneStream(t *testing.T) {
	opener := &fakeOpener{}
	var want atomic.Bool
	want.Store(true)
	c := NewCapture(opener, nil, want.Load, func(uint64, string) {}, nil)

	c.Reconcile(context.Background())
	c.Reconcile(context.Background())
	if n := opener.opened(); n != 1 {
		t.Fatalf("opened %d streams", n)
	}
	if !c.Active() {
		t.Fatalf("capture not active")
	}

	want.Store(false)
	c.Reconcile(context.Background())
	if c.Active() || !opener.last().isClosed() {
		t.Fatalf("stream not stopped")
	}
	c.Reconcile(context.Background())
	c.Stop()
	if n := opener.opened(); n != 1 {
		t.Fatalf("stopping opened a stream")
	}
}

func TestCaptureDeltasOnlyGrow(t *testing.T) {
	opener := &fakeOpener{}
	deltas := make(chan string, 8)
	c := NewCapture(opener, nil, func() bool { return true }, func(_ uint64, d string) { deltas <- d }, nil)
	c.Reconcile(context.Background())
	s := opener.last()

	s.push(TranscriptUpdate{Partial: "hel"})
	s.push(TranscriptUpdate{Partial: "hello"})
	s.push(TranscriptUpdate{Partial: "he"})
	s.push(TranscriptUpdate{Final: "hello", Partial: "world"})

	want := []string{"hel", "lo", " world"}
	for i, w := range want {
		if got := <-deltas; got != w {
			t.Fatalf("delta %d = %q, want %q", i, got, w)
		}
	}
	c.Stop()
	select {
	case d := <-deltas:
		t.Fatalf("unexpected delta %q", d)
	default:
	}
}

func TestCaptureDropsStaleGeneration(t *testing.T) {
	opener := &fakeOpener{}
	var want atomic.Bool
	want.Store(true)
	c := NewCapture(opener, nil, want.Load, func(uint64, string) {}, nil)
	c.Reconcile(context.Background())
	old := c.Generation()

	want.Store(false)
	c.Reconcile(context.Background())
	if _, ok := c.advance(old, TranscriptUpdate{Final: "late words"}); ok {
		t.Fatalf("stale update applied")
	}
	if c.Generation() == old {
		t.Fatalf("generation not bumped on stop")
	}
}

func TestCaptureReopensWhenEngineHangsUp(t *testing.T) {
	opener := &fakeOpener{}
	c := NewCapture(opener, nil, func() bool { return true }, func(uint64, string) {}, nil)
	c.Reconcile(context.Background())
	opener.last().end()

	waitFor(t, "reopen", func() bool { return opener.opened() == 2 })
	if !c.Active() {
		t.Fatalf("capture not active after reopen")
	}
	c.Stop()
}

func TestCaptureBacksOffWhenEngineKeepsHangingUp(t *testing.T) {
	opener := &fakeOpener{hangUp: true}
	var want atomic.Bool
	want.Store(true)
	c := NewCapture(opener, nil, want.Load, func(uint64, string) {}, nil)
	c.reopenMin = 10 * time.Millisecond
	c.reopenMax = time.Second
	c.Reconcile(context.Background())

	// 10+20+40+80ms: about five opens fit in 200ms, a tight loop would
	// open thousands.
	time.Sleep(200 * time.Millisecond)
	want.Store(false)
	if n := opener.opened(); n < 2 || n > 8 {
		t.Fatalf("opened %d streams in 200ms", n)
	}
}

func TestCaptureReopenDelayResetsAfterText(t *testing.T) {
	c := NewCapture(&fakeOpener{}, nil, func() bool { return true }, func(uint64, string) {}, nil)
	c.reopenMin = 100 * time.Millisecond
	c.reopenMax = 500 * time.Millisecond

	delays := map[int]time.Duration{1: 100 * time.Millisecond, 2: 200 * time.Millisecond, 3: 400 * time.Millisecond, 4: 500 * time.Millisecond, 9: 500 * time.Millisecond}
	for n, d := range delays {
		c.hangups = n
		if got := c.reopenDelayLocked(); got != d {
			t.Fatalf("hangups=%d: delay %v, want %v", n, got, d)
		}
	}

	c.Reconcile(context.Background())
	c.hangups = 5
	if _, ok := c.advance(c.Generation(), TranscriptUpdate{Final: "hello"}); !ok {
		t.Fatalf("update not applied")
	}
	if c.hangups != 0 {
		t.Fatalf("hangups not reset by delivered text: %d", c.hangups)
	}
	c.Stop()
}

func TestCaptureIssueReporting(t *testing.T) {
	opener := &fakeOpener{}
	opener.setFail(errors.New("no microphone"))
	var issues []bool
	var mu sync.Mutex
	c := NewCapture(opener, nil, func() bool { return true }, func(uint64, string) {}, func(v bool) {
		mu.Lock()
		issues = append(issues, v)
		mu.Unlock()
	})

	c.Reconcile(context.Background())
	if !c.Issue() || c.Active() {
		t.Fatalf("failed open not reported")
	}
	c.Reconcile(context.Background())

	opener.setFail(nil)
	c.Reconcile(context.Background())
	if c.Issue() || !c.Active() {
		t.Fatalf("issue not cleared")
	}

	opener.last().push(TranscriptUpdate{Err: errors.New("socket reset")})
	waitFor(t, "stream error", c.Issue)
	c.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(issues) != 3 || !issues[0] || issues[1] || !issues[2] {
		t.Fatalf("issue transitions %v", issues)
	}
}

func TestCaptureFeedForwardsAudio(t *testing.T) {
	opener := &fakeOpener{}
	c := NewCapture(opener, nil, func() bool { return true }, func(uint64, string) {}, nil)
	c.Feed([]byte{1, 2})
	c.Reconcile(context.Background())
	c.Feed([]byte{3, 4})
	s := opener.last()
	s.mu.Lock()
	n := len(s.pcm)
	s.mu.Unlock()
	if n != 1 {
		t.Fatalf("forwarded %d chunks", n)
	}
	c.Stop()
}

func TestJoinTranscript(t *testing.T) {
	cases := []struct{ final, partial, want string }{
		{"", "", ""},
		{"a", "", "a"},
		{"", "b", "b"},
		{"a", "b", "a b"},
		{"a ", "b", "a b"},
		{"a", " b", "a b"},
	}
	for _, tc := range cases {
		if got := joinTranscript(tc.final, tc.partial); got != tc.want {
			t.Errorf("joinTranscript(%q, %q) = %q, want %q", tc.final, tc.partial, got, tc.want)
		}
	}
}

package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeStore struct {
	mu        sync.Mutex
	starts    int
	completes []Results
	abandons  []Results
	redirect  string
	startErr  error
}

func (f *fakeStore) StartSession(ctx context.Context, token string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return time.Unix(1700000000, 0), f.startErr
}

func (f *fakeStore) CompleteSession(ctx context.Context, token string, results Results) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes = append(f.completes, results)
	return f.redirect, nil
}

func (f *fakeStore) AbandonSession(ctx context.Context, token string, results Results) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abandons = append(f.abandons, results)
	return nil
}

func (f *fakeStore) counts() (starts, completes, abandons int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, len(f.completes), len(f.abandons)
}

type memSnapshots struct {
	mu    sync.Mutex
	snaps map[string]PauseSnapshot
}

func newMemSnapshots() *memSnapshots { return &memSnapshots{snaps: map[string]PauseSnapshot{}} }

func (m *memSnapshots) SaveSnapshot(_ context.Context, token string, snap PauseSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[token] = snap
	return nil
}

func (m *memSnapshots) LoadSnapshot(_ context.Context, token string) (*PauseSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[token]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *memSnapshots) DeleteSnapshot(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, token)
	return nil
}

type memMarkers struct {
	mu     sync.Mutex
	active map[string]bool
}

func newMemMarkers() *memMarkers { return &memMarkers{active: map[string]bool{}} }

func (m *memMarkers) MarkActive(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[token] = true
	return nil
}

func (m *memMarkers) IsActive(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[token], nil
}

func (m *memMarkers) ClearActive(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, token)
	return nil
}

// scriptedQuestions answers every request with fn. A non-nil gate blocks each
// call until a value is received.
type scriptedQuestions struct {
	mu   sync.Mutex
	reqs []QuestionRequest
	gate chan struct{}
	fn   func(n int, req QuestionRequest) (QuestionResult, error)
}

func (q *scriptedQuestions) NextQuestion(ctx context.Context, req QuestionRequest) (QuestionResult, error) {
	q.mu.Lock()
	q.reqs = append(q.reqs, req)
	n := len(q.reqs)
	q.mu.Unlock()
	if q.gate != nil {
		select {
		case <-q.gate:
		case <-ctx.Done():
			return QuestionResult{}, ctx.Err()
		}
	}
	return q.fn(n, req)
}

func (q *scriptedQuestions) requests() []QuestionRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]QuestionRequest(nil), q.reqs...)
}

func realQuestions(over bool) *scriptedQuestions {
	return &scriptedQuestions{fn: func(n int, req QuestionRequest) (QuestionResult, error) {
		return QuestionResult{
			NextQuestion:    fmt.Sprintf("Question %d: how would you design a rate limiter?", n),
			NextKind:        RealQuestion{Category: "system design"},
			IsInterviewOver: over && n > 1,
			Scoring:         ScoringBundle{Overall: 7, Technical: 6, Communication: 8, Confidence: 7},
		}, nil
	}}
}

type redirects struct {
	ch chan string
}

func newRedirects() *redirects { return &redirects{ch: make(chan string, 4)} }

func (r *redirects) hook(target string) { r.ch <- target }

func (r *redirects) wait(t *testing.T) string {
	t.Helper()
	select {
	case target := <-r.ch:
		return target
	case <-time.After(2 * time.Second):
		t.Fatalf("no redirect")
		return ""
	}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Token = "tok"
	opts.VoiceMode = false
	opts.TickInterval = 0
	opts.RedirectGrace = 0
	opts.ManualWindow = 0
	return opts
}

func newTestSession(t *testing.T, opts Options, deps Deps) *Session {
	t.Helper()
	s := NewSession(opts, deps)
	t.Cleanup(s.Close)
	return s
}

func waitPhase(t *testing.T, s *Session, want Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State().Phase == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("phase = %v, want %v", s.State().Phase, want)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func answer(i int) string {
	return fmt.Sprintf("For part %d I would put a token bucket in front of each user and refill it on a timer.", i)
}

func TestStartIsIdempotent(t *testing.T) {
	store := &fakeStore{}
	s := newTestSession(t, testOptions(), Deps{Questions: realQuestions(false), Store: store})

	if err := s.Start(context.Background(), NavigationNavigate); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(context.Background(), NavigationNavigate); err != nil {
		t.Fatalf("second start: %v", err)
	}
	waitPhase(t, s, PhaseIdle)

	if starts, _, _ := store.counts(); starts != 1 {
		t.Fatalf("store started %d times", starts)
	}
	conv := s.Conversation()
	if len(conv) != 1 || conv[0].Speaker != SpeakerAI {
		t.Fatalf("unexpected conversation %+v", conv)
	}
}

func TestGreetingUsesProfile(t *testing.T) {
	g := Greeting(CandidateProfile{Name: "Ada Lovelace", TargetRole: "backend engineer"})
	if want := "Hello Ada, welcome to your mock interview for the backend engineer role."; g[:len(want)] != want {
		t.Fatalf("greeting %q", g)
	}
	if g := Greeting(CandidateProfile{}); g[:len("Hello, welcome")] != "Hello, welcome" {
		t.Fatalf("anonymous greeting %q", g)
	}
}

func TestCompletesAfterMinimumQuestions(t *testing.T) {
	store := &fakeStore{}
	rd := newRedirects()
	questions := realQuestions(true)
	s := newTestSession(t, testOptions(), Deps{
		Questions: questions,
		Store:     store,
		Hooks:     Hooks{OnRedirect: rd.hook},
	})
	if err := s.Start(context.Background(), NavigationNavigate); err != nil {
		t.Fatalf("start: %v", err)
	}

	// One scaffolding answer to the greeting, then eight real answers. The
	// service signals the end from the second real answer on.
	for i := 0; i <= 8; i++ {
		waitPhase(t, s, PhaseIdle)
		if got := s.State().QuestionsAnswered; i > 0 && got != i-1 {
			t.Fatalf("after %d submits answered = %d", i, got)
		}
		if err := s.Submit(answer(i)); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	if target := rd.wait(t); target != RedirectResults {
		t.Fatalf("redirect %q", target)
	}
	waitPhase(t, s, PhaseFinished)

	_, completes, abandons := store.counts()
	if completes != 1 || abandons != 0 {
		t.Fatalf("completes=%d abandons=%d", completes, abandons)
	}
	res := store.completes[0]
	if len(res.Turns) != 9 {
		t.Fatalf("turns = %d", len(res.Turns))
	}
	if res.Turns[0].IsRealQuestion {
		t.Fatalf("greeting answer scored")
	}
	if res.Summary.QuestionsAnswered != 8 || res.Summary.ScaffoldingTurns != 1 {
		t.Fatalf("summary %+v", res.Summary)
	}
	if res.Reason != "completed" {
		t.Fatalf("reason %q", res.Reason)
	}
	if err := s.Submit(answer(99)); !errors.Is(err, ErrNotAccepting) {
		t.Fatalf("submit after finish: %v", err)
	}
}

func TestQuestionLimitEndsInterview(t *testing.T) {
	store := &fakeStore{}
	rd := newRedirects()
	opts := testOptions()
	opts.QuestionLimit = 2
	s := newTestSession(t, opts, Deps{Questions: realQuestions(false), Store: store, Hooks: Hooks{OnRedirect: rd.hook}})
	if err := s.Start(context.Background(), NavigationNavigate); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 3; i++ {
		waitPhase(t, s, PhaseIdle)
		if err := s.Submit(answer(i)); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	rd.wait(t)
	if _, completes, _ := store.counts(); completes != 1 {
		t.Fatalf("completes = %d", completes)
	}
}

func TestEmergencyHotkeyMidAnswer(t *testing.T) {
	store := &fakeStore{}
	rd := newRedirects()
	s := newTestSession(t, testOptions(), Deps{Questions: realQuestions(false), Store: store, Hooks: Hooks{OnRedirect: rd.hook}})
	if err := s.Start(context.Background(), NavigationNavigate); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitPhase(t, s, PhaseIdle)
	if err := s.Submit(answer(0)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitPhase(t, s, PhaseIdle)
	s.EditTranscript("I would start by")

	if !s.Guard().Hotkey("Ctrl+Shift+E") {
		t.Fatalf("hotkey did not end the session")
	}
	if s.Guard().Hotkey("ctrl+shift+e") {
		t.Fatalf("second hotkey ended the session again")
	}
	if target := rd.wait(t); target != RedirectResults {
		t.Fatalf("redirect %q", target)
	}
	s.Close()

	_, completes, abandons := store.counts()
	if completes != 1 || abandons != 0 {
		t.Fatalf("completes=%d abandons=%d", completes, abandons)
	}
	if r := store.completes[0].Reason; r != "emergency_override" {
		t.Fatalf("reason %q", r)
	}
	if err := s.Submit("late answer"); !errors.Is(err, ErrNotAccepting) {
		t.Fatalf("submit after termination: %v", err)
	}
}

func TestTerminationWhileThinkingDropsLateResult(t *testing.T) {
	store := &fakeStore{}
	questions := realQuestions(false)
	questions.gate = make(chan struct{})
	s := newTestSession(t, testOptions(), Deps{Questions: questions, Store: store})
	if err := s.Start(context.Background(), NavigationNavigate); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitPhase(t, s, PhaseIdle)
	if err := s.Submit(answer(0)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitPhase(t, s, PhaseThinking)

	if !s.Guard().PageUnload() {
		t.Fatalf("unload did not end the session")
	}
	close(questions.gate)
	s.Close()

	if s.State().Phase != PhaseFinished {
		t.Fatalf("phase %v", s.State().Phase)
	}
	if len(s.Turns()) != 0 {
		t.Fatalf("late result recorded a turn")
	}
	_, completes, abandons := store.counts()
	if completes != 0 || abandons != 1 {
		t.Fatalf("completes=%d abandons=%d", completes, abandons)
	}
}

func TestConcurrentTerminationFinalizesOnce(t *testing.T) {
	store := &fakeStore{}
	s := newTestSession(t, testOptions(), Deps{Questions: realQuestions(false), Store: store})
	if err := s.Start(context.Background(), NavigationNavigate); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitPhase(t, s, PhaseIdle)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); s.Guard().Hotkey("ctrl+shift+e") }()
		go func() { defer wg.Done(); s.Guard().PageUnload() }()
		go func() { defer wg.Done(); s.Guard().ProctorViolation("face_missing") }()
	}
	wg.Wait()
	s.Close()

	_, completes, abandons := store.counts()
	if completes+abandons != 1 {
		t.Fatalf("completes=%d abandons=%d", completes, abandons)
	}
}

func TestInvitedUnloadAbandons(t *testing.T) {
	store := &fakeStore{}
	rd := newRedirects()
	opts := testOptions()
	opts.Invited = true
	s := newTestSession(t, opts, Deps{Questions: realQuestions(false), Store: store, Hooks: Hooks{OnRedirect: rd.hook}})
	if err := s.Start(context.Background(), NavigationNavigate); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitPhase(t, s, PhaseIdle)
	if err := s.Submit(answer(0)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitPhase(t, s, PhaseIdle)

	if !s.Guard().VisibilityChanged(true) {
		t.Fatalf("hidden tab should end an invited session")
	}
	if target := rd.wait(t); target != RedirectAcknowledgment {
		t.Fatalf("redirect %q", target)
	}
	s.Close()
	_, completes, abandons := store.counts()
	if completes != 0 || abandons != 1 {
		t.Fatalf("completes=%d abandons=%d", completes, abandons)
	}
	if n := len(store.abandons[0].Turns); n != 1 {
		t.Fatalf("abandon carried %d turns", n)
	}
}

func TestPauseResumeRoundTrip(t *testing.T) {
	store := &fakeStore{}
	snaps := newMemSnapshots()
	markers := newMemMarkers()
	s := newTestSession(t, testOptions(), Deps{Questions: realQuestions(false), Store: store, Snapshots: snaps, Markers: markers})
	ctx := context.Background()
	if err := s.Start(ctx, NavigationNavigate); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitPhase(t, s, PhaseIdle)
	if err := s.Submit(answer(0)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitPhase(t, s, PhaseIdle)
	s.EditTranscript("half an answer")
	before := s.State()
	convBefore := s.Conversation()

	if err := s.Pause(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := s.Pause(ctx); !errors.Is(err, ErrCannotPause) {
		t.Fatalf("second pause: %v", err)
	}
	if s.State().Phase != PhasePaused {
		t.Fatalf("phase %v", s.State().Phase)
	}
	if err := s.Submit("anything at all here"); !errors.Is(err, ErrNotAccepting) {
		t.Fatalf("submit while paused: %v", err)
	}
	if snap, _ := snaps.LoadSnapshot(ctx, "tok"); snap == nil || snap.Transcript != "half an answer" {
		t.Fatalf("snapshot not persisted: %+v", snap)
	}
	if active, _ := markers.IsActive(ctx, "tok"); active {
		t.Fatalf("active marker kept while paused")
	}

	if err := s.Resume(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := s.Resume(ctx); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("second resume: %v", err)
	}
	after := s.State()
	if after.Phase != PhaseIdle || after.Transcript != before.Transcript || after.CurrentQuestion != before.CurrentQuestion {
		t.Fatalf("state after resume %+v, before %+v", after, before)
	}
	if len(s.Conversation()) != len(convBefore) || len(s.Turns()) != 1 {
		t.Fatalf("history changed across pause")
	}
	if snap, _ := snaps.LoadSnapshot(ctx, "tok"); snap != nil {
		t.Fatalf("snapshot kept after resume")
	}
	if active, _ := markers.IsActive(ctx, "tok"); !active {
		t.Fatalf("resume did not mark the session active")
	}
}

func TestMountRestoresPausedSnapshot(t *testing.T) {
	store := &fakeStore{}
	snaps := newMemSnapshots()
	_ = snaps.SaveSnapshot(context.Background(), "tok", PauseSnapshot{
		Question:     "What is a goroutine?",
		QuestionReal: true,
		Transcript:   "a lightweight thread managed by the runtime",
		Conversation: []ConversationEntry{{Speaker: SpeakerAI, Text: "What is a goroutine?"}},
		Turns:        []TurnRecord{{Question: "intro", IsRealQuestion: false}, {Question: "q1", IsRealQuestion: true}},
	})
	questions := realQuestions(false)
	s := newTestSession(t, testOptions(), Deps{Questions: questions, Store: store, Snapshots: snaps})
	if err := s.Start(context.Background(), NavigationReload); err != nil {
		t.Fatalf("start: %v", err)
	}
	st := s.State()
	if st.Phase != PhasePaused || st.Transcript != "a lightweight thread managed by the runtime" || st.QuestionsAnswered != 1 {
		t.Fatalf("restored state %+v", st)
	}
	if starts, _, _ := store.counts(); starts != 0 {
		t.Fatalf("restored session started again")
	}
	if err := s.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := s.Submit(""); err != nil {
		t.Fatalf("submit restored answer: %v", err)
	}
	waitPhase(t, s, PhaseIdle)
	reqs := questions.requests()
	if len(reqs) != 1 || reqs[0].Answer != "a lightweight thread managed by the runtime" || reqs[0].QuestionsAnswered != 1 {
		t.Fatalf("requests %+v", reqs)
	}
}

func TestReloadOfLiveSessionRestarts(t *testing.T) {
	store := &fakeStore{}
	markers := newMemMarkers()
	_ = markers.MarkActive(context.Background(), "tok")
	rd := newRedirects()
	s := newTestSession(t, testOptions(), Deps{Questions: realQuestions(false), Store: store, Markers: markers, Hooks: Hooks{OnRedirect: rd.hook}})

	if err := s.Start(context.Background(), NavigationReload); !errors.Is(err, ErrReloaded) {
		t.Fatalf("start: %v", err)
	}
	if target := rd.wait(t); target != RedirectRestart {
		t.Fatalf("redirect %q", target)
	}
	s.Close()
	_, _, abandons := store.counts()
	if abandons != 1 || store.abandons[0].Reason != "reload" {
		t.Fatalf("abandons %+v", store.abandons)
	}
}

func TestRejectedAnswerIsNotRecorded(t *testing.T) {
	store := &fakeStore{}
	questions := realQuestions(false)
	s := newTestSession(t, testOptions(), Deps{Questions: questions, Store: store})
	if err := s.Start(context.Background(), NavigationNavigate); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitPhase(t, s, PhaseIdle)
	if err := s.Submit("aaaaaaa"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitPhase(t, s, PhaseIdle)

	if len(s.Turns()) != 0 {
		t.Fatalf("rejected answer recorded")
	}
	reqs := questions.requests()
	if len(reqs) != 1 || !reqs[0].Skipped || reqs[0].Answer != "" {
		t.Fatalf("request %+v", reqs)
	}
	for _, e := range s.Conversation() {
		if e.Speaker == SpeakerCandidate {
			t.Fatalf("rejected answer logged as candidate entry")
		}
	}
}

func TestEmptySubmitIsRejected(t *testing.T) {
	s := newTestSession(t, testOptions(), Deps{Questions: realQuestions(false), Store: &fakeStore{}})
	if err := s.Submit("hello there"); !errors.Is(err, ErrNotAccepting) {
		t.Fatalf("submit before start: %v", err)
	}
	if err := s.Start(context.Background(), NavigationNavigate); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitPhase(t, s, PhaseIdle)
	if err := s.Submit("   "); !errors.Is(err, ErrEmptyAnswer) {
		t.Fatalf("blank submit: %v", err)
	}
}

func TestScoringFailureKeepsQuestion(t *testing.T) {
	questions := &scriptedQuestions{fn: func(int, QuestionRequest) (QuestionResult, error) {
		return QuestionResult{}, errors.New("upstream 503")
	}}
	s := newTestSession(t, testOptions(), Deps{Questions: questions, Store: &fakeStore{}})
	if err := s.Start(context.Background(), NavigationNavigate); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitPhase(t, s, PhaseIdle)
	question := s.State().CurrentQuestion
	if err := s.Submit(answer(0)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, "apology", func() bool {
		conv := s.Conversation()
		return conv[len(conv)-1].Text == scoringApology
	})
	waitPhase(t, s, PhaseIdle)
	if s.State().CurrentQuestion != question {
		t.Fatalf("question changed after failure")
	}
	if len(s.Turns()) != 0 {
		t.Fatalf("failed scoring recorded a turn")
	}
	if got := s.State().Transcript; got != answer(0) {
		t.Fatalf("answer lost after failed scoring: %q", got)
	}
	if err := s.Submit(answer(1)); err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	waitPhase(t, s, PhaseIdle)
	if reqs := questions.requests(); reqs[1].Attempts != 1 {
		t.Fatalf("attempts not counted: %+v", reqs[1])
	}
}

func TestSpeechFlowsIntoWorkingAnswer(t *testing.T) {
	opener := &fakeOpener{}
	var mu sync.Mutex
	var shown []string
	opts := testOptions()
	opts.VoiceMode = true
	s := newTestSession(t, opts, Deps{
		Questions: realQuestions(false),
		Store:     &fakeStore{},
		Speech:    opener,
		Hooks: Hooks{OnTranscript: func(text string) {
			mu.Lock()
			shown = append(shown, text)
			mu.Unlock()
		}},
	})
	if err := s.Start(context.Background(), NavigationNavigate); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitPhase(t, s, PhaseListening)
	waitFor(t, "stream", func() bool { return opener.opened() == 1 })

	stream := opener.last()
	stream.push(TranscriptUpdate{Partial: "I think"})
	waitFor(t, "partial", func() bool { return s.State().Transcript == "I think" })
	stream.push(TranscriptUpdate{Partial: "I"})
	stream.push(TranscriptUpdate{Final: "I think we"})
	waitFor(t, "final", func() bool { return s.State().Transcript == "I think we" })

	s.SetMuted(false)
	s.SetMuted(false)
	if n := opener.opened(); n != 1 {
		t.Fatalf("opened %d streams", n)
	}
	s.SetMuted(true)
	if !stream.isClosed() {
		t.Fatalf("mute left the stream running")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(shown) != 2 {
		t.Fatalf("transcript updates %q", shown)
	}
}

func TestSpeakerMuteSkipsPromptAudio(t *testing.T) {
	local := &fakeLocal{}
	s := newTestSession(t, testOptions(), Deps{Questions: realQuestions(false), Store: &fakeStore{}, Local: local})
	s.SetSpeakerMuted(true)
	if err := s.Start(context.Background(), NavigationNavigate); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitPhase(t, s, PhaseIdle)
	if local.count() != 0 {
		t.Fatalf("muted speaker still spoke")
	}
}

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/gate"
	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/metrics"
)

var (
	ErrNotAccepting = errors.New("session is not accepting answers")
	ErrEmptyAnswer  = errors.New("answer is empty")
	ErrNotPaused    = errors.New("session is not paused")
	ErrCannotPause  = errors.New("session cannot be paused now")
	ErrReloaded     = errors.New("reload of a live session, restart required")
)

const (
	scoringApology       = "Sorry, I had trouble processing that answer. Could you please try answering again?"
	continuationPrompt   = "Thanks. Let's keep going: can you tell me about a recent project you are proud of and your role in it?"
	closingMessage       = "Thank you, that concludes the interview. Your results are being prepared."
	maxGreetingPrefixLen = 40
)

// Options configures one interview session.
type Options struct {
	Token                 string
	Invited               bool
	VoiceMode             bool
	Language              string
	MinQuestionsRequired  int
	QuestionLimit         int
	RequireFullscreen     bool
	TerminateOnHidden     bool
	ScoringTimeout        time.Duration
	InvitedScoringTimeout time.Duration
	RedirectGrace         time.Duration
	// TickInterval drives the elapsed-time counter; zero disables it.
	TickInterval time.Duration
	ManualWindow time.Duration
	Synthesis    SynthesisConfig
	Lifecycle    LifecycleConfig
}

func DefaultOptions() Options {
	return Options{
		VoiceMode:             true,
		Language:              "en-US",
		MinQuestionsRequired:  8,
		ScoringTimeout:        30 * time.Second,
		InvitedScoringTimeout: 60 * time.Second,
		RedirectGrace:         1500 * time.Millisecond,
		TickInterval:          time.Second,
		ManualWindow:          DefaultManualWindow,
		Synthesis:             DefaultSynthesisConfig(),
		Lifecycle:             LifecycleConfig{CompleteTimeout: 10 * time.Second, AbandonTimeout: 10 * time.Second},
	}
}

// Deps are the collaborators of a session. Only Questions and Store are required.
type Deps struct {
	Questions QuestionService
	Profiles  ProfileProvider
	Store     Persistence
	Snapshots SnapshotStore
	Markers   ActiveMarker
	Speech    StreamOpener
	Remote    Synthesizer
	Local     LocalSpeaker
	Player    Player
	Devices   MediaDevices
	Proctor   Proctor
	Hooks     Hooks
	Logger    *zap.Logger
}

type questionMeta struct {
	currentAffairs *CurrentAffairsTag
	references     []string
}

// Session orchestrates one interview: prompt, listen, score, repeat, finish.
// All state is guarded by mu; I/O runs outside the lock and its continuation
// re-checks phase and epoch before touching anything.
type Session struct {
	opts      Options
	questions QuestionService
	profiles  ProfileProvider
	devices   MediaDevices
	proctor   Proctor
	hooks     Hooks
	log       *zap.Logger

	lifecycle *Lifecycle
	capture   *Capture
	synth     *Synthesis
	guard     *Guard

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	started      bool
	phase        Phase
	epoch        uint64
	voice        bool
	muted        bool
	speakerMuted bool
	elapsed      int
	profile      CandidateProfile
	question     string
	kind         QuestionKind
	meta         questionMeta
	attempts     int
	answered     int
	buffer       *Buffer
	// keepAnswer leaves the buffer alone across the next prompt so a
	// failed submission can be resent without retyping.
	keepAnswer   bool
	conversation []ConversationEntry
	turns        []TurnRecord
}

// NewSession wires a session and its coordinators. Call Start to boot it.
func NewSession(opts Options, deps Deps) *Session {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("token", opts.Token))
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		opts:      opts,
		questions: deps.Questions,
		profiles:  deps.Profiles,
		devices:   deps.Devices,
		proctor:   deps.Proctor,
		hooks:     deps.Hooks,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		phase:     PhaseLoading,
		voice:     opts.VoiceMode,
		kind:      Scaffolding{},
		buffer:    NewBuffer(opts.ManualWindow),
	}
	s.lifecycle = NewLifecycle(opts.Token, deps.Store, deps.Snapshots, deps.Markers, opts.Lifecycle, log)
	s.capture = NewCapture(deps.Speech, log, s.shouldListen, s.applySpeech, s.captureIssue)
	s.synth = NewSynthesis(deps.Remote, deps.Local, deps.Player, opts.Synthesis, log)
	s.guard = NewGuard(s, GuardPolicy{
		RequireFullscreen: opts.RequireFullscreen,
		TerminateOnHidden: opts.TerminateOnHidden || opts.Invited,
	})
	return s
}

func (s *Session) Guard() *Guard         { return s.guard }
func (s *Session) Lifecycle() *Lifecycle { return s.lifecycle }

// Start boots the session: reload detection, snapshot restore or a fresh
// start with the greeting. A second call is a no-op.
func (s *Session) Start(ctx context.Context, nav Navigation) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	mount, err := s.lifecycle.Mount(ctx, nav)
	if err != nil {
		return fmt.Errorf("mount session: %w", err)
	}
	if mount.Restart {
		s.mu.Lock()
		s.setPhaseLocked(PhaseFinished)
		s.mu.Unlock()
		s.teardown()
		s.redirect(RedirectRestart)
		return ErrReloaded
	}

	profile := s.loadProfile(ctx)
	s.startTicker()

	if mount.Snapshot != nil {
		s.mu.Lock()
		if s.phase == PhaseLoading {
			s.profile = profile
			s.restoreLocked(*mount.Snapshot)
			s.setPhaseLocked(PhasePaused)
		}
		s.mu.Unlock()
		return nil
	}

	if err := s.lifecycle.Start(ctx); err != nil {
		// The interview still runs; finalize upserts the record.
		s.log.Warn("session: mark started", zap.Error(err))
	}

	s.mu.Lock()
	if s.phase != PhaseLoading {
		s.mu.Unlock()
		return nil
	}
	s.profile = profile
	greeting := Greeting(profile)
	s.question = greeting
	s.kind = Scaffolding{}
	s.appendEntryLocked(SpeakerAI, greeting)
	speak, epoch := s.promptLocked(greeting)
	s.mu.Unlock()
	s.deliver(speak, epoch, greeting)
	return nil
}

func (s *Session) loadProfile(ctx context.Context) CandidateProfile {
	if s.profiles == nil {
		return CandidateProfile{}
	}
	p, err := s.profiles.Profile(ctx, s.opts.Token)
	if err != nil {
		s.log.Warn("session: load profile", zap.Error(err))
		return CandidateProfile{}
	}
	return p
}

// Greeting builds the opening prompt locally so the session never waits on
// the question service before saying hello.
func Greeting(p CandidateProfile) string {
	name := strings.TrimSpace(p.Name)
	if i := strings.IndexByte(name, ' '); i > 0 {
		name = name[:i]
	}
	var b strings.Builder
	b.WriteString("Hello")
	if name != "" {
		b.WriteString(" ")
		b.WriteString(name)
	}
	b.WriteString(", welcome to your mock interview")
	if role := strings.TrimSpace(p.TargetRole); role != "" {
		b.WriteString(" for the ")
		b.WriteString(role)
		b.WriteString(" role")
	}
	b.WriteString(". I will ask you a series of questions; answer by speaking or typing, and submit when you are done. To get started, could you briefly introduce yourself?")
	return b.String()
}

// Submit finalizes the working answer. Only valid while Listening or Idle.
// If text is non-empty it replaces the buffer first, as a final manual edit.
func (s *Session) Submit(text string) error {
	s.mu.Lock()
	if !s.phase.acceptsInput() {
		s.mu.Unlock()
		return ErrNotAccepting
	}
	if text != "" && text != s.buffer.Text() {
		s.buffer.ApplyManual(text)
	}
	s.buffer.Flush()
	answer := strings.TrimSpace(s.buffer.Text())
	if answer == "" {
		s.mu.Unlock()
		return ErrEmptyAnswer
	}

	p := pendingTurn{
		question:     s.question,
		kind:         s.kind,
		meta:         s.meta,
		answer:       answer,
		responseType: s.buffer.ResponseType(),
		attempts:     s.attempts,
	}
	verdict := gate.Check(answer)
	if verdict.Accepted {
		s.appendEntryLocked(SpeakerCandidate, answer)
	} else {
		p.skipped = true
		metrics.GateRejections.WithLabelValues(verdict.Reason.String()).Inc()
		s.appendEntryLocked(SpeakerAI, verdict.Message)
	}
	req := s.requestLocked(p)
	epoch := s.setPhaseLocked(PhaseThinking)
	s.mu.Unlock()

	s.capture.Reconcile(s.ctx)
	s.spawn(func() { s.requestNext(epoch, req, p) })
	return nil
}

type pendingTurn struct {
	question     string
	kind         QuestionKind
	meta         questionMeta
	answer       string
	responseType ResponseType
	attempts     int
	skipped      bool
}

func (s *Session) requestLocked(p pendingTurn) QuestionRequest {
	req := QuestionRequest{
		History:           append([]ConversationEntry(nil), s.conversation...),
		Profile:           s.profile,
		Question:          p.question,
		Kind:              p.kind,
		Answer:            p.answer,
		Skipped:           p.skipped,
		ResponseType:      p.responseType,
		Attempts:          p.attempts,
		QuestionsAnswered: s.answered,
		MinQuestions:      s.opts.MinQuestionsRequired,
		QuestionLimit:     s.opts.QuestionLimit,
		Invited:           s.opts.Invited,
	}
	if p.skipped {
		req.Answer = ""
	}
	return req
}

func (s *Session) scoringTimeout() time.Duration {
	if s.opts.Invited && s.opts.InvitedScoringTimeout > 0 {
		return s.opts.InvitedScoringTimeout
	}
	if s.opts.ScoringTimeout > 0 {
		return s.opts.ScoringTimeout
	}
	return 30 * time.Second
}

func (s *Session) requestNext(epoch uint64, req QuestionRequest, p pendingTurn) {
	ctx, cancel := context.WithTimeout(s.ctx, s.scoringTimeout())
	res, err := s.questions.NextQuestion(ctx, req)
	cancel()

	s.mu.Lock()
	if s.epoch != epoch || s.phase != PhaseThinking {
		s.mu.Unlock()
		s.log.Debug("session: dropping stale question result")
		return
	}

	if err != nil {
		s.log.Warn("session: question service failed", zap.Error(err))
		s.attempts++
		s.keepAnswer = true
		s.appendEntryLocked(SpeakerAI, scoringApology)
		speak, ep := s.promptLocked(scoringApology)
		s.mu.Unlock()
		s.deliver(speak, ep, scoringApology)
		return
	}
	s.keepAnswer = false

	if !p.skipped {
		rec := newTurnRecord(p, res)
		s.turns = append(s.turns, rec)
		if rec.IsRealQuestion {
			s.answered++
		}
	}

	if s.overLocked(res) {
		closing := closingMessage
		if res.IsInterviewOver && strings.TrimSpace(res.NextQuestion) != "" {
			closing = res.NextQuestion
		}
		s.appendEntryLocked(SpeakerAI, closing)
		results := s.resultsLocked("completed")
		s.setPhaseLocked(PhaseFinished)
		s.mu.Unlock()
		s.teardown()
		s.finalize(FinalizedComplete, results)
		return
	}

	next := strings.TrimSpace(res.NextQuestion)
	kind := res.NextKind
	if next == "" || res.IsInterviewOver {
		// Over-signal below the minimum, or nothing usable: keep the interview going.
		next = continuationPrompt
		kind = RealQuestion{}
	}
	if kind == nil {
		kind = RealQuestion{}
	}
	s.question = next
	s.kind = kind
	s.meta = questionMeta{currentAffairs: res.CurrentAffairs, references: res.ReferenceQuestionIDs}
	s.attempts = 0
	s.appendEntryLocked(SpeakerAI, next)
	speak, ep := s.promptLocked(next)
	s.mu.Unlock()
	s.deliver(speak, ep, next)
}

func newTurnRecord(p pendingTurn, res QuestionResult) TurnRecord {
	rec := TurnRecord{
		Question:             p.question,
		Answer:               p.answer,
		ResponseType:         p.responseType,
		Attempts:             p.attempts + 1,
		HintsGiven:           res.Hints,
		CurrentAffairs:       p.meta.currentAffairs,
		ReferenceQuestionIDs: p.meta.references,
	}
	if rq, ok := p.kind.(RealQuestion); ok {
		rec.IsRealQuestion = true
		rec.Category = rq.Category
		rec.IsCorrect = res.IsCorrect
		rec.Feedback = res.Scoring
	}
	return rec
}

// overLocked applies the completion rule: the service may end the interview
// only once the minimum is met; a configured limit ends it regardless.
func (s *Session) overLocked(res QuestionResult) bool {
	if s.opts.QuestionLimit > 0 && s.answered >= s.opts.QuestionLimit {
		return true
	}
	return res.IsInterviewOver && s.answered >= s.opts.MinQuestionsRequired
}

// promptLocked starts a new turn for text. It reports whether the prompt
// should be spoken, and the epoch the speech continuation must match.
func (s *Session) promptLocked(text string) (bool, uint64) {
	if !s.keepAnswer {
		s.buffer.Reset()
	}
	if !s.speakerMuted && s.synth.Claim(text) {
		return true, s.setPhaseLocked(PhaseSpeaking)
	}
	s.setPhaseLocked(s.inputPhaseLocked())
	return false, 0
}

// deliver runs the prompt's side effects after the lock is released.
func (s *Session) deliver(speak bool, epoch uint64, text string) {
	if speak {
		s.spawn(func() { s.runSpeech(epoch, text) })
		return
	}
	s.capture.Reconcile(s.ctx)
}

func (s *Session) runSpeech(epoch uint64, text string) {
	s.capture.Stop()
	tier := s.synth.Speak(s.ctx, text, s.opts.Language)
	s.log.Debug("session: prompt delivered", zap.String("tier", string(tier)))

	s.mu.Lock()
	if s.epoch != epoch || s.phase != PhaseSpeaking {
		s.mu.Unlock()
		return
	}
	if !s.keepAnswer {
		s.buffer.Reset()
	}
	s.setPhaseLocked(s.inputPhaseLocked())
	s.mu.Unlock()
	s.capture.Reconcile(s.ctx)
}

func (s *Session) inputPhaseLocked() Phase {
	if s.voice {
		return PhaseListening
	}
	return PhaseIdle
}

// setPhaseLocked moves to p and invalidates every continuation started
// before the move. It returns the new epoch.
func (s *Session) setPhaseLocked(p Phase) uint64 {
	s.epoch++
	if s.phase != p {
		metrics.PhaseTransitions.WithLabelValues(s.phase.String(), p.String()).Inc()
		s.phase = p
		if s.hooks.OnPhase != nil {
			s.hooks.OnPhase(p)
		}
	}
	return s.epoch
}

// appendEntryLocked adds a conversation entry unless it repeats the previous
// entry by the same speaker or is a second greeting.
func (s *Session) appendEntryLocked(sp Speaker, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	if n := len(s.conversation); n > 0 {
		last := s.conversation[n-1]
		if last.Speaker == sp && last.Text == text {
			return false
		}
	}
	if sp == SpeakerAI && isGreeting(text) {
		for _, e := range s.conversation {
			if e.Speaker == SpeakerAI && isGreeting(e.Text) {
				return false
			}
		}
	}
	e := ConversationEntry{Speaker: sp, Text: text}
	s.conversation = append(s.conversation, e)
	if s.hooks.OnEntry != nil {
		s.hooks.OnEntry(e)
	}
	return true
}

var greetingPrefixes = []string{"hello", "hi ", "hi,", "hey ", "welcome", "good morning", "good afternoon", "good evening"}

func isGreeting(text string) bool {
	head := strings.ToLower(text)
	if len(head) > maxGreetingPrefixLen {
		head = head[:maxGreetingPrefixLen]
	}
	for _, p := range greetingPrefixes {
		if strings.HasPrefix(head, p) {
			return true
		}
	}
	return false
}

// EditTranscript applies the candidate's typed value to the working answer.
func (s *Session) EditTranscript(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.phase.acceptsInput() {
		return
	}
	s.buffer.ApplyManual(text)
}

// FeedPCM16KLE forwards microphone audio to the capture stream.
func (s *Session) FeedPCM16KLE(pcm []byte) { s.capture.Feed(pcm) }

func (s *Session) shouldListen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voice && !s.muted && s.phase == PhaseListening
}

func (s *Session) applySpeech(gen uint64, delta string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseListening || gen != s.capture.Generation() {
		return
	}
	if s.buffer.ApplySpeech(delta) && s.hooks.OnTranscript != nil {
		s.hooks.OnTranscript(s.buffer.Text())
	}
}

func (s *Session) captureIssue(issue bool) {
	if s.hooks.OnCaptureIssue != nil {
		s.hooks.OnCaptureIssue(issue)
	}
}

// SetMuted toggles the microphone.
func (s *Session) SetMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()
	s.capture.Reconcile(s.ctx)
}

// SetSpeakerMuted toggles prompt audio. Muting while speaking cuts the
// current prompt short and moves on to listening.
func (s *Session) SetSpeakerMuted(muted bool) {
	s.mu.Lock()
	s.speakerMuted = muted
	speaking := s.phase == PhaseSpeaking
	s.mu.Unlock()
	if muted && speaking {
		s.synth.Stop()
	}
}

// SetVoiceMode switches between voice and text answering, e.g. when the
// microphone permission is denied.
func (s *Session) SetVoiceMode(voice bool) {
	s.mu.Lock()
	s.voice = voice
	if s.phase.acceptsInput() {
		s.setPhaseLocked(s.inputPhaseLocked())
	}
	s.mu.Unlock()
	s.capture.Reconcile(s.ctx)
}

// Pause snapshots the session and stops audio both ways.
func (s *Session) Pause(ctx context.Context) error {
	s.mu.Lock()
	switch s.phase {
	case PhaseThinking, PhaseFinished, PhaseLoading, PhasePaused:
		s.mu.Unlock()
		return ErrCannotPause
	}
	s.buffer.Flush()
	snap := s.snapshotLocked()
	s.lifecycle.hold(snap)
	s.setPhaseLocked(PhasePaused)
	s.mu.Unlock()

	s.synth.Stop()
	s.capture.Stop()
	s.lifecycle.persistPause(ctx, snap)
	return nil
}

// Resume restores the pause snapshot and returns to listening.
func (s *Session) Resume(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhasePaused {
		s.mu.Unlock()
		return ErrNotPaused
	}
	snap, ok := s.lifecycle.take()
	if !ok {
		s.mu.Unlock()
		return ErrNotPaused
	}
	s.restoreLocked(snap)
	s.setPhaseLocked(s.inputPhaseLocked())
	s.mu.Unlock()

	s.lifecycle.persistResume(ctx)
	s.capture.Reconcile(s.ctx)
	return nil
}

func (s *Session) snapshotLocked() PauseSnapshot {
	snap := PauseSnapshot{
		Question:       s.question,
		Transcript:     s.buffer.Text(),
		Conversation:   append([]ConversationEntry(nil), s.conversation...),
		Turns:          append([]TurnRecord(nil), s.turns...),
		ElapsedSeconds: s.elapsed,
	}
	if rq, ok := s.kind.(RealQuestion); ok {
		snap.QuestionReal = true
		snap.QuestionCategory = rq.Category
	}
	return snap
}

func (s *Session) restoreLocked(snap PauseSnapshot) {
	s.question = snap.Question
	if snap.QuestionReal {
		s.kind = RealQuestion{Category: snap.QuestionCategory}
	} else {
		s.kind = Scaffolding{}
	}
	s.buffer.Restore(snap.Transcript)
	s.conversation = append([]ConversationEntry(nil), snap.Conversation...)
	s.turns = append([]TurnRecord(nil), snap.Turns...)
	s.elapsed = snap.ElapsedSeconds
	s.answered = 0
	for _, t := range s.turns {
		if t.IsRealQuestion {
			s.answered++
		}
	}
	s.attempts = 0
}

// terminate ends the session from any phase. kind NotFinalized picks the
// finalize kind from the session: abandon when invited or nothing was
// answered, complete otherwise. It reports whether this call ended the session.
func (s *Session) terminate(reason string, kind FinalizeKind) bool {
	s.mu.Lock()
	if s.phase == PhaseFinished {
		s.mu.Unlock()
		return false
	}
	if kind == NotFinalized {
		kind = FinalizedComplete
		if s.opts.Invited || len(s.turns) == 0 {
			kind = FinalizedAbandon
		}
	}
	results := s.resultsLocked(reason)
	s.setPhaseLocked(PhaseFinished)
	s.mu.Unlock()

	s.log.Info("session: terminated", zap.String("reason", reason), zap.Stringer("finalize", kind))
	s.teardown()
	if s.proctor != nil && s.proctor.IsModalOpen() {
		s.proctor.ConfirmEnd()
	}
	s.finalize(kind, results)
	return true
}

func (s *Session) resultsLocked(reason string) Results {
	turns := append([]TurnRecord(nil), s.turns...)
	return Results{
		Turns:          turns,
		Conversation:   append([]ConversationEntry(nil), s.conversation...),
		Summary:        Summarize(turns),
		ElapsedSeconds: s.elapsed,
		Reason:         reason,
	}
}

// teardown releases media. Safe to call more than once.
func (s *Session) teardown() {
	s.synth.Stop()
	s.capture.Stop()
	if s.devices != nil {
		s.devices.Release()
	}
}

func (s *Session) finalize(kind FinalizeKind, results Results) {
	if kind == FinalizedAbandon {
		s.lifecycle.Abandon(results)
		s.spawn(func() { s.redirectAfterGrace(RedirectAcknowledgment) })
		return
	}
	s.spawn(func() {
		target, err := s.lifecycle.Complete(s.ctx, results)
		if err != nil && !errors.Is(err, ErrAlreadyFinalized) {
			s.log.Warn("session: complete", zap.Error(err))
		}
		if target == "" {
			target = RedirectResults
			if s.opts.Invited {
				target = RedirectAcknowledgment
			}
		}
		s.redirectAfterGrace(target)
	})
}

func (s *Session) redirectAfterGrace(target string) {
	if s.opts.RedirectGrace > 0 {
		if err := sleepCtx(s.ctx, s.opts.RedirectGrace); err != nil {
			return
		}
	}
	s.redirect(target)
}

func (s *Session) redirect(target string) {
	if s.hooks.OnRedirect != nil {
		s.hooks.OnRedirect(target)
	}
}

func (s *Session) startTicker() {
	if s.opts.TickInterval <= 0 {
		return
	}
	s.spawn(func() {
		t := time.NewTicker(s.opts.TickInterval)
		defer t.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-t.C:
			}
			s.mu.Lock()
			switch s.phase {
			case PhaseSpeaking, PhaseListening, PhaseThinking, PhaseIdle:
				s.elapsed++
			case PhaseFinished:
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
		}
	})
}

func (s *Session) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// State returns a snapshot of the session's observable state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionState{
		Phase:                s.phase,
		ElapsedSeconds:       s.elapsed,
		VoiceMode:            s.voice,
		Muted:                s.muted,
		SpeakerMuted:         s.speakerMuted,
		MinQuestionsRequired: s.opts.MinQuestionsRequired,
		QuestionLimit:        s.opts.QuestionLimit,
		QuestionsAnswered:    s.answered,
		CurrentQuestion:      s.question,
		Transcript:           s.buffer.Text(),
		CaptureIssue:         s.capture.Issue(),
	}
}

func (s *Session) Conversation() []ConversationEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ConversationEntry(nil), s.conversation...)
}

func (s *Session) Turns() []TurnRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TurnRecord(nil), s.turns...)
}

// Close tears the session down as a page unload and waits for background
// work, including finalize writes, to finish. Finalize writes run on
// detached contexts and are not cut short.
func (s *Session) Close() {
	s.guard.PageUnload()
	s.cancel()
	s.Wait()
	s.lifecycle.Wait()
}

// Wait blocks until the session's background goroutines have returned.
// The elapsed ticker only returns once the session is finished.
func (s *Session) Wait() { s.wg.Wait() }

package agent

import (
	"context"
	"fmt"
	"time"
)

// Phase is the single authoritative description of what a session is doing.
// Every other component branches on it; nothing keeps a parallel copy.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseSpeaking
	PhaseListening
	PhaseThinking
	PhasePaused
	PhaseIdle
	PhaseFinished
)

var phaseNames = [...]string{"loading", "speaking", "listening", "thinking", "paused", "idle", "finished"}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// acceptsInput reports whether an answer may be submitted in this phase.
func (p Phase) acceptsInput() bool { return p == PhaseListening || p == PhaseIdle }

type Speaker string

const (
	SpeakerAI        Speaker = "ai"
	SpeakerCandidate Speaker = "candidate"
)

// ConversationEntry is one line of the append-only conversation log.
type ConversationEntry struct {
	Speaker Speaker `json:"speaker" bson:"speaker"`
	Text    string  `json:"text" bson:"text"`
}

type ResponseType string

const (
	ResponseSpoken ResponseType = "spoken"
	ResponseTyped  ResponseType = "typed"
	ResponseMixed  ResponseType = "mixed"
)

// QuestionKind classifies a prompt. It is produced by the question service so
// the orchestrator never inspects question text to make control decisions.
type QuestionKind interface{ isQuestionKind() }

// Scaffolding is a conversational prompt (greeting, topic selection) that is never scored.
type Scaffolding struct{}

// RealQuestion is scored interview content.
type RealQuestion struct{ Category string }

func (Scaffolding) isQuestionKind()  {}
func (RealQuestion) isQuestionKind() {}

// ScoringBundle is the per-answer evaluation returned by the scoring service.
type ScoringBundle struct {
	Overall       float64  `json:"overall" bson:"overall"`
	Technical     float64  `json:"technical" bson:"technical"`
	Communication float64  `json:"communication" bson:"communication"`
	Confidence    float64  `json:"confidence" bson:"confidence"`
	Feedback      string   `json:"feedback,omitempty" bson:"feedback,omitempty"`
	Strengths     []string `json:"strengths,omitempty" bson:"strengths,omitempty"`
	Improvements  []string `json:"improvements,omitempty" bson:"improvements,omitempty"`
}

type CurrentAffairsTag struct {
	Topic    string `json:"topic" bson:"topic"`
	Category string `json:"category" bson:"category"`
}

// TurnRecord is one question actually asked and answered. Immutable once appended.
type TurnRecord struct {
	Question             string             `json:"question" bson:"question"`
	Answer               string             `json:"answer" bson:"answer"`
	IsRealQuestion       bool               `json:"isRealQuestion" bson:"isRealQuestion"`
	Category             string             `json:"category,omitempty" bson:"category,omitempty"`
	ResponseType         ResponseType       `json:"responseType" bson:"responseType"`
	Attempts             int                `json:"attempts" bson:"attempts"`
	HintsGiven           []string           `json:"hintsGiven,omitempty" bson:"hintsGiven,omitempty"`
	IsCorrect            *bool              `json:"isCorrect,omitempty" bson:"isCorrect,omitempty"`
	Feedback             ScoringBundle      `json:"feedback" bson:"feedback"`
	CurrentAffairs       *CurrentAffairsTag `json:"currentAffairsTag,omitempty" bson:"currentAffairsTag,omitempty"`
	ReferenceQuestionIDs []string           `json:"referenceQuestionIds,omitempty" bson:"referenceQuestionIds,omitempty"`
}

// PauseSnapshot holds everything needed to resume a paused session.
type PauseSnapshot struct {
	Question         string              `json:"pausedQuestion"`
	QuestionReal     bool                `json:"pausedQuestionReal"`
	QuestionCategory string              `json:"pausedQuestionCategory,omitempty"`
	Transcript       string              `json:"pausedTranscript"`
	Conversation     []ConversationEntry `json:"pausedConversationLog"`
	Turns            []TurnRecord        `json:"pausedTurns"`
	ElapsedSeconds   int                 `json:"pausedElapsedSeconds"`
}

// SessionState is a read-only view of a session.
type SessionState struct {
	Phase                Phase  `json:"conversationPhase"`
	ElapsedSeconds       int    `json:"elapsedSeconds"`
	VoiceMode            bool   `json:"voiceMode"`
	Muted                bool   `json:"isMuted"`
	SpeakerMuted         bool   `json:"isSpeakerMuted"`
	MinQuestionsRequired int    `json:"minQuestionsRequired"`
	QuestionLimit        int    `json:"configuredQuestionLimit"`
	QuestionsAnswered    int    `json:"questionsAnswered"`
	CurrentQuestion      string `json:"currentQuestion"`
	Transcript           string `json:"transcript"`
	CaptureIssue         bool   `json:"captureIssue"`
}

// CandidateProfile is supplied by the resume/profile provider before the session starts.
type CandidateProfile struct {
	Name       string   `json:"name"`
	Skills     []string `json:"skills"`
	ResumeText string   `json:"resumeText"`
	TargetRole string   `json:"targetRole"`
	Language   string   `json:"language"`
}

// QuestionRequest is everything the question service needs to score an
// answer and produce the next prompt.
type QuestionRequest struct {
	History           []ConversationEntry
	Profile           CandidateProfile
	Question          string
	Kind              QuestionKind
	Answer            string
	Skipped           bool
	ResponseType      ResponseType
	Attempts          int
	QuestionsAnswered int
	MinQuestions      int
	QuestionLimit     int
	Invited           bool
}

type QuestionResult struct {
	NextQuestion         string
	NextKind             QuestionKind
	IsInterviewOver      bool
	Scoring              ScoringBundle
	IsCorrect            *bool
	Hints                []string
	CurrentAffairs       *CurrentAffairsTag
	ReferenceQuestionIDs []string
}

// QuestionService generates the next question and scores the current answer.
type QuestionService interface {
	NextQuestion(ctx context.Context, req QuestionRequest) (QuestionResult, error)
}

// ProfileProvider supplies the candidate profile for a session token.
type ProfileProvider interface {
	Profile(ctx context.Context, token string) (CandidateProfile, error)
}

// Results is the payload sent to the persistence collaborator on finalize.
type Results struct {
	Turns          []TurnRecord        `json:"turns"`
	Conversation   []ConversationEntry `json:"conversation"`
	Summary        Summary             `json:"summary"`
	ElapsedSeconds int                 `json:"elapsedSeconds"`
	Reason         string              `json:"reason,omitempty"`
}

// Persistence is the session store. Every method must be idempotent and accept
// an empty turn list.
type Persistence interface {
	StartSession(ctx context.Context, token string) (time.Time, error)
	CompleteSession(ctx context.Context, token string, results Results) (redirect string, err error)
	AbandonSession(ctx context.Context, token string, results Results) error
}

// TranscriptUpdate is one event from a speech-recognition stream: the
// monotonically growing final text, the volatile partial text, or an error.
type TranscriptUpdate struct {
	Final   string
	Partial string
	Err     error
}

// SpeechStream is one live speech-to-text session.
// Updates is closed when the stream ends.
type SpeechStream interface {
	Updates() <-chan TranscriptUpdate
	SendPCM16KLE(pcm []byte) error
	Close() error
}

// StreamOpener starts new speech-recognition streams.
type StreamOpener interface {
	Open(ctx context.Context) (SpeechStream, error)
}

// Synthesizer turns text into 48kHz PCM16LE mono audio.
// Errors exposing Permanent() == true are not retried.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
}

// LocalSpeaker is the on-device synthesis engine used when remote synthesis fails.
type LocalSpeaker interface {
	Speak(ctx context.Context, text, language string) error
}

// Player plays 48kHz PCM audio. Play blocks until playback ends or ctx is done.
type Player interface {
	Play(ctx context.Context, pcm []byte) error
	Stop()
}

// MediaDevices owns the camera and microphone handles.
type MediaDevices interface {
	Release()
}

// Proctor is the external proctoring guard.
type Proctor interface {
	IsModalOpen() bool
	ConfirmEnd()
}

// Hooks lets the transport layer observe a session. Hooks run while the
// session lock is held and must not call back into the session.
type Hooks struct {
	OnPhase        func(Phase)
	OnEntry        func(ConversationEntry)
	OnTranscript   func(string)
	OnCaptureIssue func(bool)
	OnRedirect     func(target string)
}

// Redirect targets.
const (
	RedirectResults        = "/interview/results"
	RedirectAcknowledgment = "/interview/thank-you"
	RedirectRestart        = "/interview/start"
)

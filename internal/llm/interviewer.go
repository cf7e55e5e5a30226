package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/agent"
)

const (
	interviewerTemplate = "interviewer"
	maxHistoryEntries   = 24
	maxResumeRunes      = 2000
)

// Interviewer generates questions and scores answers with an LLM provider.
type Interviewer struct {
	provider Provider
	prompts  *Prompts
	log      *zap.Logger
}

func NewInterviewer(provider Provider, log *zap.Logger) (*Interviewer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	prompts, err := LoadPrompts()
	if err != nil {
		return nil, err
	}
	return &Interviewer{provider: provider, prompts: prompts, log: log}, nil
}

type interviewerReply struct {
	NextQuestion    string `json:"nextQuestion"`
	QuestionType    string `json:"questionType"`
	Category        string `json:"category"`
	IsInterviewOver bool   `json:"isInterviewOver"`
	Score           struct {
		Overall       float64 `json:"overall"`
		Technical     float64 `json:"technical"`
		Communication float64 `json:"communication"`
		Confidence    float64 `json:"confidence"`
	} `json:"score"`
	Feedback                     string   `json:"feedback"`
	Strengths                    []string `json:"strengths"`
	Improvements                 []string `json:"improvements"`
	IsCorrectAnswer              *bool    `json:"isCorrectAnswer"`
	Hints                        []string `json:"hints"`
	IsNextQuestionCurrentAffairs bool     `json:"isNextQuestionCurrentAffairs"`
	CurrentAffairsTopic          string   `json:"currentAffairsTopic"`
	CurrentAffairsCategory       string   `json:"currentAffairsCategory"`
	ReferenceQuestionIDs         []string `json:"referenceQuestionIds"`
}

// NextQuestion scores the answer in req and returns the next prompt.
func (iv *Interviewer) NextQuestion(ctx context.Context, req agent.QuestionRequest) (agent.QuestionResult, error) {
	modes := []string{"standard"}
	if req.Invited {
		modes[0] = "invited"
	}
	if req.Skipped {
		modes = append(modes, "skipped")
	}
	system, prompt, err := iv.prompts.Build(interviewerTemplate, promptVars(req), modes...)
	if err != nil {
		return agent.QuestionResult{}, err
	}

	raw, err := iv.provider.Generate(ctx, system, prompt)
	if err != nil {
		return agent.QuestionResult{}, err
	}
	res, err := ParseReply(raw)
	if err != nil {
		iv.log.Warn("interviewer: unparseable reply", zap.String("provider", iv.provider.Name()), zap.Error(err))
		return agent.QuestionResult{}, &ProviderError{Provider: iv.provider.Name(), Code: ErrCodeBadResponse, Message: "unparseable reply", Err: err}
	}
	return res, nil
}

func promptVars(req agent.QuestionRequest) map[string]string {
	kind := "scaffolding"
	if rq, ok := req.Kind.(agent.RealQuestion); ok {
		kind = "real question"
		if rq.Category != "" {
			kind += ", category " + rq.Category
		}
	}
	answer := req.Answer
	if req.Skipped {
		answer = "(skipped)"
	}
	limit := ""
	if req.QuestionLimit > 0 {
		limit = fmt.Sprintf("The interview ends after %d real questions.", req.QuestionLimit)
	}
	return map[string]string{
		"Name":         orNone(req.Profile.Name),
		"Role":         orNone(req.Profile.TargetRole),
		"Skills":       orNone(strings.Join(req.Profile.Skills, ", ")),
		"Resume":       orNone(truncateRunes(req.Profile.ResumeText, maxResumeRunes)),
		"History":      formatHistory(req.History),
		"Kind":         kind,
		"Question":     req.Question,
		"ResponseType": string(req.ResponseType),
		"Attempt":      strconv.Itoa(req.Attempts + 1),
		"Answer":       answer,
		"Answered":     strconv.Itoa(req.QuestionsAnswered),
		"MinQuestions": strconv.Itoa(req.MinQuestions),
		"Limit":        limit,
	}
}

// formatHistory labels the most recent entries with [INTERVIEWER]/[CANDIDATE].
func formatHistory(history []agent.ConversationEntry) string {
	if len(history) > maxHistoryEntries {
		history = history[len(history)-maxHistoryEntries:]
	}
	if len(history) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, e := range history {
		if e.Speaker == agent.SpeakerAI {
			b.WriteString("[INTERVIEWER] ")
		} else {
			b.WriteString("[CANDIDATE] ")
		}
		b.WriteString(e.Text)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// ParseReply decodes a model reply, tolerating code fences and prose around
// the JSON object.
func ParseReply(raw string) (agent.QuestionResult, error) {
	body := extractJSON(raw)
	if body == "" {
		return agent.QuestionResult{}, fmt.Errorf("no JSON object in reply")
	}
	var r interviewerReply
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return agent.QuestionResult{}, fmt.Errorf("decode reply: %w", err)
	}
	r.NextQuestion = strings.TrimSpace(r.NextQuestion)
	if r.NextQuestion == "" && !r.IsInterviewOver {
		return agent.QuestionResult{}, fmt.Errorf("reply has no next question")
	}

	res := agent.QuestionResult{
		NextQuestion:    r.NextQuestion,
		IsInterviewOver: r.IsInterviewOver,
		Scoring: agent.ScoringBundle{
			Overall:       clampScore(r.Score.Overall),
			Technical:     clampScore(r.Score.Technical),
			Communication: clampScore(r.Score.Communication),
			Confidence:    clampScore(r.Score.Confidence),
			Feedback:      r.Feedback,
			Strengths:     r.Strengths,
			Improvements:  r.Improvements,
		},
		IsCorrect:            r.IsCorrectAnswer,
		Hints:                r.Hints,
		ReferenceQuestionIDs: r.ReferenceQuestionIDs,
	}
	if strings.EqualFold(r.QuestionType, "scaffolding") {
		res.NextKind = agent.Scaffolding{}
	} else {
		res.NextKind = agent.RealQuestion{Category: r.Category}
	}
	if r.IsNextQuestionCurrentAffairs {
		res.CurrentAffairs = &agent.CurrentAffairsTag{Topic: r.CurrentAffairsTopic, Category: r.CurrentAffairsCategory}
	}
	return res, nil
}

func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 10:
		return 10
	}
	return v
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}

package agent

import "math"

// Summary aggregates the scored turns of a session.
type Summary struct {
	QuestionsAnswered    int                `json:"questionsAnswered"`
	ScaffoldingTurns     int                `json:"scaffoldingTurns"`
	CorrectAnswers       int                `json:"correctAnswers"`
	AverageOverall       float64            `json:"averageOverall"`
	AverageTechnical     float64            `json:"averageTechnical"`
	AverageCommunication float64            `json:"averageCommunication"`
	AverageConfidence    float64            `json:"averageConfidence"`
	CategoryScores       map[string]float64 `json:"categoryScores,omitempty"`
	Strengths            []string           `json:"strengths,omitempty"`
	Improvements         []string           `json:"improvements,omitempty"`
}

const maxSummaryNotes = 5

// Summarize computes the report over real questions only; scaffolding turns
// are counted but never scored.
func Summarize(turns []TurnRecord) Summary {
	var sum Summary
	var overall, technical, communication, confidence float64
	catTotal := map[string]float64{}
	catCount := map[string]int{}
	seenStrength := map[string]bool{}
	seenImprove := map[string]bool{}

	for _, t := range turns {
		if !t.IsRealQuestion {
			sum.ScaffoldingTurns++
			continue
		}
		sum.QuestionsAnswered++
		if t.IsCorrect != nil && *t.IsCorrect {
			sum.CorrectAnswers++
		}
		overall += t.Feedback.Overall
		technical += t.Feedback.Technical
		communication += t.Feedback.Communication
		confidence += t.Feedback.Confidence
		if t.Category != "" {
			catTotal[t.Category] += t.Feedback.Overall
			catCount[t.Category]++
		}
		sum.Strengths = appendUnique(sum.Strengths, t.Feedback.Strengths, seenStrength)
		sum.Improvements = appendUnique(sum.Improvements, t.Feedback.Improvements, seenImprove)
	}

	if n := float64(sum.QuestionsAnswered); n > 0 {
		sum.AverageOverall = round1(overall / n)
		sum.AverageTechnical = round1(technical / n)
		sum.AverageCommunication = round1(communication / n)
		sum.AverageConfidence = round1(confidence / n)
	}
	if len(catTotal) > 0 {
		sum.CategoryScores = make(map[string]float64, len(catTotal))
		for c, total := range catTotal {
			sum.CategoryScores[c] = round1(total / float64(catCount[c]))
		}
	}
	return sum
}

func appendUnique(dst, src []string, seen map[string]bool) []string {
	for _, s := range src {
		if len(dst) >= maxSummaryNotes {
			break
		}
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		dst = append(dst, s)
	}
	return dst
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

package agent

import "testing"

func TestSummarize(t *testing.T) {
	yes, no := true, false
	turns := []TurnRecord{
		{Question: "intro", IsRealQuestion: false, Feedback: ScoringBundle{Overall: 10}},
		{IsRealQuestion: true, Category: "go", IsCorrect: &yes, Feedback: ScoringBundle{Overall: 8, Technical: 7, Communication: 9, Confidence: 6, Strengths: []string{"clear", "precise"}}},
		{IsRealQuestion: true, Category: "go", IsCorrect: &no, Feedback: ScoringBundle{Overall: 5, Technical: 4, Communication: 6, Confidence: 5, Strengths: []string{"clear"}, Improvements: []string{"depth"}}},
		{IsRealQuestion: true, Category: "sql", Feedback: ScoringBundle{Overall: 6, Technical: 6, Communication: 6, Confidence: 6}},
	}
	sum := Summarize(turns)
	if sum.QuestionsAnswered != 3 || sum.ScaffoldingTurns != 1 || sum.CorrectAnswers != 1 {
		t.Fatalf("counts %+v", sum)
	}
	if sum.AverageOverall != 6.3 || sum.AverageTechnical != 5.7 {
		t.Fatalf("averages %+v", sum)
	}
	if sum.CategoryScores["go"] != 6.5 || sum.CategoryScores["sql"] != 6 {
		t.Fatalf("categories %v", sum.CategoryScores)
	}
	if len(sum.Strengths) != 2 || len(sum.Improvements) != 1 {
		t.Fatalf("notes %v %v", sum.Strengths, sum.Improvements)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	sum := Summarize(nil)
	if sum.QuestionsAnswered != 0 || sum.AverageOverall != 0 || sum.CategoryScores != nil {
		t.Fatalf("summary %+v", sum)
	}
}

func TestSummarizeCapsNotes(t *testing.T) {
	var turns []TurnRecord
	for _, s := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		turns = append(turns, TurnRecord{IsRealQuestion: true, Feedback: ScoringBundle{Strengths: []string{s}}})
	}
	if n := len(Summarize(turns).Strengths); n != maxSummaryNotes {
		t.Fatalf("strengths = %d", n)
	}
}

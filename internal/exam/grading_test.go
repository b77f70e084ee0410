package exam

import (
	"testing"

	"examserve/internal/question"
)

func gradingQuestions() []question.Question {
	return []question.Question{
		{ID: 1, Type: question.TypeMCQ, CorrectAnswer: "B", Marks: 2, OrderNumber: 1},
		{ID: 2, Type: question.TypeTrueFalse, CorrectAnswer: "true", Marks: 1, OrderNumber: 2},
		{ID: 3, Type: question.TypeText, Marks: 5, OrderNumber: 3},
	}
}

func TestGrade(t *testing.T) {
	tests := []struct {
		name        string
		answers     map[int64]string
		wantTotal   float64
		wantPending int
	}{
		{
			name:        "all correct",
			answers:     map[int64]string{1: "B", 2: "true", 3: "an essay"},
			wantTotal:   3,
			wantPending: 1,
		},
		{
			name:        "all wrong",
			answers:     map[int64]string{1: "A", 2: "false"},
			wantTotal:   0,
			wantPending: 0,
		},
		{
			name:        "unanswered scores nothing",
			answers:     map[int64]string{},
			wantTotal:   0,
			wantPending: 0,
		},
		{
			name:        "empty answer counts as unanswered",
			answers:     map[int64]string{1: "", 3: ""},
			wantTotal:   0,
			wantPending: 0,
		},
		{
			name:        "comparison is case sensitive",
			answers:     map[int64]string{1: "b", 2: "TRUE"},
			wantTotal:   0,
			wantPending: 0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Grade(gradingQuestions(), tc.answers)
			if res.TotalScore != tc.wantTotal {
				t.Fatalf("total score = %g, want %g", res.TotalScore, tc.wantTotal)
			}
			if res.PendingEvaluation != tc.wantPending {
				t.Fatalf("pending = %d, want %d", res.PendingEvaluation, tc.wantPending)
			}
			if len(res.PerQuestion) != 3 {
				t.Fatalf("expected a result per question, got %d", len(res.PerQuestion))
			}
		})
	}
}

func TestGradeTextNeverAutoScored(t *testing.T) {
	res := Grade(gradingQuestions(), map[int64]string{3: "long answer"})

	var g *GradedAnswer
	for i := range res.PerQuestion {
		if res.PerQuestion[i].QuestionID == 3 {
			g = &res.PerQuestion[i]
		}
	}
	if g == nil {
		t.Fatalf("missing result for text question")
	}
	if !g.NeedsEvaluation {
		t.Fatalf("answered text question must need evaluation")
	}
	if g.IsCorrect != nil || g.ScoreAwarded != nil {
		t.Fatalf("text question must not be auto-scored")
	}
	if res.TotalScore != 0 {
		t.Fatalf("text answer must not contribute to objective total, got %g", res.TotalScore)
	}
}

func TestGradeWrongAnswerAwardsZero(t *testing.T) {
	res := Grade(gradingQuestions(), map[int64]string{1: "A"})

	g := res.PerQuestion[0]
	if g.IsCorrect == nil || *g.IsCorrect {
		t.Fatalf("wrong answer should be marked incorrect")
	}
	if g.ScoreAwarded == nil || *g.ScoreAwarded != 0 {
		t.Fatalf("wrong answer should award explicit zero")
	}
}

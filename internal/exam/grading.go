package exam

import (
	"examserve/internal/question"
)

// GradedAnswer is the outcome for a single question at submit time.
type GradedAnswer struct {
	QuestionID      int64
	Answered        bool
	IsCorrect       *bool
	ScoreAwarded    *float64
	NeedsEvaluation bool
}

type GradeResult struct {
	PerQuestion []GradedAnswer
	TotalScore  float64
	// PendingEvaluation counts answered text questions awaiting manual review.
	PendingEvaluation int
}

// Grade computes per-question correctness and the objective total for one
// attempt. Pure: the caller persists the result. Objective answers are
// compared to the key case-sensitively; text questions always pass through
// ungraded with NeedsEvaluation set.
func Grade(questions []question.Question, answers map[int64]string) GradeResult {
	res := GradeResult{PerQuestion: make([]GradedAnswer, 0, len(questions))}

	for _, q := range questions {
		text, answered := answers[q.ID]
		if answered && text == "" {
			answered = false
		}

		g := GradedAnswer{QuestionID: q.ID, Answered: answered}

		switch {
		case q.Type == question.TypeText:
			g.NeedsEvaluation = answered
		case !answered:
			// unanswered objective question: wrong answer semantics without
			// a stored row; is_correct stays unset
		default:
			correct := text == q.CorrectAnswer
			awarded := 0.0
			if correct {
				awarded = q.Marks
				res.TotalScore += q.Marks
			}
			g.IsCorrect = &correct
			g.ScoreAwarded = &awarded
		}

		if g.NeedsEvaluation {
			res.PendingEvaluation++
		}
		res.PerQuestion = append(res.PerQuestion, g)
	}

	return res
}

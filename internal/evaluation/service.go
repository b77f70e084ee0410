package evaluation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"examserve/internal/exam"
)

var (
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrAttemptNotReady  = errors.New("attempt is not awaiting evaluation")
	ErrAnswerNotPending = errors.New("answer does not need evaluation")
	ErrScoreOutOfRange  = errors.New("score outside allowed range")
	ErrExamNotFound     = errors.New("exam not found")
)

type Service struct {
	db  *sql.DB
	now func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// PendingAttempt is one completed attempt with text answers still waiting for
// a human score.
type PendingAttempt struct {
	AttemptID    int64     `json:"attempt_id"`
	ExamID       int64     `json:"exam_id"`
	ExamTitle    string    `json:"exam_title"`
	UserID       int64     `json:"user_id"`
	UserName     string    `json:"user_name"`
	SubmittedAt  time.Time `json:"submitted_at"`
	PendingCount int       `json:"pending_count"`
}

// EvalAnswer pairs an answer with the question an evaluator needs to judge it.
type EvalAnswer struct {
	AnswerID        int64    `json:"answer_id"`
	QuestionID      int64    `json:"question_id"`
	QuestionText    string   `json:"question_text"`
	QuestionType    string   `json:"question_type"`
	Marks           float64  `json:"marks"`
	AnswerText      string   `json:"answer_text"`
	IsCorrect       *bool    `json:"is_correct,omitempty"`
	ScoreAwarded    *float64 `json:"score_awarded,omitempty"`
	NeedsEvaluation bool     `json:"needs_evaluation"`
}

type ScoreInput struct {
	QuestionID int64   `json:"question_id"`
	Score      float64 `json:"score"`
}

type EvaluationResult struct {
	AttemptID    int64       `json:"attempt_id"`
	Status       exam.Status `json:"status"`
	TotalScore   float64     `json:"total_score"`
	PendingCount int         `json:"pending_count"`
}

// ListPending returns completed attempts that still carry unevaluated text
// answers, oldest submission first.
func (s *Service) ListPending(ctx context.Context) ([]PendingAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.exam_id, e.title, a.user_id, u.full_name, a.submitted_at,
		       (SELECT COUNT(*) FROM answers ans WHERE ans.attempt_id = a.id AND ans.needs_evaluation) AS pending
		FROM attempts a
		JOIN exams e ON e.id = a.exam_id
		JOIN users u ON u.id = a.user_id
		WHERE a.status = $1
		  AND EXISTS (SELECT 1 FROM answers ans WHERE ans.attempt_id = a.id AND ans.needs_evaluation)
		ORDER BY a.submitted_at
	`, exam.StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("query pending attempts: %w", err)
	}
	defer rows.Close()

	out := make([]PendingAttempt, 0)
	for rows.Next() {
		var p PendingAttempt
		var submittedAt sql.NullInt64
		if err := rows.Scan(&p.AttemptID, &p.ExamID, &p.ExamTitle, &p.UserID, &p.UserName, &submittedAt, &p.PendingCount); err != nil {
			return nil, fmt.Errorf("scan pending attempt: %w", err)
		}
		if submittedAt.Valid {
			p.SubmittedAt = time.Unix(submittedAt.Int64, 0).UTC()
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending attempts: %w", err)
	}
	return out, nil
}

// GetAttemptAnswers returns every answer of the attempt with its question, so
// the evaluator sees objective results alongside the text answers to score.
func (s *Service) GetAttemptAnswers(ctx context.Context, attemptID int64) ([]EvalAnswer, error) {
	if _, err := s.loadAttemptStatus(ctx, attemptID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ans.id, q.id, q.question_text, q.qtype, q.marks, ans.answer_text,
		       ans.is_correct, ans.score_awarded, ans.needs_evaluation
		FROM answers ans
		JOIN questions q ON q.id = ans.question_id
		WHERE ans.attempt_id = $1
		ORDER BY q.order_number
	`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("query attempt answers: %w", err)
	}
	defer rows.Close()

	out := make([]EvalAnswer, 0)
	for rows.Next() {
		var (
			a         EvalAnswer
			isCorrect sql.NullBool
			score     sql.NullFloat64
		)
		if err := rows.Scan(&a.AnswerID, &a.QuestionID, &a.QuestionText, &a.QuestionType, &a.Marks,
			&a.AnswerText, &isCorrect, &score, &a.NeedsEvaluation); err != nil {
			return nil, fmt.Errorf("scan attempt answer: %w", err)
		}
		if isCorrect.Valid {
			v := isCorrect.Bool
			a.IsCorrect = &v
		}
		if score.Valid {
			v := score.Float64
			a.ScoreAwarded = &v
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt answers: %w", err)
	}
	return out, nil
}

// SubmitEvaluation applies manual scores to pending text answers. Each score
// is clamped-checked against [0, marks] before anything is written; the whole
// batch applies in one transaction. Once no pending answers remain the
// attempt total is recomputed and the attempt moves to evaluated.
func (s *Service) SubmitEvaluation(ctx context.Context, attemptID int64, scores []ScoreInput) (*EvaluationResult, error) {
	status, err := s.loadAttemptStatus(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if status != exam.StatusCompleted {
		return nil, ErrAttemptNotReady
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin evaluation tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().Unix()
	for _, in := range scores {
		var marks float64
		var pending bool
		err := tx.QueryRowContext(ctx, `
			SELECT q.marks, ans.needs_evaluation
			FROM answers ans
			JOIN questions q ON q.id = ans.question_id
			WHERE ans.attempt_id = $1 AND ans.question_id = $2
		`, attemptID, in.QuestionID).Scan(&marks, &pending)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: question %d", ErrAnswerNotPending, in.QuestionID)
		}
		if err != nil {
			return nil, fmt.Errorf("load answer for evaluation: %w", err)
		}
		if !pending {
			return nil, fmt.Errorf("%w: question %d", ErrAnswerNotPending, in.QuestionID)
		}
		if in.Score < 0 || in.Score > marks {
			return nil, fmt.Errorf("%w: question %d allows 0..%g", ErrScoreOutOfRange, in.QuestionID, marks)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE answers
			SET score_awarded = $1, needs_evaluation = $2, updated_at = $3
			WHERE attempt_id = $4 AND question_id = $5
		`, in.Score, false, now, attemptID, in.QuestionID); err != nil {
			return nil, fmt.Errorf("apply evaluation score: %w", err)
		}
	}

	var remaining int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM answers WHERE attempt_id = $1 AND needs_evaluation
	`, attemptID).Scan(&remaining); err != nil {
		return nil, fmt.Errorf("count pending answers: %w", err)
	}

	var total float64
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(score_awarded), 0) FROM answers WHERE attempt_id = $1
	`, attemptID).Scan(&total); err != nil {
		return nil, fmt.Errorf("recompute total score: %w", err)
	}

	newStatus := exam.StatusCompleted
	if remaining == 0 {
		newStatus = exam.StatusEvaluated
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE attempts SET total_score = $1, status = $2 WHERE id = $3
	`, total, newStatus, attemptID); err != nil {
		return nil, fmt.Errorf("update attempt after evaluation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit evaluation: %w", err)
	}

	return &EvaluationResult{
		AttemptID:    attemptID,
		Status:       newStatus,
		TotalScore:   total,
		PendingCount: remaining,
	}, nil
}

// PublishResults makes an exam's outcomes visible. Evaluated attempts move to
// published; completed attempts with nothing left to evaluate are promoted
// through evaluated in the same pass. Attempts still holding pending text
// answers stay where they are.
func (s *Service) PublishResults(ctx context.Context, examID int64) (int, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM exams WHERE id = $1)
	`, examID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check exam: %w", err)
	}
	if !exists {
		return 0, ErrExamNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin publish tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE attempts
		SET status = $1
		WHERE exam_id = $2 AND status = $3
		  AND NOT EXISTS (SELECT 1 FROM answers ans WHERE ans.attempt_id = attempts.id AND ans.needs_evaluation)
	`, exam.StatusEvaluated, examID, exam.StatusCompleted); err != nil {
		return 0, fmt.Errorf("promote completed attempts: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE attempts SET status = $1 WHERE exam_id = $2 AND status = $3
	`, exam.StatusPublished, examID, exam.StatusEvaluated)
	if err != nil {
		return 0, fmt.Errorf("publish attempts: %w", err)
	}
	published, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, `
		UPDATE exams SET results_published = $1, updated_at = $2 WHERE id = $3
	`, true, s.now().Unix(), examID); err != nil {
		return 0, fmt.Errorf("mark results published: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit publish: %w", err)
	}
	return int(published), nil
}

func (s *Service) loadAttemptStatus(ctx context.Context, attemptID int64) (exam.Status, error) {
	var status exam.Status
	err := s.db.QueryRowContext(ctx, `
		SELECT status FROM attempts WHERE id = $1
	`, attemptID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrAttemptNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load attempt status: %w", err)
	}
	return status, nil
}

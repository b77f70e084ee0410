package question

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

type Service struct {
	db  *sql.DB
	now func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

type CreateExamInput struct {
	Title            string `validate:"required"`
	Description      string
	DurationMinutes  int     `validate:"gt=0"`
	PassingMarks     float64 `validate:"gte=0"`
	StartAt          *time.Time
	EndAt            *time.Time
	ShuffleQuestions bool
	RequireCode      bool
	CreatedBy        int64
}

type UpdateExamInput struct {
	ID               int64  `validate:"gt=0"`
	Title            string `validate:"required"`
	Description      string
	DurationMinutes  int     `validate:"gt=0"`
	PassingMarks     float64 `validate:"gte=0"`
	StartAt          *time.Time
	EndAt            *time.Time
	ShuffleQuestions bool
}

type UpsertQuestionInput struct {
	ExamID        int64  `validate:"gt=0"`
	QuestionID    int64  // zero on create
	Text          string `validate:"required"`
	Type          string `validate:"required"`
	Options       []string
	CorrectAnswer string
	Marks         float64 `validate:"gt=0"`
	OrderNumber   int     `validate:"gt=0"`
}

func (s *Service) CreateExam(ctx context.Context, in CreateExamInput) (*Exam, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if in.StartAt != nil && in.EndAt != nil && in.EndAt.Before(*in.StartAt) {
		return nil, fmt.Errorf("%w: end_at before start_at", ErrInvalidInput)
	}

	var accessCode string
	if in.RequireCode {
		accessCode = newAccessCode()
	}

	now := s.now().Unix()
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO exams (title, description, duration_minutes, total_marks, passing_marks,
			status, start_at, end_at, shuffle_questions, results_published, access_code,
			created_by, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`, in.Title, in.Description, in.DurationMinutes, in.PassingMarks,
		ExamStatusDraft, unixOrNil(in.StartAt), unixOrNil(in.EndAt), in.ShuffleQuestions,
		false, nullString(accessCode), in.CreatedBy, now, now).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert exam: %w", err)
	}
	return s.GetExam(ctx, id)
}

// UpdateExam rewrites exam content and timing. Once any attempt exists the
// exam is locked: only status and result publication may change, through
// their dedicated operations.
func (s *Service) UpdateExam(ctx context.Context, in UpdateExamInput) (*Exam, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if in.StartAt != nil && in.EndAt != nil && in.EndAt.Before(*in.StartAt) {
		return nil, fmt.Errorf("%w: end_at before start_at", ErrInvalidInput)
	}

	if _, err := s.GetExam(ctx, in.ID); err != nil {
		return nil, err
	}
	locked, err := s.examLocked(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, ErrExamLocked
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE exams
		SET title = $1, description = $2, duration_minutes = $3, passing_marks = $4,
			start_at = $5, end_at = $6, shuffle_questions = $7, updated_at = $8
		WHERE id = $9
	`, in.Title, in.Description, in.DurationMinutes, in.PassingMarks,
		unixOrNil(in.StartAt), unixOrNil(in.EndAt), in.ShuffleQuestions, s.now().Unix(), in.ID)
	if err != nil {
		return nil, fmt.Errorf("update exam: %w", err)
	}
	return s.GetExam(ctx, in.ID)
}

// SetExamStatus moves the exam between draft, active and inactive. Allowed
// even on locked exams so a running exam can be closed.
func (s *Service) SetExamStatus(ctx context.Context, examID int64, status string) (*Exam, error) {
	if !ValidExamStatus(status) {
		return nil, fmt.Errorf("%w: status", ErrInvalidInput)
	}
	if _, err := s.GetExam(ctx, examID); err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE exams SET status = $1, updated_at = $2 WHERE id = $3
	`, status, s.now().Unix(), examID); err != nil {
		return nil, fmt.Errorf("update exam status: %w", err)
	}
	return s.GetExam(ctx, examID)
}

func (s *Service) DeleteExam(ctx context.Context, examID int64) error {
	if _, err := s.GetExam(ctx, examID); err != nil {
		return err
	}
	locked, err := s.examLocked(ctx, examID)
	if err != nil {
		return err
	}
	if locked {
		return ErrExamLocked
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM exams WHERE id = $1`, examID); err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	return nil
}

// RegenerateAccessCode replaces the join code. Handing out a fresh code
// invalidates the old one for everyone who has not started yet.
func (s *Service) RegenerateAccessCode(ctx context.Context, examID int64) (*Exam, error) {
	if _, err := s.GetExam(ctx, examID); err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE exams SET access_code = $1, updated_at = $2 WHERE id = $3
	`, newAccessCode(), s.now().Unix(), examID); err != nil {
		return nil, fmt.Errorf("update access code: %w", err)
	}
	return s.GetExam(ctx, examID)
}

func (s *Service) GetExam(ctx context.Context, examID int64) (*Exam, error) {
	return scanExam(s.db.QueryRowContext(ctx, `
		SELECT id, title, description, duration_minutes, total_marks, passing_marks, status,
		       start_at, end_at, shuffle_questions, results_published, access_code,
		       created_by, created_at, updated_at
		FROM exams WHERE id = $1
	`, examID))
}

// ListExams returns all exams for staff, or active ones only.
func (s *Service) ListExams(ctx context.Context, includeAll bool) ([]Exam, error) {
	query := `
		SELECT id, title, description, duration_minutes, total_marks, passing_marks, status,
		       start_at, end_at, shuffle_questions, results_published, access_code,
		       created_by, created_at, updated_at
		FROM exams`
	args := []interface{}{}
	if !includeAll {
		query += ` WHERE status = $1`
		args = append(args, ExamStatusActive)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query exams: %w", err)
	}
	defer rows.Close()

	out := make([]Exam, 0)
	for rows.Next() {
		exam, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *exam)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exams: %w", err)
	}
	return out, nil
}

func (s *Service) UpsertQuestion(ctx context.Context, in UpsertQuestionInput) (*Question, error) {
	in.Text = strings.TrimSpace(in.Text)
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := validateQuestionContent(&in); err != nil {
		return nil, err
	}

	if _, err := s.GetExam(ctx, in.ExamID); err != nil {
		return nil, err
	}
	locked, err := s.examLocked(ctx, in.ExamID)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, ErrExamLocked
	}

	taken, err := s.orderTaken(ctx, in.ExamID, in.OrderNumber, in.QuestionID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrOrderTaken
	}

	optsJSON, err := json.Marshal(in.Options)
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}

	var questionID int64
	if in.QuestionID > 0 {
		res, err := s.db.ExecContext(ctx, `
			UPDATE questions
			SET question_text = $1, qtype = $2, options_json = $3, correct_answer = $4,
				marks = $5, order_number = $6
			WHERE id = $7 AND exam_id = $8
		`, in.Text, in.Type, string(optsJSON), in.CorrectAnswer, in.Marks, in.OrderNumber,
			in.QuestionID, in.ExamID)
		if err != nil {
			return nil, fmt.Errorf("update question: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return nil, ErrQuestionNotFound
		}
		questionID = in.QuestionID
	} else {
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO questions (exam_id, question_text, qtype, options_json, correct_answer, marks, order_number)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`, in.ExamID, in.Text, in.Type, string(optsJSON), in.CorrectAnswer, in.Marks, in.OrderNumber).Scan(&questionID)
		if err != nil {
			return nil, fmt.Errorf("insert question: %w", err)
		}
	}

	if err := s.recomputeTotalMarks(ctx, in.ExamID); err != nil {
		return nil, err
	}
	return s.GetQuestion(ctx, in.ExamID, questionID)
}

func (s *Service) DeleteQuestion(ctx context.Context, examID, questionID int64) error {
	locked, err := s.examLocked(ctx, examID)
	if err != nil {
		return err
	}
	if locked {
		return ErrExamLocked
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM questions WHERE id = $1 AND exam_id = $2
	`, questionID, examID)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrQuestionNotFound
	}
	return s.recomputeTotalMarks(ctx, examID)
}

func (s *Service) GetQuestion(ctx context.Context, examID, questionID int64) (*Question, error) {
	q := &Question{}
	var optsRaw string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, exam_id, question_text, qtype, options_json, correct_answer, marks, order_number
		FROM questions WHERE id = $1 AND exam_id = $2
	`, questionID, examID).Scan(&q.ID, &q.ExamID, &q.Text, &q.Type, &optsRaw, &q.CorrectAnswer, &q.Marks, &q.OrderNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load question: %w", err)
	}
	if optsRaw != "" {
		if err := json.Unmarshal([]byte(optsRaw), &q.Options); err != nil {
			return nil, fmt.Errorf("decode options: %w", err)
		}
	}
	return q, nil
}

func (s *Service) ListQuestions(ctx context.Context, examID int64) ([]Question, error) {
	if _, err := s.GetExam(ctx, examID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, exam_id, question_text, qtype, options_json, correct_answer, marks, order_number
		FROM questions WHERE exam_id = $1 ORDER BY order_number
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	out := make([]Question, 0)
	for rows.Next() {
		var q Question
		var optsRaw string
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Text, &q.Type, &optsRaw, &q.CorrectAnswer, &q.Marks, &q.OrderNumber); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if optsRaw != "" {
			if err := json.Unmarshal([]byte(optsRaw), &q.Options); err != nil {
				return nil, fmt.Errorf("decode options: %w", err)
			}
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return out, nil
}

func validateQuestionContent(in *UpsertQuestionInput) error {
	if !ValidQuestionType(in.Type) {
		return fmt.Errorf("%w: type", ErrInvalidInput)
	}
	switch in.Type {
	case TypeMCQ:
		if len(in.Options) < 2 {
			return fmt.Errorf("%w: mcq needs at least two options", ErrInvalidInput)
		}
		found := false
		for _, opt := range in.Options {
			if opt == in.CorrectAnswer {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: correct_answer must match one option", ErrInvalidInput)
		}
	case TypeTrueFalse:
		in.Options = []string{"true", "false"}
		if in.CorrectAnswer != "true" && in.CorrectAnswer != "false" {
			return fmt.Errorf("%w: correct_answer must be true or false", ErrInvalidInput)
		}
	case TypeText:
		in.Options = nil
		in.CorrectAnswer = ""
	}
	return nil
}

// examLocked reports whether any attempt references the exam. Content becomes
// immutable at that point so every attempt of the exam was taken against the
// same questions.
func (s *Service) examLocked(ctx context.Context, examID int64) (bool, error) {
	var locked bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM attempts WHERE exam_id = $1)
	`, examID).Scan(&locked)
	if err != nil {
		return false, fmt.Errorf("check exam attempts: %w", err)
	}
	return locked, nil
}

func (s *Service) orderTaken(ctx context.Context, examID int64, orderNumber int, excludeID int64) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM questions WHERE exam_id = $1 AND order_number = $2 AND id <> $3)
	`, examID, orderNumber, excludeID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check order number: %w", err)
	}
	return taken, nil
}

func (s *Service) recomputeTotalMarks(ctx context.Context, examID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE exams
		SET total_marks = COALESCE((SELECT SUM(marks) FROM questions WHERE exam_id = $1), 0),
			updated_at = $2
		WHERE id = $3
	`, examID, s.now().Unix(), examID)
	if err != nil {
		return fmt.Errorf("recompute total marks: %w", err)
	}
	return nil
}

func scanExam(row interface {
	Scan(dest ...interface{}) error
}) (*Exam, error) {
	exam := &Exam{}
	var (
		startAt, endAt sql.NullInt64
		accessCode     sql.NullString
		createdBy      sql.NullInt64
		createdAt      int64
		updatedAt      int64
	)
	err := row.Scan(
		&exam.ID, &exam.Title, &exam.Description, &exam.DurationMinutes, &exam.TotalMarks,
		&exam.PassingMarks, &exam.Status, &startAt, &endAt, &exam.ShuffleQuestions,
		&exam.ResultsPublished, &accessCode, &createdBy, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan exam: %w", err)
	}
	if startAt.Valid {
		t := time.Unix(startAt.Int64, 0).UTC()
		exam.StartAt = &t
	}
	if endAt.Valid {
		t := time.Unix(endAt.Int64, 0).UTC()
		exam.EndAt = &t
	}
	if accessCode.Valid {
		exam.AccessCode = accessCode.String
	}
	if createdBy.Valid {
		v := createdBy.Int64
		exam.CreatedBy = &v
	}
	exam.CreatedAt = time.Unix(createdAt, 0).UTC()
	exam.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return exam, nil
}

func newAccessCode() string {
	// First UUID block is enough entropy for a join code and stays typeable.
	return strings.ToUpper(strings.SplitN(uuid.NewString(), "-", 2)[0])
}

func unixOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

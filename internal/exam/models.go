package exam

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrExamNotFound       = errors.New("exam not found")
	ErrExamNotAvailable   = errors.New("exam is not open for attempts")
	ErrAccessCodeInvalid  = errors.New("invalid exam access code")
	ErrAttemptNotFound    = errors.New("attempt not found")
	ErrAttemptNotEditable = errors.New("attempt is not editable")
	ErrAttemptForbidden   = errors.New("attempt forbidden")
	ErrQuestionNotInExam  = errors.New("question not in exam")
	ErrInvalidTransition  = errors.New("invalid attempt status transition")
	ErrInvalidEventType   = errors.New("invalid event type")
)

type Attempt struct {
	ID          int64      `json:"id"`
	ExamID      int64      `json:"exam_id"`
	UserID      int64      `json:"user_id"`
	Status      Status     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	TotalScore  float64    `json:"total_score"`
}

// ExamSummary is the slice of the exam a test-taker needs while attempting:
// enough to run the countdown and render the shell, nothing that would let a
// client reconstruct answer keys.
type ExamSummary struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title"`
	DurationMinutes  int     `json:"duration_minutes"`
	TotalMarks       float64 `json:"total_marks"`
	PassingMarks     float64 `json:"passing_marks"`
	ShuffleQuestions bool    `json:"shuffle_questions"`
	ResultsPublished bool    `json:"results_published"`
}

type AttemptSummary struct {
	ID             int64       `json:"id"`
	ExamID         int64       `json:"exam_id"`
	UserID         int64       `json:"user_id"`
	Status         Status      `json:"status"`
	StartedAt      time.Time   `json:"started_at"`
	SubmittedAt    *time.Time  `json:"submitted_at,omitempty"`
	RemainingSecs  int64       `json:"remaining_secs"`
	TotalQuestions int         `json:"total_questions"`
	Answered       int         `json:"answered"`
	TotalScore     float64     `json:"total_score"`
	Exam           ExamSummary `json:"exam"`
}

type Answer struct {
	ID              int64     `json:"id"`
	AttemptID       int64     `json:"attempt_id"`
	QuestionID      int64     `json:"question_id"`
	AnswerText      string    `json:"answer_text"`
	IsCorrect       *bool     `json:"is_correct,omitempty"`
	ScoreAwarded    *float64  `json:"score_awarded,omitempty"`
	NeedsEvaluation bool      `json:"needs_evaluation"`
	Seq             int64     `json:"seq"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type SaveAnswerInput struct {
	AttemptID  int64
	QuestionID int64
	AnswerText string
	Seq        int64
}

type AttemptEvent struct {
	ID        int64           `json:"id"`
	AttemptID int64           `json:"attempt_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	ClientTS  *time.Time      `json:"client_ts,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type AttemptEventInput struct {
	AttemptID int64
	EventType string
	Payload   json.RawMessage
	ClientTS  *time.Time
}

// Event types the client may report. The list is closed so the event log
// stays queryable.
var knownEventTypes = map[string]struct{}{
	"tab_blur":        {},
	"tab_focus":       {},
	"fullscreen_exit": {},
	"autosave_failed": {},
	"clock_warning":   {},
	"connection_lost": {},
	"connection_back": {},
}

func ValidEventType(t string) bool {
	_, ok := knownEventTypes[t]
	return ok
}

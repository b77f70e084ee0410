package question

import (
	"errors"
	"time"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrExamNotFound     = errors.New("exam not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrExamLocked       = errors.New("exam has attempts and cannot be modified")
	ErrOrderTaken       = errors.New("order number already used in this exam")
)

const (
	ExamStatusDraft    = "draft"
	ExamStatusActive   = "active"
	ExamStatusInactive = "inactive"
)

const (
	TypeMCQ       = "mcq"
	TypeTrueFalse = "truefalse"
	TypeText      = "text"
)

type Exam struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	DurationMinutes  int        `json:"duration_minutes"`
	TotalMarks       float64    `json:"total_marks"`
	PassingMarks     float64    `json:"passing_marks"`
	Status           string     `json:"status"`
	StartAt          *time.Time `json:"start_at,omitempty"`
	EndAt            *time.Time `json:"end_at,omitempty"`
	ShuffleQuestions bool       `json:"shuffle_questions"`
	ResultsPublished bool       `json:"results_published"`
	AccessCode       string     `json:"access_code,omitempty"`
	CreatedBy        *int64     `json:"created_by,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type Question struct {
	ID            int64    `json:"id"`
	ExamID        int64    `json:"exam_id"`
	Text          string   `json:"text"`
	Type          string   `json:"type"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
	Marks         float64  `json:"marks"`
	OrderNumber   int      `json:"order_number"`
}

func ValidExamStatus(s string) bool {
	switch s {
	case ExamStatusDraft, ExamStatusActive, ExamStatusInactive:
		return true
	}
	return false
}

func ValidQuestionType(t string) bool {
	switch t {
	case TypeMCQ, TypeTrueFalse, TypeText:
		return true
	}
	return false
}

// Objective reports whether a question type is auto-gradable at submit time.
func Objective(t string) bool {
	return t == TypeMCQ || t == TypeTrueFalse
}

package question

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"examserve/internal/db"
)

func newTestService(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	conn, err := db.Open(context.Background(), db.DriverSQLite, "file::memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewService(conn), conn
}

// lockExam inserts a user and an attempt so the exam counts as taken.
func lockExam(t *testing.T, conn *sql.DB, examID int64) {
	t.Helper()
	ctx := context.Background()
	var userID int64
	err := conn.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, full_name, role, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, "locker@example.com", "x", "Locker", "student", true, time.Now().Unix()).Scan(&userID)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	_, err = conn.ExecContext(ctx, `
		INSERT INTO attempts (user_id, exam_id, status, started_at)
		VALUES ($1, $2, $3, $4)
	`, userID, examID, "in_progress", time.Now().Unix())
	if err != nil {
		t.Fatalf("seed attempt: %v", err)
	}
}

func mustCreateExam(t *testing.T, svc *Service, in CreateExamInput) *Exam {
	t.Helper()
	exam, err := svc.CreateExam(context.Background(), in)
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}
	return exam
}

func TestCreateExamDefaults(t *testing.T) {
	svc, _ := newTestService(t)

	exam := mustCreateExam(t, svc, CreateExamInput{
		Title:           "  Midterm  ",
		DurationMinutes: 60,
		PassingMarks:    10,
	})

	if exam.Title != "Midterm" {
		t.Fatalf("title should be trimmed, got %q", exam.Title)
	}
	if exam.Status != ExamStatusDraft {
		t.Fatalf("new exams start as draft, got %s", exam.Status)
	}
	if exam.TotalMarks != 0 {
		t.Fatalf("total marks start at zero, got %g", exam.TotalMarks)
	}
	if exam.AccessCode != "" {
		t.Fatalf("no access code unless requested, got %q", exam.AccessCode)
	}
}

func TestCreateExamValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	start := time.Now()
	end := start.Add(-time.Hour)

	tests := []struct {
		name string
		in   CreateExamInput
	}{
		{name: "missing title", in: CreateExamInput{DurationMinutes: 30}},
		{name: "zero duration", in: CreateExamInput{Title: "Quiz"}},
		{name: "end before start", in: CreateExamInput{Title: "Quiz", DurationMinutes: 30, StartAt: &start, EndAt: &end}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateExam(ctx, tc.in); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestCreateExamWithAccessCode(t *testing.T) {
	svc, _ := newTestService(t)

	exam := mustCreateExam(t, svc, CreateExamInput{
		Title:           "Gated",
		DurationMinutes: 30,
		RequireCode:     true,
	})

	if len(exam.AccessCode) != 8 {
		t.Fatalf("expected an 8 character access code, got %q", exam.AccessCode)
	}
}

func TestRegenerateAccessCode(t *testing.T) {
	svc, _ := newTestService(t)
	exam := mustCreateExam(t, svc, CreateExamInput{Title: "Gated", DurationMinutes: 30, RequireCode: true})

	updated, err := svc.RegenerateAccessCode(context.Background(), exam.ID)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if updated.AccessCode == "" || updated.AccessCode == exam.AccessCode {
		t.Fatalf("expected a fresh code, old %q new %q", exam.AccessCode, updated.AccessCode)
	}
}

func TestUpsertQuestionRecomputesTotalMarks(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	exam := mustCreateExam(t, svc, CreateExamInput{Title: "Quiz", DurationMinutes: 30})

	q1, err := svc.UpsertQuestion(ctx, UpsertQuestionInput{
		ExamID:        exam.ID,
		Text:          "2 + 2?",
		Type:          TypeMCQ,
		Options:       []string{"3", "4"},
		CorrectAnswer: "4",
		Marks:         2,
		OrderNumber:   1,
	})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	if _, err := svc.UpsertQuestion(ctx, UpsertQuestionInput{
		ExamID:        exam.ID,
		Text:          "The sky is blue.",
		Type:          TypeTrueFalse,
		CorrectAnswer: "true",
		Marks:         3,
		OrderNumber:   2,
	}); err != nil {
		t.Fatalf("create question: %v", err)
	}

	got, err := svc.GetExam(ctx, exam.ID)
	if err != nil {
		t.Fatalf("get exam: %v", err)
	}
	if got.TotalMarks != 5 {
		t.Fatalf("total marks = %g, want 5", got.TotalMarks)
	}

	// Raising a question's marks updates the total.
	if _, err := svc.UpsertQuestion(ctx, UpsertQuestionInput{
		ExamID:        exam.ID,
		QuestionID:    q1.ID,
		Text:          "2 + 2?",
		Type:          TypeMCQ,
		Options:       []string{"3", "4"},
		CorrectAnswer: "4",
		Marks:         4,
		OrderNumber:   1,
	}); err != nil {
		t.Fatalf("update question: %v", err)
	}
	got, err = svc.GetExam(ctx, exam.ID)
	if err != nil {
		t.Fatalf("get exam: %v", err)
	}
	if got.TotalMarks != 7 {
		t.Fatalf("total marks after update = %g, want 7", got.TotalMarks)
	}

	if err := svc.DeleteQuestion(ctx, exam.ID, q1.ID); err != nil {
		t.Fatalf("delete question: %v", err)
	}
	got, err = svc.GetExam(ctx, exam.ID)
	if err != nil {
		t.Fatalf("get exam: %v", err)
	}
	if got.TotalMarks != 3 {
		t.Fatalf("total marks after delete = %g, want 3", got.TotalMarks)
	}
}

func TestUpsertQuestionContentRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	exam := mustCreateExam(t, svc, CreateExamInput{Title: "Quiz", DurationMinutes: 30})

	tests := []struct {
		name string
		in   UpsertQuestionInput
	}{
		{
			name: "mcq needs two options",
			in: UpsertQuestionInput{
				ExamID: exam.ID, Text: "Pick", Type: TypeMCQ,
				Options: []string{"A"}, CorrectAnswer: "A", Marks: 1, OrderNumber: 1,
			},
		},
		{
			name: "mcq answer must be an option",
			in: UpsertQuestionInput{
				ExamID: exam.ID, Text: "Pick", Type: TypeMCQ,
				Options: []string{"A", "B"}, CorrectAnswer: "C", Marks: 1, OrderNumber: 1,
			},
		},
		{
			name: "truefalse answer restricted",
			in: UpsertQuestionInput{
				ExamID: exam.ID, Text: "Claim", Type: TypeTrueFalse,
				CorrectAnswer: "yes", Marks: 1, OrderNumber: 1,
			},
		},
		{
			name: "unknown type",
			in: UpsertQuestionInput{
				ExamID: exam.ID, Text: "Claim", Type: "matching",
				Marks: 1, OrderNumber: 1,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.UpsertQuestion(ctx, tc.in); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestUpsertTextQuestionDropsKeyFields(t *testing.T) {
	svc, _ := newTestService(t)
	exam := mustCreateExam(t, svc, CreateExamInput{Title: "Quiz", DurationMinutes: 30})

	q, err := svc.UpsertQuestion(context.Background(), UpsertQuestionInput{
		ExamID:        exam.ID,
		Text:          "Explain.",
		Type:          TypeText,
		Options:       []string{"ignored"},
		CorrectAnswer: "ignored",
		Marks:         5,
		OrderNumber:   1,
	})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	if len(q.Options) != 0 || q.CorrectAnswer != "" {
		t.Fatalf("text questions keep no options or answer key: %+v", q)
	}
}

func TestUpsertQuestionOrderTaken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	exam := mustCreateExam(t, svc, CreateExamInput{Title: "Quiz", DurationMinutes: 30})

	first, err := svc.UpsertQuestion(ctx, UpsertQuestionInput{
		ExamID: exam.ID, Text: "Q1", Type: TypeTrueFalse, CorrectAnswer: "true",
		Marks: 1, OrderNumber: 1,
	})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}

	_, err = svc.UpsertQuestion(ctx, UpsertQuestionInput{
		ExamID: exam.ID, Text: "Q2", Type: TypeTrueFalse, CorrectAnswer: "false",
		Marks: 1, OrderNumber: 1,
	})
	if !errors.Is(err, ErrOrderTaken) {
		t.Fatalf("expected ErrOrderTaken, got %v", err)
	}

	// Updating a question in place may keep its own slot.
	if _, err := svc.UpsertQuestion(ctx, UpsertQuestionInput{
		ExamID: exam.ID, QuestionID: first.ID, Text: "Q1 edited", Type: TypeTrueFalse,
		CorrectAnswer: "true", Marks: 1, OrderNumber: 1,
	}); err != nil {
		t.Fatalf("self-update should not collide: %v", err)
	}
}

func TestExamLockedAfterFirstAttempt(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	exam := mustCreateExam(t, svc, CreateExamInput{Title: "Quiz", DurationMinutes: 30})

	if _, err := svc.UpsertQuestion(ctx, UpsertQuestionInput{
		ExamID: exam.ID, Text: "Q1", Type: TypeTrueFalse, CorrectAnswer: "true",
		Marks: 1, OrderNumber: 1,
	}); err != nil {
		t.Fatalf("create question: %v", err)
	}

	lockExam(t, conn, exam.ID)

	if _, err := svc.UpdateExam(ctx, UpdateExamInput{
		ID: exam.ID, Title: "Quiz v2", DurationMinutes: 45,
	}); !errors.Is(err, ErrExamLocked) {
		t.Fatalf("update should be locked, got %v", err)
	}
	if _, err := svc.UpsertQuestion(ctx, UpsertQuestionInput{
		ExamID: exam.ID, Text: "Q2", Type: TypeTrueFalse, CorrectAnswer: "false",
		Marks: 1, OrderNumber: 2,
	}); !errors.Is(err, ErrExamLocked) {
		t.Fatalf("question upsert should be locked, got %v", err)
	}
	if err := svc.DeleteExam(ctx, exam.ID); !errors.Is(err, ErrExamLocked) {
		t.Fatalf("delete should be locked, got %v", err)
	}

	// Closing a running exam stays possible.
	updated, err := svc.SetExamStatus(ctx, exam.ID, ExamStatusInactive)
	if err != nil {
		t.Fatalf("status change should bypass the lock: %v", err)
	}
	if updated.Status != ExamStatusInactive {
		t.Fatalf("status = %s, want inactive", updated.Status)
	}
}

func TestListExamsFiltersByStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	draft := mustCreateExam(t, svc, CreateExamInput{Title: "Draft", DurationMinutes: 30})
	active := mustCreateExam(t, svc, CreateExamInput{Title: "Active", DurationMinutes: 30})
	if _, err := svc.SetExamStatus(ctx, active.ID, ExamStatusActive); err != nil {
		t.Fatalf("activate: %v", err)
	}

	visible, err := svc.ListExams(ctx, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != active.ID {
		t.Fatalf("students should see only active exams, got %+v", visible)
	}

	all, err := svc.ListExams(ctx, true)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("staff should see both exams, got %d", len(all))
	}
	_ = draft
}

func TestDeleteExamRemovesIt(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	exam := mustCreateExam(t, svc, CreateExamInput{Title: "Quiz", DurationMinutes: 30})

	if err := svc.DeleteExam(ctx, exam.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetExam(ctx, exam.ID); !errors.Is(err, ErrExamNotFound) {
		t.Fatalf("expected ErrExamNotFound, got %v", err)
	}
}

package report

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"examserve/internal/exam"

	"github.com/xuri/excelize/v2"
)

var ErrExamNotFound = errors.New("exam not found")

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

type ExamStats struct {
	ExamID        int64   `json:"exam_id"`
	Title         string  `json:"title"`
	TotalMarks    float64 `json:"total_marks"`
	PassingMarks  float64 `json:"passing_marks"`
	AttemptCount  int     `json:"attempt_count"`
	InProgress    int     `json:"in_progress"`
	Completed     int     `json:"completed"`
	Evaluated     int     `json:"evaluated"`
	Published     int     `json:"published"`
	Abandoned     int     `json:"abandoned"`
	PassedCount   int     `json:"passed_count"`
	AverageScore  float64 `json:"average_score"`
	HighestScore  float64 `json:"highest_score"`
	LowestScore   float64 `json:"lowest_score"`
}

type resultRow struct {
	AttemptID   int64
	FullName    string
	Email       string
	Status      exam.Status
	StartedAt   int64
	SubmittedAt sql.NullInt64
	TotalScore  float64
}

// Stats aggregates attempt outcomes for one exam. Scores only count attempts
// whose grading is final.
func (s *Service) Stats(ctx context.Context, examID int64) (*ExamStats, error) {
	stats := &ExamStats{ExamID: examID}
	err := s.db.QueryRowContext(ctx, `
		SELECT title, total_marks, passing_marks FROM exams WHERE id = $1
	`, examID).Scan(&stats.Title, &stats.TotalMarks, &stats.PassingMarks)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load exam: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, total_score FROM attempts WHERE exam_id = $1
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	first := true
	var sum float64
	var finals int
	for rows.Next() {
		var status exam.Status
		var score float64
		if err := rows.Scan(&status, &score); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		stats.AttemptCount++
		switch status {
		case exam.StatusPending, exam.StatusInProgress:
			stats.InProgress++
		case exam.StatusCompleted:
			stats.Completed++
		case exam.StatusEvaluated:
			stats.Evaluated++
		case exam.StatusPublished:
			stats.Published++
		case exam.StatusAbandoned:
			stats.Abandoned++
		}
		if !status.Final() {
			continue
		}
		finals++
		sum += score
		if score >= stats.PassingMarks && stats.PassingMarks > 0 {
			stats.PassedCount++
		}
		if first || score > stats.HighestScore {
			stats.HighestScore = score
		}
		if first || score < stats.LowestScore {
			stats.LowestScore = score
		}
		first = false
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	if finals > 0 {
		stats.AverageScore = sum / float64(finals)
	}
	return stats, nil
}

// ResultsExcel exports one row per attempt of the exam as an xlsx workbook.
func (s *Service) ResultsExcel(ctx context.Context, examID int64) ([]byte, error) {
	var title string
	err := s.db.QueryRowContext(ctx, `SELECT title FROM exams WHERE id = $1`, examID).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load exam: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, u.full_name, u.email, a.status, a.started_at, a.submitted_at, a.total_score
		FROM attempts a
		JOIN users u ON u.id = a.user_id
		WHERE a.exam_id = $1
		ORDER BY a.total_score DESC, a.id
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	items := make([]resultRow, 0)
	for rows.Next() {
		var it resultRow
		if err := rows.Scan(&it.AttemptID, &it.FullName, &it.Email, &it.Status, &it.StartedAt, &it.SubmittedAt, &it.TotalScore); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	headers := []string{"attempt_id", "full_name", "email", "status", "started_at", "submitted_at", "total_score"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, it := range items {
		row := i + 2
		submittedAt := ""
		if it.SubmittedAt.Valid {
			submittedAt = time.Unix(it.SubmittedAt.Int64, 0).UTC().Format("2006-01-02 15:04:05")
		}
		values := []any{
			it.AttemptID,
			it.FullName,
			it.Email,
			string(it.Status),
			time.Unix(it.StartedAt, 0).UTC().Format("2006-01-02 15:04:05"),
			submittedAt,
			it.TotalScore,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "G", 22)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

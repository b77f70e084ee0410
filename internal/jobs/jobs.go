package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"examserve/internal/exam"
	"examserve/internal/question"

	"github.com/robfig/cron/v3"
)

// Runner owns the background schedules: sweeping overdue attempts and
// closing exams whose window has ended.
type Runner struct {
	db   *sql.DB
	exam *exam.Service
	cron *cron.Cron
}

func NewRunner(db *sql.DB, examSvc *exam.Service) *Runner {
	return &Runner{db: db, exam: examSvc, cron: cron.New()}
}

// Start registers the schedules and runs them until Stop. The sweep interval
// bounds how late an abandoned client's attempt gets finalized; one minute
// keeps the lag short without hammering the database.
func (r *Runner) Start() error {
	if _, err := r.cron.AddFunc("@every 1m", r.sweepExpiredAttempts); err != nil {
		return fmt.Errorf("schedule attempt sweep: %w", err)
	}
	if _, err := r.cron.AddFunc("@every 1m", r.closeEndedExams); err != nil {
		return fmt.Errorf("schedule exam close: %w", err)
	}
	r.cron.Start()
	return nil
}

func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

func (r *Runner) sweepExpiredAttempts() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := r.exam.SweepExpired(ctx)
	if err != nil {
		log.Printf("jobs: sweep expired attempts: %v", err)
		return
	}
	if n > 0 {
		log.Printf("jobs: finalized %d expired attempts", n)
	}
}

// closeEndedExams deactivates active exams whose end_at has passed so new
// attempts stop immediately even before anyone reads the exam.
func (r *Runner) closeEndedExams() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().Unix()
	res, err := r.db.ExecContext(ctx, `
		UPDATE exams
		SET status = $1, updated_at = $2
		WHERE status = $3 AND end_at IS NOT NULL AND end_at < $4
	`, question.ExamStatusInactive, now, question.ExamStatusActive, now)
	if err != nil {
		log.Printf("jobs: close ended exams: %v", err)
		return
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		log.Printf("jobs: closed %d ended exams", n)
	}
}

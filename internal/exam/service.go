package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"examserve/internal/question"
)

type Service struct {
	db  *sql.DB
	now func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// WithClock overrides the service clock. Tests use it to exercise expiry
// without sleeping.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type attemptRow struct {
	ID          int64
	ExamID      int64
	UserID      int64
	Status      Status
	StartedAt   int64
	SubmittedAt sql.NullInt64
	TotalScore  float64
}

type examRow struct {
	ID               int64
	Title            string
	DurationMinutes  int
	TotalMarks       float64
	PassingMarks     float64
	Status           string
	StartAt          sql.NullInt64
	EndAt            sql.NullInt64
	ShuffleQuestions bool
	ResultsPublished bool
	AccessCode       sql.NullString
}

type queryable interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// StartAttempt is idempotent per (user, exam): if an editable attempt already
// exists it is returned as-is, so a double click or a retried request never
// creates a second attempt.
func (s *Service) StartAttempt(ctx context.Context, examID, userID int64, accessCode string) (*Attempt, error) {
	exam, err := s.loadExamRow(ctx, s.db, examID)
	if err != nil {
		return nil, err
	}

	existing, err := s.findActiveAttempt(ctx, examID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := s.now().Unix()
	if exam.Status != question.ExamStatusActive {
		return nil, ErrExamNotAvailable
	}
	if exam.StartAt.Valid && now < exam.StartAt.Int64 {
		return nil, ErrExamNotAvailable
	}
	if exam.EndAt.Valid && now > exam.EndAt.Int64 {
		return nil, ErrExamNotAvailable
	}
	if code := strings.TrimSpace(exam.AccessCode.String); exam.AccessCode.Valid && code != "" {
		if strings.TrimSpace(accessCode) != code {
			return nil, ErrAccessCodeInvalid
		}
	}

	var created Attempt
	var startedAt int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO attempts (user_id, exam_id, status, started_at, total_score)
		VALUES ($1, $2, $3, $4, 0)
		RETURNING id, exam_id, user_id, status, started_at, total_score
	`, userID, examID, StatusInProgress, now).Scan(
		&created.ID, &created.ExamID, &created.UserID, &created.Status, &startedAt, &created.TotalScore,
	)
	if err != nil {
		return nil, fmt.Errorf("insert attempt: %w", err)
	}
	created.StartedAt = time.Unix(startedAt, 0).UTC()
	return &created, nil
}

func (s *Service) findActiveAttempt(ctx context.Context, examID, userID int64) (*Attempt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, exam_id, user_id, status, started_at, total_score
		FROM attempts
		WHERE exam_id = $1 AND user_id = $2 AND status IN ($3, $4)
	`, examID, userID, StatusPending, StatusInProgress)

	var a Attempt
	var startedAt int64
	err := row.Scan(&a.ID, &a.ExamID, &a.UserID, &a.Status, &startedAt, &a.TotalScore)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active attempt: %w", err)
	}
	a.StartedAt = time.Unix(startedAt, 0).UTC()
	return &a, nil
}

// GetAttemptSummary returns the attempt with its remaining time computed from
// the server-recorded start, never from anything the client reports. Reading
// an overdue in-progress attempt finalizes it first.
func (s *Service) GetAttemptSummary(ctx context.Context, attemptID int64) (*AttemptSummary, error) {
	row, exam, err := s.loadAttemptWithExam(ctx, s.db, attemptID)
	if err != nil {
		return nil, err
	}

	if row.Status.Editable() && s.overdue(row, exam) {
		if _, err := s.finalizeAttempt(ctx, attemptID); err != nil {
			return nil, err
		}
		row, exam, err = s.loadAttemptWithExam(ctx, s.db, attemptID)
		if err != nil {
			return nil, err
		}
	}

	return s.buildSummary(ctx, s.db, row, exam)
}

// ListAttemptQuestions returns the attempt's question set in presentation
// order. With shuffling enabled the permutation is pinned to the attempt id,
// so reloads see a stable order. Payloads pass through the redaction policy
// for the caller's role.
func (s *Service) ListAttemptQuestions(ctx context.Context, attemptID int64, role string) ([]question.Question, error) {
	row, exam, err := s.loadAttemptWithExam(ctx, s.db, attemptID)
	if err != nil {
		return nil, err
	}

	qs, err := s.loadQuestions(ctx, s.db, row.ExamID)
	if err != nil {
		return nil, err
	}
	if exam.ShuffleQuestions {
		qs = ShuffleForAttempt(qs, row.ID)
	}
	return question.RedactAllForRole(qs, role), nil
}

// SaveAnswer upserts one answer row. Repeated saves of the same question are
// idempotent overwrites; a save carrying a seq lower than the stored one is a
// stale autosave and is dropped so it cannot clobber a newer flush.
func (s *Service) SaveAnswer(ctx context.Context, in SaveAnswerInput) error {
	row, exam, err := s.loadAttemptWithExam(ctx, s.db, in.AttemptID)
	if err != nil {
		return err
	}
	if !row.Status.Editable() {
		return ErrAttemptNotEditable
	}
	if s.overdue(row, exam) {
		_, _ = s.finalizeAttempt(ctx, in.AttemptID)
		return ErrAttemptNotEditable
	}
	return s.upsertAnswer(ctx, s.db, row, in)
}

// SaveAnswers is the periodic flush-all: every held answer is re-saved in one
// transaction with the same per-row semantics as SaveAnswer.
func (s *Service) SaveAnswers(ctx context.Context, attemptID int64, inputs []SaveAnswerInput) error {
	row, exam, err := s.loadAttemptWithExam(ctx, s.db, attemptID)
	if err != nil {
		return err
	}
	if !row.Status.Editable() {
		return ErrAttemptNotEditable
	}
	if s.overdue(row, exam) {
		_, _ = s.finalizeAttempt(ctx, attemptID)
		return ErrAttemptNotEditable
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk save tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, in := range inputs {
		in.AttemptID = attemptID
		if err := s.upsertAnswer(ctx, tx, row, in); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk save: %w", err)
	}
	return nil
}

func (s *Service) upsertAnswer(ctx context.Context, q queryable, row *attemptRow, in SaveAnswerInput) error {
	var qtype string
	err := q.QueryRowContext(ctx, `
		SELECT qtype FROM questions WHERE id = $1 AND exam_id = $2
	`, in.QuestionID, row.ExamID).Scan(&qtype)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrQuestionNotInExam
	}
	if err != nil {
		return fmt.Errorf("validate question in exam: %w", err)
	}

	needsEval := qtype == question.TypeText && strings.TrimSpace(in.AnswerText) != ""

	_, err = q.ExecContext(ctx, `
		INSERT INTO answers (attempt_id, question_id, answer_text, needs_evaluation, seq, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (attempt_id, question_id) DO UPDATE SET
			answer_text = excluded.answer_text,
			needs_evaluation = excluded.needs_evaluation,
			seq = excluded.seq,
			updated_at = excluded.updated_at
		WHERE excluded.seq >= answers.seq
	`, in.AttemptID, in.QuestionID, in.AnswerText, needsEval, in.Seq, s.now().Unix())
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	return nil
}

// ListAnswers hydrates an in-progress attempt after a reload.
func (s *Service) ListAnswers(ctx context.Context, attemptID int64) ([]Answer, error) {
	if _, err := s.loadAttemptRow(ctx, s.db, attemptID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, attempt_id, question_id, answer_text, is_correct, score_awarded, needs_evaluation, seq, updated_at
		FROM answers
		WHERE attempt_id = $1
		ORDER BY question_id
	`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	out := make([]Answer, 0)
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return out, nil
}

func scanAnswer(rows *sql.Rows) (Answer, error) {
	var (
		a         Answer
		isCorrect sql.NullBool
		score     sql.NullFloat64
		updatedAt int64
	)
	if err := rows.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &a.AnswerText, &isCorrect, &score, &a.NeedsEvaluation, &a.Seq, &updatedAt); err != nil {
		return Answer{}, fmt.Errorf("scan answer: %w", err)
	}
	if isCorrect.Valid {
		v := isCorrect.Bool
		a.IsCorrect = &v
	}
	if score.Valid {
		v := score.Float64
		a.ScoreAwarded = &v
	}
	a.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return a, nil
}

// SubmitAttempt finalizes the attempt: grades every objective answer, leaves
// text answers for manual evaluation, and marks the attempt completed.
// Submitting an already-final attempt returns the stored summary unchanged.
func (s *Service) SubmitAttempt(ctx context.Context, attemptID int64) (*AttemptSummary, error) {
	return s.finalizeAttempt(ctx, attemptID)
}

func (s *Service) finalizeAttempt(ctx context.Context, attemptID int64) (*AttemptSummary, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin finalize tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row, exam, err := s.loadAttemptWithExam(ctx, tx, attemptID)
	if err != nil {
		return nil, err
	}

	if !row.Status.Editable() {
		summary, err := s.buildSummary(ctx, tx, row, exam)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit finalize noop: %w", err)
		}
		return summary, nil
	}
	if !CanTransition(row.Status, StatusCompleted) && row.Status != StatusPending {
		return nil, ErrInvalidTransition
	}

	qs, err := s.loadQuestions(ctx, tx, row.ExamID)
	if err != nil {
		return nil, err
	}
	answers, err := s.loadAnswerTexts(ctx, tx, row.ID)
	if err != nil {
		return nil, err
	}

	graded := Grade(qs, answers)
	now := s.now().Unix()

	for _, g := range graded.PerQuestion {
		if !g.Answered {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE answers
			SET is_correct = $1,
				score_awarded = $2,
				needs_evaluation = $3,
				updated_at = $4
			WHERE attempt_id = $5 AND question_id = $6
		`, nullBool(g.IsCorrect), nullFloat(g.ScoreAwarded), g.NeedsEvaluation, now, row.ID, g.QuestionID); err != nil {
			return nil, fmt.Errorf("grade answer: %w", err)
		}
	}

	// Guarded update keeps a concurrent double submit from re-scoring.
	res, err := tx.ExecContext(ctx, `
		UPDATE attempts
		SET status = $1, submitted_at = $2, total_score = $3
		WHERE id = $4 AND status IN ($5, $6)
	`, StatusCompleted, now, graded.TotalScore, row.ID, StatusPending, StatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("update attempt final: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrAttemptNotEditable
	}

	row, exam, err = s.loadAttemptWithExam(ctx, tx, row.ID)
	if err != nil {
		return nil, err
	}
	summary, err := s.buildSummary(ctx, tx, row, exam)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit finalize: %w", err)
	}
	return summary, nil
}

// UpdateAttemptStatus serves the exit path. Completing delegates to the full
// finalize so an early exit is graded exactly like a submit; any other target
// must be a legal transition.
func (s *Service) UpdateAttemptStatus(ctx context.Context, attemptID int64, to Status) error {
	if !to.Valid() {
		return ErrInvalidTransition
	}
	if to == StatusCompleted {
		_, err := s.finalizeAttempt(ctx, attemptID)
		return err
	}

	row, err := s.loadAttemptRow(ctx, s.db, attemptID)
	if err != nil {
		return err
	}
	if !CanTransition(row.Status, to) {
		return ErrInvalidTransition
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE attempts SET status = $1 WHERE id = $2 AND status = $3
	`, to, attemptID, row.Status)
	if err != nil {
		return fmt.Errorf("update attempt status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (s *Service) GetAttemptOwner(ctx context.Context, attemptID int64) (int64, error) {
	var userID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM attempts WHERE id = $1
	`, attemptID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrAttemptNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("load attempt owner: %w", err)
	}
	return userID, nil
}

// SweepExpired finalizes every in-progress attempt whose window has elapsed.
// The cron job calls this so a client that died mid-exam still gets graded.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := s.now().Unix()
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id
		FROM attempts a
		JOIN exams e ON e.id = a.exam_id
		WHERE a.status IN ($1, $2)
		  AND a.started_at + e.duration_minutes * 60 < $3
	`, StatusPending, StatusInProgress, now)
	if err != nil {
		return 0, fmt.Errorf("query overdue attempts: %w", err)
	}

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan overdue attempt: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate overdue attempts: %w", err)
	}
	rows.Close()

	finalized := 0
	for _, id := range ids {
		if _, err := s.finalizeAttempt(ctx, id); err != nil {
			return finalized, fmt.Errorf("finalize overdue attempt %d: %w", id, err)
		}
		finalized++
	}
	return finalized, nil
}

func (s *Service) LogAttemptEvent(ctx context.Context, in AttemptEventInput) (*AttemptEvent, error) {
	if !ValidEventType(in.EventType) {
		return nil, ErrInvalidEventType
	}
	if _, err := s.loadAttemptRow(ctx, s.db, in.AttemptID); err != nil {
		return nil, err
	}

	payload := in.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	var clientTS interface{}
	if in.ClientTS != nil {
		clientTS = in.ClientTS.Unix()
	}

	now := s.now().Unix()
	var ev AttemptEvent
	var createdAt int64
	var clientOut sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO attempt_events (attempt_id, event_type, payload, client_ts, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, attempt_id, event_type, payload, client_ts, created_at
	`, in.AttemptID, in.EventType, string(payload), clientTS, now).Scan(
		&ev.ID, &ev.AttemptID, &ev.EventType, (*rawJSON)(&ev.Payload), &clientOut, &createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert attempt event: %w", err)
	}
	if clientOut.Valid {
		t := time.Unix(clientOut.Int64, 0).UTC()
		ev.ClientTS = &t
	}
	ev.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &ev, nil
}

func (s *Service) ListAttemptEvents(ctx context.Context, attemptID int64, limit int) ([]AttemptEvent, error) {
	if _, err := s.loadAttemptRow(ctx, s.db, attemptID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 1000 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, attempt_id, event_type, payload, client_ts, created_at
		FROM attempt_events
		WHERE attempt_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, attemptID, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempt events: %w", err)
	}
	defer rows.Close()

	out := make([]AttemptEvent, 0)
	for rows.Next() {
		var (
			ev        AttemptEvent
			clientTS  sql.NullInt64
			createdAt int64
		)
		if err := rows.Scan(&ev.ID, &ev.AttemptID, &ev.EventType, (*rawJSON)(&ev.Payload), &clientTS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan attempt event: %w", err)
		}
		if clientTS.Valid {
			t := time.Unix(clientTS.Int64, 0).UTC()
			ev.ClientTS = &t
		}
		ev.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt events: %w", err)
	}
	return out, nil
}

// --- row loading helpers ---

func (s *Service) loadAttemptRow(ctx context.Context, q queryable, attemptID int64) (*attemptRow, error) {
	row := &attemptRow{}
	err := q.QueryRowContext(ctx, `
		SELECT id, exam_id, user_id, status, started_at, submitted_at, total_score
		FROM attempts
		WHERE id = $1
	`, attemptID).Scan(&row.ID, &row.ExamID, &row.UserID, &row.Status, &row.StartedAt, &row.SubmittedAt, &row.TotalScore)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	return row, nil
}

func (s *Service) loadExamRow(ctx context.Context, q queryable, examID int64) (*examRow, error) {
	row := &examRow{}
	err := q.QueryRowContext(ctx, `
		SELECT id, title, duration_minutes, total_marks, passing_marks, status,
		       start_at, end_at, shuffle_questions, results_published, access_code
		FROM exams
		WHERE id = $1
	`, examID).Scan(
		&row.ID, &row.Title, &row.DurationMinutes, &row.TotalMarks, &row.PassingMarks,
		&row.Status, &row.StartAt, &row.EndAt, &row.ShuffleQuestions, &row.ResultsPublished, &row.AccessCode,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load exam: %w", err)
	}
	return row, nil
}

func (s *Service) loadAttemptWithExam(ctx context.Context, q queryable, attemptID int64) (*attemptRow, *examRow, error) {
	row, err := s.loadAttemptRow(ctx, q, attemptID)
	if err != nil {
		return nil, nil, err
	}
	exam, err := s.loadExamRow(ctx, q, row.ExamID)
	if err != nil {
		return nil, nil, err
	}
	return row, exam, nil
}

func (s *Service) loadQuestions(ctx context.Context, q queryable, examID int64) ([]question.Question, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, exam_id, question_text, qtype, options_json, correct_answer, marks, order_number
		FROM questions
		WHERE exam_id = $1
		ORDER BY order_number
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	out := make([]question.Question, 0)
	for rows.Next() {
		var (
			item    question.Question
			optsRaw string
		)
		if err := rows.Scan(&item.ID, &item.ExamID, &item.Text, &item.Type, &optsRaw, &item.CorrectAnswer, &item.Marks, &item.OrderNumber); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if optsRaw != "" {
			if err := json.Unmarshal([]byte(optsRaw), &item.Options); err != nil {
				return nil, fmt.Errorf("decode question options: %w", err)
			}
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return out, nil
}

func (s *Service) loadAnswerTexts(ctx context.Context, q queryable, attemptID int64) (map[int64]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT question_id, answer_text FROM answers WHERE attempt_id = $1
	`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("query answer texts: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]string)
	for rows.Next() {
		var qid int64
		var text string
		if err := rows.Scan(&qid, &text); err != nil {
			return nil, fmt.Errorf("scan answer text: %w", err)
		}
		out[qid] = text
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answer texts: %w", err)
	}
	return out, nil
}

func (s *Service) buildSummary(ctx context.Context, q queryable, row *attemptRow, exam *examRow) (*AttemptSummary, error) {
	var totalQuestions, answered int
	if err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM questions WHERE exam_id = $1
	`, row.ExamID).Scan(&totalQuestions); err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	if err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM answers WHERE attempt_id = $1 AND answer_text <> ''
	`, row.ID).Scan(&answered); err != nil {
		return nil, fmt.Errorf("count answers: %w", err)
	}

	summary := &AttemptSummary{
		ID:             row.ID,
		ExamID:         row.ExamID,
		UserID:         row.UserID,
		Status:         row.Status,
		StartedAt:      time.Unix(row.StartedAt, 0).UTC(),
		RemainingSecs:  s.remainingSeconds(row, exam),
		TotalQuestions: totalQuestions,
		Answered:       answered,
		Exam: ExamSummary{
			ID:               exam.ID,
			Title:            exam.Title,
			DurationMinutes:  exam.DurationMinutes,
			TotalMarks:       exam.TotalMarks,
			PassingMarks:     exam.PassingMarks,
			ShuffleQuestions: exam.ShuffleQuestions,
			ResultsPublished: exam.ResultsPublished,
		},
	}
	if row.SubmittedAt.Valid {
		t := time.Unix(row.SubmittedAt.Int64, 0).UTC()
		summary.SubmittedAt = &t
	}
	// The score is only authoritative once the attempt is final.
	if row.Status.Final() {
		summary.TotalScore = row.TotalScore
	}
	return summary, nil
}

// remainingSeconds derives the countdown from started_at + duration. The
// authoritative end time comes from the server-recorded start, which keeps a
// drifting client clock from extending the window.
func (s *Service) remainingSeconds(row *attemptRow, exam *examRow) int64 {
	if !row.Status.Editable() {
		return 0
	}
	endAt := row.StartedAt + int64(exam.DurationMinutes)*60
	remaining := endAt - s.now().Unix()
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (s *Service) overdue(row *attemptRow, exam *examRow) bool {
	return s.now().Unix() > row.StartedAt+int64(exam.DurationMinutes)*60
}

func nullBool(v *bool) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// rawJSON lets a json.RawMessage scan from TEXT columns.
type rawJSON json.RawMessage

func (r *rawJSON) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*r = nil
	case string:
		*r = rawJSON(v)
	case []byte:
		buf := make([]byte, len(v))
		copy(buf, v)
		*r = buf
	default:
		return fmt.Errorf("cannot scan %T into json payload", src)
	}
	return nil
}

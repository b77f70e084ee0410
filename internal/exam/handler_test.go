package exam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"examserve/internal/auth"
	"examserve/internal/question"

	"github.com/go-chi/chi/v5"
)

type mockExamService struct {
	startAttemptFn         func(ctx context.Context, examID, userID int64, accessCode string) (*Attempt, error)
	getAttemptSummaryFn    func(ctx context.Context, attemptID int64) (*AttemptSummary, error)
	listAttemptQuestionsFn func(ctx context.Context, attemptID int64, role string) ([]question.Question, error)
	saveAnswerFn           func(ctx context.Context, in SaveAnswerInput) error
	saveAnswersFn          func(ctx context.Context, attemptID int64, inputs []SaveAnswerInput) error
	listAnswersFn          func(ctx context.Context, attemptID int64) ([]Answer, error)
	submitAttemptFn        func(ctx context.Context, attemptID int64) (*AttemptSummary, error)
	updateAttemptStatusFn  func(ctx context.Context, attemptID int64, to Status) error
	getAttemptOwnerFn      func(ctx context.Context, attemptID int64) (int64, error)
	logAttemptEventFn      func(ctx context.Context, in AttemptEventInput) (*AttemptEvent, error)
	listAttemptEventsFn    func(ctx context.Context, attemptID int64, limit int) ([]AttemptEvent, error)
}

func (m *mockExamService) StartAttempt(ctx context.Context, examID, userID int64, accessCode string) (*Attempt, error) {
	if m.startAttemptFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.startAttemptFn(ctx, examID, userID, accessCode)
}

func (m *mockExamService) GetAttemptSummary(ctx context.Context, attemptID int64) (*AttemptSummary, error) {
	if m.getAttemptSummaryFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getAttemptSummaryFn(ctx, attemptID)
}

func (m *mockExamService) ListAttemptQuestions(ctx context.Context, attemptID int64, role string) ([]question.Question, error) {
	if m.listAttemptQuestionsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listAttemptQuestionsFn(ctx, attemptID, role)
}

func (m *mockExamService) SaveAnswer(ctx context.Context, in SaveAnswerInput) error {
	if m.saveAnswerFn == nil {
		return errors.New("not implemented")
	}
	return m.saveAnswerFn(ctx, in)
}

func (m *mockExamService) SaveAnswers(ctx context.Context, attemptID int64, inputs []SaveAnswerInput) error {
	if m.saveAnswersFn == nil {
		return errors.New("not implemented")
	}
	return m.saveAnswersFn(ctx, attemptID, inputs)
}

func (m *mockExamService) ListAnswers(ctx context.Context, attemptID int64) ([]Answer, error) {
	if m.listAnswersFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listAnswersFn(ctx, attemptID)
}

func (m *mockExamService) SubmitAttempt(ctx context.Context, attemptID int64) (*AttemptSummary, error) {
	if m.submitAttemptFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.submitAttemptFn(ctx, attemptID)
}

func (m *mockExamService) UpdateAttemptStatus(ctx context.Context, attemptID int64, to Status) error {
	if m.updateAttemptStatusFn == nil {
		return errors.New("not implemented")
	}
	return m.updateAttemptStatusFn(ctx, attemptID, to)
}

func (m *mockExamService) GetAttemptOwner(ctx context.Context, attemptID int64) (int64, error) {
	if m.getAttemptOwnerFn == nil {
		return 0, errors.New("not implemented")
	}
	return m.getAttemptOwnerFn(ctx, attemptID)
}

func (m *mockExamService) LogAttemptEvent(ctx context.Context, in AttemptEventInput) (*AttemptEvent, error) {
	if m.logAttemptEventFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.logAttemptEventFn(ctx, in)
}

func (m *mockExamService) ListAttemptEvents(ctx context.Context, attemptID int64, limit int) ([]AttemptEvent, error) {
	if m.listAttemptEventsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listAttemptEventsFn(ctx, attemptID, limit)
}

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestGetAttemptForbiddenForNonOwner(t *testing.T) {
	calledSummary := false
	h := NewHandler(&mockExamService{
		getAttemptOwnerFn: func(ctx context.Context, attemptID int64) (int64, error) { return 99, nil },
		getAttemptSummaryFn: func(ctx context.Context, attemptID int64) (*AttemptSummary, error) {
			calledSummary = true
			return &AttemptSummary{ID: attemptID}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attempts/10", nil)
	req = withChiParam(req, "id", "10")
	req = req.WithContext(auth.ContextWithUser(req.Context(), &auth.User{ID: 1, Role: "student"}))
	w := httptest.NewRecorder()

	h.GetAttempt(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	if calledSummary {
		t.Fatalf("expected summary not called when forbidden")
	}
}

func TestGetAttemptSkipsOwnerCheckForStaff(t *testing.T) {
	calledOwner := false
	h := NewHandler(&mockExamService{
		getAttemptOwnerFn: func(ctx context.Context, attemptID int64) (int64, error) {
			calledOwner = true
			return 99, nil
		},
		getAttemptSummaryFn: func(ctx context.Context, attemptID int64) (*AttemptSummary, error) {
			return &AttemptSummary{ID: attemptID, Status: StatusInProgress}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attempts/11", nil)
	req = withChiParam(req, "id", "11")
	req = req.WithContext(auth.ContextWithUser(req.Context(), &auth.User{ID: 7, Role: "coordinator"}))
	w := httptest.NewRecorder()

	h.GetAttempt(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if calledOwner {
		t.Fatalf("owner lookup should be skipped for staff roles")
	}
}

func TestStartAttemptUsesSessionUser(t *testing.T) {
	var gotExamID, gotUserID int64
	var gotCode string
	h := NewHandler(&mockExamService{
		startAttemptFn: func(ctx context.Context, examID, userID int64, accessCode string) (*Attempt, error) {
			gotExamID, gotUserID, gotCode = examID, userID, accessCode
			return &Attempt{ID: 1, ExamID: examID, UserID: userID, Status: StatusInProgress, StartedAt: time.Now()}, nil
		},
	})

	payload := []byte(`{"exam_id":2,"access_code":"ABC"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/attempts", bytes.NewReader(payload))
	req = req.WithContext(auth.ContextWithUser(req.Context(), &auth.User{ID: 15, Role: "student"}))
	w := httptest.NewRecorder()

	h.Start(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gotExamID != 2 || gotUserID != 15 || gotCode != "ABC" {
		t.Fatalf("unexpected call: exam=%d user=%d code=%q", gotExamID, gotUserID, gotCode)
	}
}

func TestStartAttemptErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "not found", err: ErrExamNotFound, code: http.StatusNotFound},
		{name: "not available", err: ErrExamNotAvailable, code: http.StatusConflict},
		{name: "bad access code", err: ErrAccessCodeInvalid, code: http.StatusForbidden},
		{name: "internal", err: errors.New("boom"), code: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&mockExamService{
				startAttemptFn: func(ctx context.Context, examID, userID int64, accessCode string) (*Attempt, error) {
					return nil, tc.err
				},
			})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/attempts", bytes.NewReader([]byte(`{"exam_id":2}`)))
			req = req.WithContext(auth.ContextWithUser(req.Context(), &auth.User{ID: 1, Role: "student"}))
			w := httptest.NewRecorder()

			h.Start(w, req)

			if w.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, w.Code)
			}
		})
	}
}

func TestSaveAnswerClosedAttemptConflicts(t *testing.T) {
	h := NewHandler(&mockExamService{
		getAttemptOwnerFn: func(ctx context.Context, attemptID int64) (int64, error) { return 2, nil },
		saveAnswerFn: func(ctx context.Context, in SaveAnswerInput) error {
			return ErrAttemptNotEditable
		},
	})

	payload := []byte(`{"answer_text":"B","seq":4}`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/attempts/12/answers/10", bytes.NewReader(payload))
	req = withChiParam(req, "id", "12")
	req = withChiParam(req, "questionID", "10")
	req = req.WithContext(auth.ContextWithUser(req.Context(), &auth.User{ID: 2, Role: "student"}))
	w := httptest.NewRecorder()

	h.SaveAnswer(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["error"] == nil {
		t.Fatalf("expected error payload")
	}
}

func TestSaveAnswerPassesSeq(t *testing.T) {
	var got SaveAnswerInput
	h := NewHandler(&mockExamService{
		getAttemptOwnerFn: func(ctx context.Context, attemptID int64) (int64, error) { return 2, nil },
		saveAnswerFn: func(ctx context.Context, in SaveAnswerInput) error {
			got = in
			return nil
		},
	})

	payload := []byte(`{"answer_text":"C","seq":7}`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/attempts/12/answers/10", bytes.NewReader(payload))
	req = withChiParam(req, "id", "12")
	req = withChiParam(req, "questionID", "10")
	req = req.WithContext(auth.ContextWithUser(req.Context(), &auth.User{ID: 2, Role: "student"}))
	w := httptest.NewRecorder()

	h.SaveAnswer(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got.AttemptID != 12 || got.QuestionID != 10 || got.AnswerText != "C" || got.Seq != 7 {
		t.Fatalf("unexpected input %+v", got)
	}
}

func TestBulkSaveRejectsMissingQuestionID(t *testing.T) {
	called := false
	h := NewHandler(&mockExamService{
		getAttemptOwnerFn: func(ctx context.Context, attemptID int64) (int64, error) { return 2, nil },
		saveAnswersFn: func(ctx context.Context, attemptID int64, inputs []SaveAnswerInput) error {
			called = true
			return nil
		},
	})

	payload := []byte(`{"answers":[{"answer_text":"A","seq":1}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/attempts/12/answers", bytes.NewReader(payload))
	req = withChiParam(req, "id", "12")
	req = req.WithContext(auth.ContextWithUser(req.Context(), &auth.User{ID: 2, Role: "student"}))
	w := httptest.NewRecorder()

	h.BulkSave(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if called {
		t.Fatalf("service should not be called on invalid input")
	}
}

func TestSubmitReturnsSummary(t *testing.T) {
	submittedAt := time.Now()
	h := NewHandler(&mockExamService{
		getAttemptOwnerFn: func(ctx context.Context, attemptID int64) (int64, error) { return 2, nil },
		submitAttemptFn: func(ctx context.Context, attemptID int64) (*AttemptSummary, error) {
			return &AttemptSummary{ID: attemptID, Status: StatusCompleted, SubmittedAt: &submittedAt, TotalScore: 8}, nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/attempts/55/submit", nil)
	req = withChiParam(req, "id", "55")
	req = req.WithContext(auth.ContextWithUser(req.Context(), &auth.User{ID: 2, Role: "student"}))
	w := httptest.NewRecorder()

	h.Submit(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	data, ok := body["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected data object, got %v", body)
	}
	if data["status"] != string(StatusCompleted) {
		t.Fatalf("expected completed status, got %v", data["status"])
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	h := NewHandler(&mockExamService{
		getAttemptOwnerFn: func(ctx context.Context, attemptID int64) (int64, error) { return 2, nil },
	})

	payload := []byte(`{"status":"vanished"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/attempts/5/status", bytes.NewReader(payload))
	req = withChiParam(req, "id", "5")
	req = req.WithContext(auth.ContextWithUser(req.Context(), &auth.User{ID: 2, Role: "student"}))
	w := httptest.NewRecorder()

	h.UpdateStatus(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestUpdateStatusInvalidTransitionConflicts(t *testing.T) {
	h := NewHandler(&mockExamService{
		getAttemptOwnerFn: func(ctx context.Context, attemptID int64) (int64, error) { return 2, nil },
		updateAttemptStatusFn: func(ctx context.Context, attemptID int64, to Status) error {
			return ErrInvalidTransition
		},
	})

	payload := []byte(`{"status":"abandoned"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/attempts/5/status", bytes.NewReader(payload))
	req = withChiParam(req, "id", "5")
	req = req.WithContext(auth.ContextWithUser(req.Context(), &auth.User{ID: 2, Role: "student"}))
	w := httptest.NewRecorder()

	h.UpdateStatus(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestLogEventInvalidType(t *testing.T) {
	h := NewHandler(&mockExamService{
		getAttemptOwnerFn: func(ctx context.Context, attemptID int64) (int64, error) { return 2, nil },
		logAttemptEventFn: func(ctx context.Context, in AttemptEventInput) (*AttemptEvent, error) {
			return nil, ErrInvalidEventType
		},
	})

	payload := []byte(`{"event_type":"party"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/attempts/5/events", bytes.NewReader(payload))
	req = withChiParam(req, "id", "5")
	req = req.WithContext(auth.ContextWithUser(req.Context(), &auth.User{ID: 2, Role: "student"}))
	w := httptest.NewRecorder()

	h.LogEvent(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestLogEventCreated(t *testing.T) {
	h := NewHandler(&mockExamService{
		getAttemptOwnerFn: func(ctx context.Context, attemptID int64) (int64, error) { return 2, nil },
		logAttemptEventFn: func(ctx context.Context, in AttemptEventInput) (*AttemptEvent, error) {
			return &AttemptEvent{ID: 9, AttemptID: in.AttemptID, EventType: in.EventType, CreatedAt: time.Now()}, nil
		},
	})

	payload := []byte(`{"event_type":"tab_blur","client_ts":"2026-01-02T15:04:05Z"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/attempts/5/events", bytes.NewReader(payload))
	req = withChiParam(req, "id", "5")
	req = req.WithContext(auth.ContextWithUser(req.Context(), &auth.User{ID: 2, Role: "student"}))
	w := httptest.NewRecorder()

	h.LogEvent(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	h := NewHandler(&mockExamService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attempts/5", nil)
	req = withChiParam(req, "id", "5")
	w := httptest.NewRecorder()

	h.GetAttempt(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

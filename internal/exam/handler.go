package exam

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"examserve/internal/app/apiresp"
	"examserve/internal/auth"
	"examserve/internal/question"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc examService
}

type examService interface {
	StartAttempt(ctx context.Context, examID, userID int64, accessCode string) (*Attempt, error)
	GetAttemptSummary(ctx context.Context, attemptID int64) (*AttemptSummary, error)
	ListAttemptQuestions(ctx context.Context, attemptID int64, role string) ([]question.Question, error)
	SaveAnswer(ctx context.Context, in SaveAnswerInput) error
	SaveAnswers(ctx context.Context, attemptID int64, inputs []SaveAnswerInput) error
	ListAnswers(ctx context.Context, attemptID int64) ([]Answer, error)
	SubmitAttempt(ctx context.Context, attemptID int64) (*AttemptSummary, error)
	UpdateAttemptStatus(ctx context.Context, attemptID int64, to Status) error
	GetAttemptOwner(ctx context.Context, attemptID int64) (int64, error)
	LogAttemptEvent(ctx context.Context, in AttemptEventInput) (*AttemptEvent, error)
	ListAttemptEvents(ctx context.Context, attemptID int64, limit int) ([]AttemptEvent, error)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type startAttemptRequest struct {
	ExamID     int64  `json:"exam_id"`
	AccessCode string `json:"access_code"`
}

type saveAnswerRequest struct {
	AnswerText string `json:"answer_text"`
	Seq        int64  `json:"seq"`
}

type bulkSaveRequest struct {
	Answers []bulkSaveItem `json:"answers"`
}

type bulkSaveItem struct {
	QuestionID int64  `json:"question_id"`
	AnswerText string `json:"answer_text"`
	Seq        int64  `json:"seq"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type attemptEventRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	ClientTS  string          `json:"client_ts"`
}

func NewHandler(svc examService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req startAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	if req.ExamID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "exam_id is required"})
		return
	}

	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	attempt, err := h.svc.StartAttempt(r.Context(), req.ExamID, user.ID, req.AccessCode)
	if err != nil {
		switch {
		case errors.Is(err, ErrExamNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrExamNotAvailable):
			writeJSON(w, r, http.StatusConflict, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrAccessCodeInvalid):
			writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: attempt})
}

func (h *Handler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	_, attemptID, ok := h.authorizedAttempt(w, r)
	if !ok {
		return
	}

	summary, err := h.svc.GetAttemptSummary(r.Context(), attemptID)
	if err != nil {
		switch {
		case errors.Is(err, ErrAttemptNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: summary})
}

func (h *Handler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	user, attemptID, ok := h.authorizedAttempt(w, r)
	if !ok {
		return
	}

	items, err := h.svc.ListAttemptQuestions(r.Context(), attemptID, user.Role)
	if err != nil {
		switch {
		case errors.Is(err, ErrAttemptNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: items})
}

func (h *Handler) SaveAnswer(w http.ResponseWriter, r *http.Request) {
	_, attemptID, ok := h.authorizedAttempt(w, r)
	if !ok {
		return
	}

	questionID, err := strconv.ParseInt(chi.URLParam(r, "questionID"), 10, 64)
	if err != nil || questionID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid question id"})
		return
	}

	var req saveAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	err = h.svc.SaveAnswer(r.Context(), SaveAnswerInput{
		AttemptID:  attemptID,
		QuestionID: questionID,
		AnswerText: req.AnswerText,
		Seq:        req.Seq,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrAttemptNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrAttemptNotEditable):
			writeJSON(w, r, http.StatusConflict, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrQuestionNotInExam):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]string{"status": "saved"}})
}

// BulkSave is the autosave flush: the client re-sends every held answer and
// the service applies them in one transaction.
func (h *Handler) BulkSave(w http.ResponseWriter, r *http.Request) {
	_, attemptID, ok := h.authorizedAttempt(w, r)
	if !ok {
		return
	}

	var req bulkSaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	inputs := make([]SaveAnswerInput, 0, len(req.Answers))
	for _, item := range req.Answers {
		if item.QuestionID <= 0 {
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "question_id is required"})
			return
		}
		inputs = append(inputs, SaveAnswerInput{
			AttemptID:  attemptID,
			QuestionID: item.QuestionID,
			AnswerText: item.AnswerText,
			Seq:        item.Seq,
		})
	}

	if err := h.svc.SaveAnswers(r.Context(), attemptID, inputs); err != nil {
		switch {
		case errors.Is(err, ErrAttemptNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrAttemptNotEditable):
			writeJSON(w, r, http.StatusConflict, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrQuestionNotInExam):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]interface{}{"status": "saved", "count": len(inputs)}})
}

func (h *Handler) ListAnswers(w http.ResponseWriter, r *http.Request) {
	_, attemptID, ok := h.authorizedAttempt(w, r)
	if !ok {
		return
	}

	items, err := h.svc.ListAnswers(r.Context(), attemptID)
	if err != nil {
		switch {
		case errors.Is(err, ErrAttemptNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: items})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	_, attemptID, ok := h.authorizedAttempt(w, r)
	if !ok {
		return
	}

	summary, err := h.svc.SubmitAttempt(r.Context(), attemptID)
	if err != nil {
		switch {
		case errors.Is(err, ErrAttemptNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrInvalidTransition):
			writeJSON(w, r, http.StatusConflict, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: summary})
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	_, attemptID, ok := h.authorizedAttempt(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	to := Status(strings.TrimSpace(req.Status))
	if !to.Valid() {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid status"})
		return
	}

	if err := h.svc.UpdateAttemptStatus(r.Context(), attemptID, to); err != nil {
		switch {
		case errors.Is(err, ErrAttemptNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrAttemptNotEditable):
			writeJSON(w, r, http.StatusConflict, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]string{"status": string(to)}})
}

func (h *Handler) LogEvent(w http.ResponseWriter, r *http.Request) {
	_, attemptID, ok := h.authorizedAttempt(w, r)
	if !ok {
		return
	}

	var req attemptEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	var clientTS *time.Time
	if v := strings.TrimSpace(req.ClientTS); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid client_ts"})
			return
		}
		clientTS = &parsed
	}

	event, err := h.svc.LogAttemptEvent(r.Context(), AttemptEventInput{
		AttemptID: attemptID,
		EventType: req.EventType,
		Payload:   req.Payload,
		ClientTS:  clientTS,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrAttemptNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrInvalidEventType):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: event})
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	attemptID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || attemptID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid attempt id"})
		return
	}
	limit := 200
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	items, err := h.svc.ListAttemptEvents(r.Context(), attemptID, limit)
	if err != nil {
		switch {
		case errors.Is(err, ErrAttemptNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: items})
}

// authorizedAttempt extracts the attempt id from the route and checks the
// caller may touch it. On failure it writes the error response itself and
// returns ok=false.
func (h *Handler) authorizedAttempt(w http.ResponseWriter, r *http.Request) (*auth.User, int64, bool) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return nil, 0, false
	}

	attemptID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || attemptID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid attempt id"})
		return nil, 0, false
	}

	if err := h.authorizeAttemptAccess(r, user, attemptID); err != nil {
		switch {
		case errors.Is(err, ErrAttemptNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrAttemptForbidden):
			writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: "forbidden"})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return nil, 0, false
	}
	return user, attemptID, true
}

func (h *Handler) authorizeAttemptAccess(r *http.Request, user *auth.User, attemptID int64) error {
	if user.Role == "admin" || user.Role == "coordinator" {
		return nil
	}

	ownerID, err := h.svc.GetAttemptOwner(r.Context(), attemptID)
	if err != nil {
		return err
	}
	if ownerID != user.ID {
		return ErrAttemptForbidden
	}
	return nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}

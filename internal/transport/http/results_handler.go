package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"proctored-quiz-service/internal/app"
	"proctored-quiz-service/internal/domain"
)

// ResultsHandler serves result persistence and the dashboard queries.
type ResultsHandler struct {
	service   *app.ResultsService
	questions app.QuestionRepository
	logger    *zap.Logger
}

func NewResultsHandler(service *app.ResultsService, questions app.QuestionRepository, logger *zap.Logger) *ResultsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultsHandler{service: service, questions: questions, logger: logger}
}

// SaveResponse is the data of POST /results. Duplicate is set when the
// attempt had already been stored; the request is still a success.
type SaveResponse struct {
	Record    domain.AttemptRecord `json:"record"`
	Duplicate bool                 `json:"duplicate"`
}

func (h *ResultsHandler) SaveResult(w http.ResponseWriter, r *http.Request) {
	var sub domain.ResultSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.service.Save(r.Context(), sub)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, SaveResponse{Record: rec})
	case errors.Is(err, domain.ErrDuplicateAttempt):
		writeJSON(w, http.StatusOK, SaveResponse{Record: rec, Duplicate: true})
	case errors.Is(err, domain.ErrInvalidResult):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("save result", zap.String("userId", sub.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save result")
	}
}

// AttemptIDsResponse is the data of GET /results/check/{userId}.
type AttemptIDsResponse struct {
	AttemptIDs []string `json:"attemptIds"`
}

func (h *ResultsHandler) CheckAttempts(w http.ResponseWriter, r *http.Request) {
	ids, err := h.service.AttemptIDs(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.internal(w, "list attempts", err)
		return
	}
	writeJSON(w, http.StatusOK, AttemptIDsResponse{AttemptIDs: ids})
}

func (h *ResultsHandler) Chart(w http.ResponseWriter, r *http.Request) {
	chart, err := h.service.ParticipationTimeline(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.internal(w, "participation timeline", err)
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

func (h *ResultsHandler) TopicStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.TopicStatistics(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "topicSlug"))
	if err != nil {
		h.internal(w, "topic statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Questions returns the participant view of a topic; answers are stripped.
func (h *ResultsHandler) Questions(w http.ResponseWriter, r *http.Request) {
	topic := domain.TopicSlug(chi.URLParam(r, "topic"))
	questions, err := h.questions.GetQuestions(r.Context(), topic)
	if err != nil {
		if errors.Is(err, domain.ErrTopicNotFound) {
			writeError(w, http.StatusNotFound, "topic not found")
			return
		}
		h.internal(w, "load questions", err)
		return
	}
	views := make([]domain.QuestionView, 0, len(questions))
	for _, q := range questions {
		views = append(views, q.View())
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *ResultsHandler) internal(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

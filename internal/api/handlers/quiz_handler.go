package handlers

import (
	"net/http"

	middleware "github.com/markdave123-py/virtual-teacher/internal/api/middlewares"
	"github.com/markdave123-py/virtual-teacher/internal/logger"
	"github.com/markdave123-py/virtual-teacher/internal/services"
)

type QuizHandler struct {
	log     *logger.Logger
	quizzes *services.QuizService
}

func NewQuizHandler(log *logger.Logger, quizzes *services.QuizService) *QuizHandler {
	return &QuizHandler{log: log.With("component", "QuizHandler"), quizzes: quizzes}
}

func (h *QuizHandler) Record(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var sub services.QuizSubmission
	if err := decodeJSON(w, r, &sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	attempt, err := h.quizzes.Record(r.Context(), userID, sub)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.log.Error("record quiz attempt failed", "err", err)
			writeError(w, status, "could not record quiz attempt")
			return
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, attempt)
}

func (h *QuizHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	attempts, err := h.quizzes.List(r.Context(), userID)
	if err != nil {
		h.log.Error("list quiz attempts failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not list quiz attempts")
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	middleware "github.com/markdave123-py/virtual-teacher/internal/api/middlewares"
	"github.com/markdave123-py/virtual-teacher/internal/logger"
	"github.com/markdave123-py/virtual-teacher/internal/services"
)

type ConversationHandler struct {
	log   *logger.Logger
	convs *services.ConversationService
}

func NewConversationHandler(log *logger.Logger, convs *services.ConversationService) *ConversationHandler {
	return &ConversationHandler{log: log.With("component", "ConversationHandler"), convs: convs}
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	list, err := h.convs.List(r.Context(), userID)
	if err != nil {
		h.fail(w, "list conversations", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	msgs, err := h.convs.Messages(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "list messages", err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *ConversationHandler) Rename(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body struct {
		Title string `json:"title"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	conv, err := h.convs.Rename(r.Context(), userID, chi.URLParam(r, "id"), body.Title)
	if err != nil {
		h.fail(w, "rename conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.convs.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete conversation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConversationHandler) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error(op+" failed", "err", err)
		writeError(w, status, op+" failed")
		return
	}
	writeError(w, status, err.Error())
}

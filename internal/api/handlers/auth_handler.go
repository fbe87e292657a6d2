package handlers

import (
	"errors"
	"net/http"
	"time"

	middleware "github.com/markdave123-py/virtual-teacher/internal/api/middlewares"
	"github.com/markdave123-py/virtual-teacher/internal/logger"
	"github.com/markdave123-py/virtual-teacher/internal/models"
	"github.com/markdave123-py/virtual-teacher/internal/services"
)

type AuthHandler struct {
	log      *logger.Logger
	users    *services.UserService
	secret   string
	tokenTTL time.Duration
}

func NewAuthHandler(log *logger.Logger, users *services.UserService, secret string, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{log: log.With("component", "AuthHandler"), users: users, secret: secret, tokenTTL: tokenTTL}
}

type signupRequest struct {
	FirstName string `json:"first_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	user, err := h.users.Signup(r.Context(), req.FirstName, req.Email, req.Password)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.log.Error("signup failed", "err", err)
			writeError(w, status, "could not create account")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	h.respondWithToken(w, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		h.log.Error("login failed", "err", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	h.respondWithToken(w, http.StatusOK, user)
}

func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	user, err := h.users.Get(r.Context(), userID)
	if err != nil {
		writeError(w, statusFor(err), "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, status int, user *models.User) {
	token, err := middleware.IssueToken(h.secret, user.ID, h.tokenTTL)
	if err != nil {
		h.log.Error("issue token failed", "user_id", user.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, status, authResponse{Token: token, User: user})
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	middleware "github.com/markdave123-py/virtual-teacher/internal/api/middlewares"
	"github.com/markdave123-py/virtual-teacher/internal/core"
	"github.com/markdave123-py/virtual-teacher/internal/core/ingestion_engine"
	"github.com/markdave123-py/virtual-teacher/internal/logger"
	"github.com/markdave123-py/virtual-teacher/internal/models"
	"github.com/markdave123-py/virtual-teacher/internal/services"
)

type stubDB struct {
	core.DbClient

	mu    sync.Mutex
	users map[string]*models.User
	convs map[string]*models.Conversation
	msgs  map[string][]models.Message
}

func newStubDB() *stubDB {
	return &stubDB{
		users: map[string]*models.User{},
		convs: map[string]*models.Conversation{},
		msgs:  map[string][]models.Message{},
	}
}

func (s *stubDB) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *stubDB) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubDB) GetUserByID(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *stubDB) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (s *stubDB) ListMessages(_ context.Context, id string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message{}, s.msgs[id]...), nil
}

func (s *stubDB) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, id)
	return nil
}

type stubExtractor struct {
	text string
	err  error
}

func (e stubExtractor) Extract(context.Context, []byte, string) (string, error) {
	return e.text, e.err
}

func (e stubExtractor) ExtractText(context.Context, *errgroup.Group, []byte, string) (<-chan string, error) {
	return nil, errors.New("not used")
}

func TestAuthSignupLoginProfile(t *testing.T) {
	db := newStubDB()
	h := NewAuthHandler(logger.NewNop(), services.NewUserService(db), wsSecret, time.Hour)

	body := `{"first_name":"Ada","email":"ada@example.com","password":"correct-horse"}`
	rec := httptest.NewRecorder()
	h.Signup(rec, httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d body=%s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	h.Signup(rec, httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader(body)))
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate signup status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"ada@example.com","password":"correct-horse"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d", rec.Code)
	}
	var resp struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("response leaks password hash: %s", rec.Body)
	}
	userID, err := middleware.ParseToken(wsSecret, resp.Token)
	if err != nil || userID != resp.User.ID {
		t.Fatalf("token does not identify the user: %v", err)
	}

	profile := middleware.JWTMiddleware(wsSecret)(http.HandlerFunc(h.Profile))
	req := httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	rec = httptest.NewRecorder()
	profile.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"first_name":"Ada"`) {
		t.Fatalf("profile = %d %s", rec.Code, rec.Body)
	}
}

func TestAuthLoginFailures(t *testing.T) {
	h := NewAuthHandler(logger.NewNop(), services.NewUserService(newStubDB()), wsSecret, time.Hour)

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"x@y.z","password":"nope-nope"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown user status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body status = %d", rec.Code)
	}
}

func multipartPDF(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write(content)
	}
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/upload_pdf/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadPDF(t *testing.T) {
	cases := []struct {
		name      string
		extractor stubExtractor
		field     string
		filename  string
		status    int
		contains  string
	}{
		{"ok", stubExtractor{text: "Chapter 1"}, "pdf_file", "notes.PDF", http.StatusOK, `"text":"Chapter 1"`},
		{"missing file", stubExtractor{}, "", "", http.StatusBadRequest, "No PDF file found in the request."},
		{"wrong field", stubExtractor{}, "file", "notes.pdf", http.StatusBadRequest, "No PDF file found in the request."},
		{"not pdf", stubExtractor{}, "pdf_file", "notes.txt", http.StatusBadRequest, "Invalid file type. Please upload a PDF."},
		{"empty text", stubExtractor{err: ingestion_engine.ErrEmptyText}, "pdf_file", "a.pdf", http.StatusBadRequest, "Could not extract any text from the PDF."},
		{"broken pdf", stubExtractor{err: errors.New("corrupt xref")}, "pdf_file", "a.pdf", http.StatusInternalServerError, "corrupt xref"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			docs := services.NewDocumentService(nil, nil, tc.extractor, "")
			h := NewDocumentHandler(logger.NewNop(), docs, nil)
			rec := httptest.NewRecorder()
			h.UploadPDF(rec, multipartPDF(t, tc.field, tc.filename, []byte("%PDF-1.4")))
			if rec.Code != tc.status || !strings.Contains(rec.Body.String(), tc.contains) {
				t.Fatalf("got %d %s, want %d containing %q", rec.Code, rec.Body, tc.status, tc.contains)
			}
		})
	}
}

func TestUploadDocumentWithoutStorage(t *testing.T) {
	h := NewDocumentHandler(logger.NewNop(), services.NewDocumentService(nil, nil, stubExtractor{}, ""), nil)
	rec := httptest.NewRecorder()
	h.UploadDocument(rec, httptest.NewRequest(http.MethodPost, "/api/documents/upload", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestConversationRoutes(t *testing.T) {
	db := newStubDB()
	db.convs["c1"] = &models.Conversation{ID: "c1", UserID: "u1"}
	db.convs["c2"] = &models.Conversation{ID: "c2", UserID: "u2"}
	db.msgs["c1"] = []models.Message{{ID: "m1", ConversationID: "c1", Role: models.RoleUser, Kind: models.MessageTopic, Content: json.RawMessage(`{"topic":"x"}`)}}

	h := NewConversationHandler(logger.NewNop(), services.NewConversationService(db))
	r := chi.NewRouter()
	r.Use(middleware.JWTMiddleware(wsSecret))
	r.Get("/api/conversations/{id}/messages", h.Messages)
	r.Delete("/api/conversations/{id}", h.Delete)

	tok, _ := middleware.IssueToken(wsSecret, "u1", time.Hour)
	do := func(method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	if rec := do(http.MethodGet, "/api/conversations/c1/messages"); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"topic":"x"`) {
		t.Fatalf("messages = %d %s", rec.Code, rec.Body)
	}
	if rec := do(http.MethodGet, "/api/conversations/c2/messages"); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign messages status = %d", rec.Code)
	}
	if rec := do(http.MethodDelete, "/api/conversations/c1"); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := do(http.MethodDelete, "/api/conversations/c1"); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", rec.Code)
	}
}

package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/markdave123-py/virtual-teacher/internal/config"
	"github.com/markdave123-py/virtual-teacher/internal/logger"
	"github.com/markdave123-py/virtual-teacher/internal/services"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:           "0",
		JWTSecret:      "router-secret",
		TokenTTL:       time.Hour,
		AllowedOrigins: []string{"http://localhost:5173"},
	}
}

func TestRouterProtectsAPI(t *testing.T) {
	h := NewRouter(testConfig(), logger.NewNop(), Services{
		Documents: services.NewDocumentService(nil, nil, nil, ""),
	})

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/api/auth/profile", http.StatusUnauthorized},
		{http.MethodGet, "/api/conversations", http.StatusUnauthorized},
		{http.MethodDelete, "/api/conversations/abc", http.StatusUnauthorized},
		{http.MethodPost, "/api/quizzes", http.StatusUnauthorized},
		{http.MethodPost, "/api/documents/upload", http.StatusUnauthorized},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != tc.want {
			t.Errorf("%s %s = %d, want %d", tc.method, tc.path, rec.Code, tc.want)
		}
	}
}

func TestRouterCORSPreflight(t *testing.T) {
	h := NewRouter(testConfig(), logger.NewNop(), Services{})

	req := httptest.NewRequest(http.MethodOptions, "/api/conversations/abc", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("allow origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, http.MethodPatch) {
		t.Fatalf("allow methods = %q", got)
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := AuthMiddleware("secret")(ok)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"no key", "/api/buffer/stats", nil, http.StatusUnauthorized},
		{"wrong key", "/api/buffer/stats", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"header key", "/api/buffer/stats", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"bearer", "/api/buffer/stats", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"query", "/api/view?apiKey=secret", nil, http.StatusOK},
		{"health is open", "/health", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAuthMiddleware_DisabledWithoutKey(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	rec := httptest.NewRecorder()
	AuthMiddleware("")(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/buffer/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

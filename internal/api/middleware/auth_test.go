package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testAdminToken = "admin-secret-token"

func TestAdminAuth_Success(t *testing.T) {
	var admin bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin = IsAdmin(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	w := httptest.NewRecorder()

	AdminAuth(testAdminToken)(handler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, admin)
}

func TestAdminAuth_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		header     string
		status     int
		message    string
	}{
		{"missing header", testAdminToken, "", http.StatusUnauthorized, "missing authorization header"},
		{"basic auth", testAdminToken, "Basic abc123", http.StatusUnauthorized, "invalid authorization format"},
		{"wrong token", testAdminToken, "Bearer nope", http.StatusUnauthorized, "invalid admin token"},
		{"bearer without token", testAdminToken, "Bearer   ", http.StatusUnauthorized, "invalid authorization format"},
		{"disabled", "", "Bearer anything", http.StatusForbidden, "admin endpoints are disabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			})

			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			AdminAuth(tt.configured)(handler).ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.message)
		})
	}
}

func TestAdminAuth_SchemeIsCaseInsensitive(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	req.Header.Set("Authorization", "bearer "+testAdminToken)
	w := httptest.NewRecorder()

	AdminAuth(testAdminToken)(handler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestIsAdmin(t *testing.T) {
	assert.False(t, IsAdmin(context.Background()))
	assert.True(t, IsAdmin(context.WithValue(context.Background(), AdminKey, true)))
}

package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestBearerAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		keys   []string
		path   string
		header string
		want   int
	}{
		{"no keys configured", nil, "/api/v1/snapshots", "", http.StatusOK},
		{"blank keys ignored", []string{"", "  "}, "/api/v1/snapshots", "", http.StatusOK},
		{"missing header", []string{"secret"}, "/api/v1/snapshots", "", http.StatusUnauthorized},
		{"basic scheme", []string{"secret"}, "/api/v1/snapshots", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"wrong key", []string{"secret"}, "/api/v1/search", "Bearer wrong-key", http.StatusUnauthorized},
		{"empty token", []string{"secret"}, "/api/v1/search", "Bearer ", http.StatusUnauthorized},
		{"valid key", []string{"secret"}, "/api/v1/search", "Bearer secret", http.StatusOK},
		{"lowercase scheme", []string{"secret"}, "/api/v1/search", "bearer secret", http.StatusOK},
		{"second key", []string{"key1", "key2"}, "/api/v1/prefetch", "Bearer key2", http.StatusOK},
		{"configured key padded", []string{" secret "}, "/api/v1/prefetch", "Bearer secret", http.StatusOK},
		{"health exempt", []string{"secret"}, "/health", "", http.StatusOK},
		{"metrics exempt", []string{"secret"}, "/metrics", "", http.StatusOK},
		{"session route guarded", []string{"secret"}, "/api/v1/sessions/x", "", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := BearerAuthMiddleware(tc.keys)(okHandler())

			req := httptest.NewRequest("GET", tc.path, http.NoBody)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tc.want {
				t.Fatalf("got %d, want %d", rr.Code, tc.want)
			}
			if rr.Code != http.StatusUnauthorized {
				return
			}
			var errResp errorResponse
			if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if errResp.Code != CodeUnauthorized {
				t.Errorf("error code: got %s, want %s", errResp.Code, CodeUnauthorized)
			}
		})
	}
}

func TestBearerAuthMiddleware_RejectedSearchCreatesNoSession(t *testing.T) {
	f := newFixture(t)
	handler := BearerAuthMiddleware([]string{"secret"})(f.router)

	req := httptest.NewRequest("POST", "/api/v1/search", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("got %d", rr.Code)
	}
	if f.sessions.Len() != 0 || len(f.search.calls) != 0 {
		t.Error("unauthorized request reached the handler")
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		allowed     []string
		method      string
		path        string
		origin      string
		preflight   string
		wantOrigin  string
		wantStatus  int
		wantHandler bool
	}{
		{
			name:        "listed site origin",
			allowed:     []string{"https://wellness.example"},
			method:      http.MethodPost,
			path:        "/api/leads",
			origin:      "https://wellness.example",
			wantOrigin:  "https://wellness.example",
			wantStatus:  http.StatusCreated,
			wantHandler: true,
		},
		{
			name:        "trailing slash in config",
			allowed:     []string{" https://wellness.example/ "},
			method:      http.MethodGet,
			path:        "/api/auth/me",
			origin:      "https://wellness.example",
			wantOrigin:  "https://wellness.example",
			wantStatus:  http.StatusCreated,
			wantHandler: true,
		},
		{
			name:        "unknown origin still served without headers",
			allowed:     []string{"https://wellness.example"},
			method:      http.MethodPost,
			path:        "/api/chat",
			origin:      "https://evil.example",
			wantStatus:  http.StatusCreated,
			wantHandler: true,
		},
		{
			name:        "wildcard echoes origin",
			allowed:     []string{"*"},
			method:      http.MethodGet,
			path:        "/api/payments/products",
			origin:      "https://partner.example",
			wantOrigin:  "https://partner.example",
			wantStatus:  http.StatusCreated,
			wantHandler: true,
		},
		{
			name:       "admin patch preflight",
			allowed:    []string{"https://wellness.example"},
			method:     http.MethodOptions,
			path:       "/api/admin/leads/abc",
			origin:     "https://wellness.example",
			preflight:  http.MethodPatch,
			wantOrigin: "https://wellness.example",
			wantStatus: http.StatusNoContent,
		},
		{
			name:        "options without request method is passed on",
			allowed:     []string{"https://wellness.example"},
			method:      http.MethodOptions,
			path:        "/api/health",
			origin:      "https://wellness.example",
			wantOrigin:  "https://wellness.example",
			wantStatus:  http.StatusCreated,
			wantHandler: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusCreated)
			})

			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight != "" {
				req.Header.Set("Access-Control-Request-Method", tt.preflight)
			}
			rec := httptest.NewRecorder()
			CORS(tt.allowed)(next).ServeHTTP(rec, req)

			if called != tt.wantHandler {
				t.Fatalf("handler called = %v, want %v", called, tt.wantHandler)
			}
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Fatalf("expected allow origin %q, got %q", tt.wantOrigin, got)
			}
			if tt.wantOrigin == "" {
				return
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
				t.Fatalf("session cookie needs credentials, got %q", got)
			}
			if methods := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(methods, http.MethodPatch) {
				t.Fatalf("admin updates need PATCH, got %q", methods)
			}
			if vary := rec.Header().Values("Vary"); len(vary) == 0 || vary[0] != "Origin" {
				t.Fatalf("expected Vary: Origin, got %v", vary)
			}
		})
	}
}

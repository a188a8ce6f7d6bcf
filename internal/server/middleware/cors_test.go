package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// TestCORS tests CORS header handling.
func TestCORS(t *testing.T) {
	tests := []struct {
		name         string
		config       CORSConfig
		origin       string
		expectOrigin string
	}{
		{
			name:         "allow all",
			config:       CORSConfig{AllowAll: true},
			origin:       "https://app.example.com",
			expectOrigin: "*",
		},
		{
			name:         "listed origin echoed",
			config:       CORSConfig{AllowedOrigins: []string{"https://ui.local"}},
			origin:       "https://ui.local",
			expectOrigin: "https://ui.local",
		},
		{
			name:         "wildcard subdomain",
			config:       CORSConfig{AllowedOrigins: []string{"*.example.com"}},
			origin:       "https://app.example.com",
			expectOrigin: "https://app.example.com",
		},
		{
			name:         "unlisted origin",
			config:       CORSConfig{AllowedOrigins: []string{"https://ui.local"}},
			origin:       "https://evil.test",
			expectOrigin: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/projects", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			CORS(tt.config)(okHandler()).ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.expectOrigin {
				t.Errorf("expected Allow-Origin %q, got %q", tt.expectOrigin, got)
			}
			if w.Header().Get("Access-Control-Expose-Headers") != RequestIDHeader {
				t.Error("request ID header not exposed")
			}
			if w.Code != http.StatusOK {
				t.Errorf("expected 200, got %d", w.Code)
			}
		})
	}
}

// TestCORS_PreflightShortCircuit verifies preflight requests never reach the handler.
func TestCORS_PreflightShortCircuit(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/projects", nil)
	req.Header.Set("Origin", "https://ui.local")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	CORS(DefaultCORSConfig())(handler).ServeHTTP(w, req)

	if called {
		t.Error("handler should not run for preflight")
	}
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
}

// TestCORS_PlainOptions passes through when it is not a preflight.
func TestCORS_PlainOptions(t *testing.T) {
	w := httptest.NewRecorder()
	CORS(DefaultCORSConfig())(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected handler response, got %d", w.Code)
	}
}

// TestCORSConfig_Allows covers the websocket origin check.
func TestCORSConfig_Allows(t *testing.T) {
	restricted := CORSConfig{AllowedOrigins: []string{"https://ui.local", "*.example.com"}}

	cases := map[string]bool{
		"":                         true,
		"https://ui.local":         true,
		"https://a.example.com":    true,
		"https://example.com.evil": false,
		"http://other":             false,
	}
	for origin, want := range cases {
		if got := restricted.Allows(origin); got != want {
			t.Errorf("Allows(%q) = %v, want %v", origin, got, want)
		}
	}

	if !(CORSConfig{AllowAll: true}).Allows("http://anything") {
		t.Error("AllowAll should accept any origin")
	}
}

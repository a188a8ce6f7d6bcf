package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/agentstation/appgen/pkg/logging"
)

// TestChain_ExecutionOrder verifies first added is outermost middleware.
func TestChain_ExecutionOrder(t *testing.T) {
	var executionLog []string

	wrap := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				executionLog = append(executionLog, "start-"+name)
				next.ServeHTTP(w, r)
				executionLog = append(executionLog, "end-"+name)
			})
		}
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		executionLog = append(executionLog, "handler")
		w.WriteHeader(http.StatusOK)
	})

	chained := Chain(wrap("1"), wrap("2"))(handler)
	chained.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/test", nil))

	expected := []string{"start-1", "start-2", "handler", "end-2", "end-1"}
	if len(executionLog) != len(expected) {
		t.Fatalf("expected %d log entries, got %d", len(expected), len(executionLog))
	}
	for i, exp := range expected {
		if executionLog[i] != exp {
			t.Errorf("log[%d]: expected %s, got %s", i, exp, executionLog[i])
		}
	}
}

// TestChain_Empty passes straight through to the handler.
func TestChain_Empty(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	Chain()(handler).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if !called {
		t.Error("handler not called")
	}
	if w.Code != http.StatusTeapot {
		t.Errorf("expected 418, got %d", w.Code)
	}
}

// TestLogger tests request logging middleware.
func TestLogger(t *testing.T) {
	tests := []struct {
		name          string
		method        string
		path          string
		handlerStatus int
	}{
		{name: "GET request", method: "GET", path: "/api/v1/projects", handlerStatus: http.StatusOK},
		{name: "POST request", method: "POST", path: "/api/v1/projects/p1/run", handlerStatus: http.StatusAccepted},
		{name: "error status", method: "GET", path: "/api/v1/projects/missing", handlerStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)

			handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.handlerStatus)
			})

			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.RemoteAddr = "192.168.1.1:12345"
			w := httptest.NewRecorder()
			Logger(&logger)(handler).ServeHTTP(w, req)

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("log output is not JSON: %v (%q)", err, buf.String())
			}
			if entry["method"] != tt.method {
				t.Errorf("expected method %s, got %v", tt.method, entry["method"])
			}
			if entry["path"] != tt.path {
				t.Errorf("expected path %s, got %v", tt.path, entry["path"])
			}
			if int(entry["status"].(float64)) != tt.handlerStatus {
				t.Errorf("expected status %d, got %v", tt.handlerStatus, entry["status"])
			}
			if entry["request_id"] == "" || entry["request_id"] == nil {
				t.Error("log missing request_id")
			}
			if w.Header().Get(RequestIDHeader) == "" {
				t.Error("response missing request ID header")
			}
		})
	}
}

// TestLogger_RequestContext checks that handlers see the request ID and logger.
func TestLogger_RequestContext(t *testing.T) {
	logger := zerolog.Nop()

	var seenID string
	var seenLogger *zerolog.Logger
	handler := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seenID = logging.RequestID(r.Context())
		seenLogger = logging.FromContext(r.Context())
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	Logger(&logger)(handler).ServeHTTP(w, req)

	if seenID != "req-123" {
		t.Errorf("expected propagated request ID, got %q", seenID)
	}
	if seenLogger == nil || seenLogger == logging.Default() {
		t.Error("expected a request scoped logger in context")
	}
	if got := w.Header().Get(RequestIDHeader); got != "req-123" {
		t.Errorf("expected echoed request ID, got %q", got)
	}
}

// TestRecovery tests panic recovery.
func TestRecovery(t *testing.T) {
	tests := []struct {
		name         string
		panicValue   any
		shouldPanic  bool
		expectStatus int
	}{
		{name: "no panic", expectStatus: http.StatusOK},
		{name: "panic with string", shouldPanic: true, panicValue: "something went wrong", expectStatus: http.StatusInternalServerError},
		{name: "panic with error", shouldPanic: true, panicValue: http.ErrBodyNotAllowed, expectStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)

			handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.shouldPanic {
					panic(tt.panicValue)
				}
				w.WriteHeader(http.StatusOK)
			})

			w := httptest.NewRecorder()
			Recovery(&logger)(handler).ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

			if w.Code != tt.expectStatus {
				t.Errorf("expected status %d, got %d", tt.expectStatus, w.Code)
			}

			logged := strings.Contains(buf.String(), "Panic recovered")
			if logged != tt.shouldPanic {
				t.Errorf("panic logged = %v, want %v", logged, tt.shouldPanic)
			}
			if tt.shouldPanic && !strings.Contains(w.Body.String(), "INTERNAL_ERROR") {
				t.Error("response missing INTERNAL_ERROR code")
			}
		})
	}
}

// TestRecovery_AbortHandler lets http.ErrAbortHandler through to net/http.
func TestRecovery_AbortHandler(t *testing.T) {
	logger := zerolog.Nop()
	handler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	})

	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Errorf("expected ErrAbortHandler to propagate, got %v", r)
		}
	}()
	Recovery(&logger)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
}

// TestResponseWriter tests the responseWriter wrapper.
func TestResponseWriter(t *testing.T) {
	t.Run("first status wins", func(t *testing.T) {
		rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
		rw.WriteHeader(http.StatusCreated)
		rw.WriteHeader(http.StatusBadRequest)
		if rw.statusCode != http.StatusCreated {
			t.Errorf("expected 201, got %d", rw.statusCode)
		}
	})

	t.Run("flush reaches recorder", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		rw := &responseWriter{ResponseWriter: recorder, statusCode: http.StatusOK}
		var w http.ResponseWriter = rw
		f, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("responseWriter does not implement http.Flusher")
		}
		f.Flush()
		if !recorder.Flushed {
			t.Error("expected underlying recorder to be flushed")
		}
	})

	t.Run("hijack unsupported", func(t *testing.T) {
		rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
		if _, _, err := rw.Hijack(); err == nil {
			t.Error("expected error hijacking a recorder")
		}
		if rw.hijacked {
			t.Error("hijacked flag set on failure")
		}
	})

	t.Run("unwrap", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		rw := &responseWriter{ResponseWriter: recorder}
		if rw.Unwrap() != recorder {
			t.Error("Unwrap did not return the wrapped writer")
		}
	})
}

// TestRecovery_RequestIDInBody checks the 500 envelope names the request.
func TestRecovery_RequestIDInBody(t *testing.T) {
	logger := zerolog.Nop()
	handler := Chain(Logger(&logger), Recovery(&logger))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest("GET", "/api/v1/projects", nil)
	req.Header.Set(RequestIDHeader, "req-panic")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var body struct {
		Error struct {
			Code      string `json:"code"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "INTERNAL_ERROR" || body.Error.RequestID != "req-panic" {
		t.Errorf("error = %+v, want INTERNAL_ERROR with req-panic", body.Error)
	}
}

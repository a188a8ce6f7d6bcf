package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// TestRateLimiter_Allow tests basic rate limiting logic.
func TestRateLimiter_Allow(t *testing.T) {
	logger := zerolog.Nop()

	tests := []struct {
		name          string
		limit         int
		requests      int
		expectedAllow int
	}{
		{name: "within limit", limit: 10, requests: 5, expectedAllow: 5},
		{name: "at limit", limit: 10, requests: 10, expectedAllow: 10},
		{name: "exceeds limit", limit: 10, requests: 15, expectedAllow: 10},
		{name: "limit of one", limit: 1, requests: 3, expectedAllow: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := NewRateLimiter(tt.limit, &logger)
			allowed := 0
			for range tt.requests {
				if ok, _ := rl.allow("10.0.0.1"); ok {
					allowed++
				}
			}
			if allowed != tt.expectedAllow {
				t.Errorf("expected %d allowed, got %d", tt.expectedAllow, allowed)
			}
		})
	}
}

// TestRateLimiter_WindowReset refills after the window passes.
func TestRateLimiter_WindowReset(t *testing.T) {
	logger := zerolog.Nop()
	rl := NewRateLimiter(1, &logger)
	rl.window = 20 * time.Millisecond

	if ok, _ := rl.allow("a"); !ok {
		t.Fatal("first request should pass")
	}
	ok, retry := rl.allow("a")
	if ok {
		t.Fatal("second request should be limited")
	}
	if retry <= 0 || retry > rl.window {
		t.Errorf("unexpected retry interval %v", retry)
	}

	time.Sleep(30 * time.Millisecond)
	if ok, _ := rl.allow("a"); !ok {
		t.Error("request after window should pass")
	}
}

// TestRateLimiter_MultipleIPs keeps buckets independent.
func TestRateLimiter_MultipleIPs(t *testing.T) {
	logger := zerolog.Nop()
	rl := NewRateLimiter(2, &logger)

	for _, ip := range []string{"a", "b", "c"} {
		for i := range 2 {
			if ok, _ := rl.allow(ip); !ok {
				t.Errorf("%s request %d should pass", ip, i)
			}
		}
		if ok, _ := rl.allow(ip); ok {
			t.Errorf("%s third request should be limited", ip)
		}
	}
	if rl.Visitors() != 3 {
		t.Errorf("expected 3 visitors, got %d", rl.Visitors())
	}
}

// TestRateLimiter_VisitorCreation creates one bucket under concurrent first use.
func TestRateLimiter_VisitorCreation(t *testing.T) {
	logger := zerolog.Nop()
	rl := NewRateLimiter(100, &logger)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := rl.allow("192.168.1.1"); ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if rl.Visitors() != 1 {
		t.Errorf("expected 1 visitor, got %d", rl.Visitors())
	}
	if allowed.Load() != 50 {
		t.Errorf("expected 50 allowed, got %d", allowed.Load())
	}
}

// TestClientIP tests address extraction.
func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.168.1.9:5555"
	if got := clientIP(req); got != "192.168.1.9" {
		t.Errorf("expected host without port, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Errorf("expected first forwarded hop, got %q", got)
	}
}

// TestRateLimiter_Middleware tests the HTTP middleware.
func TestRateLimiter_Middleware(t *testing.T) {
	logger := zerolog.Nop()
	rl := NewRateLimiter(2, &logger)
	handler := RateLimit(rl)(okHandler())

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for range 3 {
		req := httptest.NewRequest("GET", "/api/v1/projects", nil)
		req.RemoteAddr = "192.168.1.1:1234"
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("expected first two requests to pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", codes[2])
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if !strings.Contains(last.Body.String(), "RATE_LIMITED") {
		t.Error("expected RATE_LIMITED in response body")
	}
}

package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/onnwee/market-pulse/backend/internal/logger"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
}

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var ctxID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID, _ = r.Context().Value(logger.RequestIDKey).(string)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	headerID := rr.Header().Get(RequestIDHeader)
	if headerID == "" {
		t.Fatal("Expected a generated request ID header")
	}
	if ctxID != headerID {
		t.Errorf("Context ID %q must match header %q", ctxID, headerID)
	}
}

func TestRequestID_ReusesClientProvided(t *testing.T) {
	handler := RequestID(okHandler())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "client-supplied-id")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get(RequestIDHeader); got != "client-supplied-id" {
		t.Errorf("Expected client ID to be reused, got %q", got)
	}
}

func TestRecoverWithSentry_Recovers(t *testing.T) {
	handler := RecoverWithSentry(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 after panic, got %d", rr.Code)
	}
}

func TestRecoverWithSentry_PassesThrough(t *testing.T) {
	handler := RecoverWithSentry(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if rr.Code != http.StatusOK || rr.Body.String() != "OK" {
		t.Errorf("Expected untouched response, got %d %q", rr.Code, rr.Body.String())
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	} {
		if got := rr.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must not be set on plain HTTP")
	}
}

func TestCORS_AllowedOrigin(t *testing.T) {
	handler := CORS(DefaultCORSConfig())(okHandler())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Expected origin echoed, got %q", got)
	}
	exposed := rr.Header().Get("Access-Control-Expose-Headers")
	if !strings.Contains(exposed, "X-Cache-Stale") {
		t.Errorf("X-Cache-Stale must be exposed for the staleness banner, got %q", exposed)
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	handler := CORS(DefaultCORSConfig())(okHandler())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Disallowed origin must not be echoed, got %q", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	handler := CORS(DefaultCORSConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Preflight must not reach the handler")
	}))

	req := httptest.NewRequest("OPTIONS", "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for preflight, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("Preflight must advertise allowed methods")
	}
}

func TestIsOriginAllowed_WildcardSubdomain(t *testing.T) {
	allowed := []string{"*.market-pulse.app"}
	if !isOriginAllowed("https://staging.market-pulse.app", allowed) {
		t.Error("Subdomain wildcard must match")
	}
	if isOriginAllowed("https://market-pulse.app.evil.example", allowed) {
		t.Error("Suffix trickery must not match")
	}
}

func TestRateLimiter_PerIP(t *testing.T) {
	rl := NewRateLimiter(1000, 1000, 1, 2)
	defer rl.Stop()
	handler := rl.Limit(okHandler())

	status := func(ip string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = ip + ":12345"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	// Burst of 2 allowed, third rejected
	if status("10.0.0.1") != http.StatusOK || status("10.0.0.1") != http.StatusOK {
		t.Fatal("Expected burst to pass")
	}
	if status("10.0.0.1") != http.StatusTooManyRequests {
		t.Error("Expected per-IP limit after the burst")
	}
	// A different IP has its own budget
	if status("10.0.0.2") != http.StatusOK {
		t.Error("Second IP must not share the first IP's budget")
	}
}

func TestRateLimiter_Global(t *testing.T) {
	rl := NewRateLimiter(1, 1, 1000, 1000)
	defer rl.Stop()
	handler := rl.Limit(okHandler())

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:12345"

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("First request must pass, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("Expected global limit, got %d", rr.Code)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{"remote addr", "192.0.2.1:9999", "", "", "192.0.2.1"},
		{"x-forwarded-for single", "10.0.0.1:80", "203.0.113.7", "", "203.0.113.7"},
		{"x-forwarded-for chain", "10.0.0.1:80", "203.0.113.7, 10.0.0.2", "", "203.0.113.7"},
		{"x-real-ip", "10.0.0.1:80", "", "203.0.113.9", "203.0.113.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompression_Gzip(t *testing.T) {
	payload := strings.Repeat(`{"date":"2026-01-01","value":3.14},`, 200)
	handler := Compression(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Expected gzip encoding, got %q", got)
	}
	gz, err := gzip.NewReader(rr.Body)
	if err != nil {
		t.Fatalf("gzip reader failed: %v", err)
	}
	defer gz.Close()
	body, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("decompress failed: %v", err)
	}
	if string(body) != payload {
		t.Error("Round-tripped payload differs")
	}
}

func TestCompression_PrefersBrotli(t *testing.T) {
	handler := Compression(okHandler())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("Content-Encoding"); got != "br" {
		t.Errorf("Expected brotli preferred, got %q", got)
	}
}

func TestCompression_NoneWithoutAcceptHeader(t *testing.T) {
	handler := Compression(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if got := rr.Header().Get("Content-Encoding"); got != "" {
		t.Errorf("Expected identity encoding, got %q", got)
	}
	if rr.Body.String() != "OK" {
		t.Errorf("Expected raw body, got %q", rr.Body.String())
	}
}

func TestCompression_SetsVaryHeader(t *testing.T) {
	handler := Compression(okHandler())

	// Compressed and identity responses alike must tell caches the body
	// depends on Accept-Encoding.
	for _, accept := range []string{"br", "gzip", ""} {
		req := httptest.NewRequest("GET", "/", nil)
		if accept != "" {
			req.Header.Set("Accept-Encoding", accept)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if vary := rr.Header().Get("Vary"); !strings.Contains(vary, "Accept-Encoding") {
			t.Errorf("Accept-Encoding %q: expected Vary to contain Accept-Encoding, got %q", accept, vary)
		}
	}
}

func TestCompression_SkipsWebSocketUpgrade(t *testing.T) {
	handler := Compression(okHandler())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Upgrade", "websocket")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("Content-Encoding"); got != "" {
		t.Errorf("Upgrade requests must bypass compression, got %q", got)
	}
}

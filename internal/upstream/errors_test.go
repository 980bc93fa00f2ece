package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestClassifyErr(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantKind  ErrorKind
		retryable bool
	}{
		{"deadline exceeded", context.DeadlineExceeded, KindTimeout, true},
		{"canceled", context.Canceled, KindUnknown, false},
		{"timeout in message", errors.New("dial tcp: i/o timeout"), KindTimeout, true},
		{"connection refused", errors.New("dial tcp 127.0.0.1:9000: connection refused"), KindNetwork, true},
		{"no such host", errors.New("lookup proxy.example: no such host"), KindNetwork, true},
		{"connection reset", errors.New("read: connection reset by peer"), KindNetwork, true},
		{"anything else", errors.New("tls handshake failure"), KindNetwork, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyErr(tt.err)
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %d, want %d", got.Kind, tt.wantKind)
			}
			if got.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.retryable)
			}
		})
	}

	if ClassifyErr(nil) != nil {
		t.Error("ClassifyErr(nil) must be nil")
	}
}

func respWith(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestClassifyResponse(t *testing.T) {
	tests := []struct {
		name      string
		resp      *http.Response
		wantKind  ErrorKind
		retryable bool
	}{
		{"429", respWith(429, ""), KindRateLimited, true},
		{"401", respWith(401, ""), KindAuth, false},
		{"403", respWith(403, ""), KindAuth, false},
		{"504", respWith(504, ""), KindTimeout, true},
		{"500", respWith(500, "internal error"), KindServer, true},
		{"503", respWith(503, ""), KindServer, true},
		{"404", respWith(404, ""), KindUnknown, false},
		{"400 with api key text", respWith(400, `{"error":"Bad Request. The value for variable api_key is not registered."}`), KindAuth, false},
		{"403 with rate limit text", respWith(403, "Rate limit exceeded, try again later"), KindRateLimited, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyResponse(tt.resp)
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %d, want %d", got.Kind, tt.wantKind)
			}
			if got.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.retryable)
			}
			if got.StatusCode != tt.resp.StatusCode {
				t.Errorf("StatusCode = %d, want %d", got.StatusCode, tt.resp.StatusCode)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	kinds := []ErrorKind{KindTimeout, KindNetwork, KindAuth, KindRateLimited, KindMalformed, KindServer, KindUnknown}
	seen := map[string]bool{}
	for _, k := range kinds {
		msg := (&APIError{Kind: k}).UserMessage()
		if msg == "" {
			t.Errorf("Kind %d has empty user message", k)
		}
		if seen[msg] {
			t.Errorf("Kind %d reuses message %q", k, msg)
		}
		seen[msg] = true
	}
}

func TestKindOfAndIsRetryable(t *testing.T) {
	wrapped := &APIError{Kind: KindRateLimited, Retryable: true}
	if KindOf(wrapped) != KindRateLimited {
		t.Error("KindOf failed on direct APIError")
	}
	if !IsRetryable(wrapped) {
		t.Error("IsRetryable failed on direct APIError")
	}

	foreign := errors.New("plain error")
	if KindOf(foreign) != KindUnknown {
		t.Error("Foreign errors classify as unknown")
	}
	if IsRetryable(foreign) {
		t.Error("Foreign errors are not retryable")
	}

	malformed := Malformed(errors.New("unexpected end of JSON input"))
	if malformed.Kind != KindMalformed {
		t.Error("Malformed must classify as KindMalformed")
	}
	if malformed.Retryable {
		t.Error("Malformed responses are not retryable")
	}
}

package transport

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rhuss/funcrun/pkg/api"
)

func TestChainAppliesMiddlewareInOrder(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name+":before")
				next.ServeHTTP(w, r)
				order = append(order, name+":after")
			})
		}
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	})

	wrapped := Chain(mw("first"), mw("second"), mw("third"))(handler)
	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	expected := []string{
		"first:before", "second:before", "third:before",
		"handler",
		"third:after", "second:after", "first:after",
	}
	if strings.Join(order, ",") != strings.Join(expected, ",") {
		t.Errorf("order = %v, want %v", order, expected)
	}
}

func TestRecoveryCatchesPanic(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	rec := httptest.NewRecorder()
	Recovery(logger)(handler).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	var resp api.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if resp.Error.Type != api.ErrorTypeServerError || !strings.Contains(resp.Error.Message, "test panic") {
		t.Errorf("unexpected error %+v", resp.Error)
	}
	if !strings.Contains(logs.String(), "handler panicked") {
		t.Errorf("panic not logged: %s", logs.String())
	}
}

func TestRecoveryAfterHeaderWritten(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("late panic")
	})

	rec := httptest.NewRecorder()
	Recovery(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))(handler).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want the already written 202", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("no error body expected after headers, got %q", rec.Body.String())
	}
}

func TestRequestID(t *testing.T) {
	long := strings.Repeat("x", maxRequestIDLen+1)

	tests := []struct {
		name     string
		header   string
		wantKept bool
	}{
		{"generated when absent", "", false},
		{"client id kept", "req-123", true},
		{"oversized id replaced", long, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			RequestID()(handler).ServeHTTP(rec, req)

			if seen == "" {
				t.Fatal("request ID missing from context")
			}
			if got := rec.Header().Get(RequestIDHeader); got != seen {
				t.Errorf("response header = %q, context = %q", got, seen)
			}
			if tt.wantKept && seen != tt.header {
				t.Errorf("request ID = %q, want %q", seen, tt.header)
			}
			if !tt.wantKept {
				if _, err := uuid.Parse(seen); err != nil || seen == tt.header {
					t.Errorf("expected a generated UUID, got %q", seen)
				}
			}
		})
	}
}

func TestLogging(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{"success", http.StatusOK, "level=INFO"},
		{"client error", http.StatusUnauthorized, "level=INFO"},
		{"server error", http.StatusBadGateway, "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logs, nil))

			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			wrapped := Chain(RequestID(), Logging(logger))(handler)

			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			req.Header.Set(RequestIDHeader, "req-log")
			wrapped.ServeHTTP(httptest.NewRecorder(), req)

			out := logs.String()
			for _, want := range []string{tt.wantLevel, "method=POST", "path=/mcp", "request_id=req-log"} {
				if !strings.Contains(out, want) {
					t.Errorf("log %q missing %q", out, want)
				}
			}
			if !strings.Contains(out, "status="+strconv.Itoa(tt.status)) {
				t.Errorf("log %q missing status %d", out, tt.status)
			}
		})
	}
}

func TestLogging_Flusher(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var flushable bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		f, ok := w.(http.Flusher)
		flushable = ok
		if ok {
			f.Flush()
		}
	})

	rec := httptest.NewRecorder()
	Logging(logger)(handler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))

	if !flushable {
		t.Fatal("wrapped writer does not implement http.Flusher")
	}
	if !rec.Flushed {
		t.Error("Flush did not reach the underlying writer")
	}
}

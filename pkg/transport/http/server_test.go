package http

import (
	"context"
	"io"
	"log/slog"
	"net"
	gohttp "net/http"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/funcrun/pkg/transport"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	return ln
}

func TestServerRunServesAndStops(t *testing.T) {
	var sawID string
	handler := gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		sawID = transport.RequestIDFromContext(r.Context())
		io.WriteString(w, "ok")
	})

	ln := listen(t)
	addr := ln.Addr().String()
	srv := NewServer(handler, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.serve(ctx, ln) }()

	var resp *gohttp.Response
	var err error
	for i := 0; i < 20; i++ {
		resp, err = gohttp.Get("http://" + addr + "/healthz")
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if string(body) != "ok" {
		t.Errorf("body = %q, want ok", body)
	}
	if sawID == "" || resp.Header.Get(transport.RequestIDHeader) != sawID {
		t.Errorf("request ID not propagated: ctx=%q header=%q", sawID, resp.Header.Get(transport.RequestIDHeader))
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServerGracefulShutdown(t *testing.T) {
	started := make(chan struct{})
	slow := gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		close(started)
		time.Sleep(200 * time.Millisecond)
		io.WriteString(w, "done")
	})

	ln := listen(t)
	addr := ln.Addr().String()
	srv := NewServer(slow, WithShutdownTimeout(5*time.Second), WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.serve(ctx, ln) }()

	statusCh := make(chan int, 1)
	go func() {
		resp, err := gohttp.Get("http://" + addr + "/slow")
		if err != nil {
			statusCh <- 0
			return
		}
		defer resp.Body.Close()
		statusCh <- resp.StatusCode
	}()

	<-started
	cancel()

	if status := <-statusCh; status != gohttp.StatusOK {
		t.Errorf("in-flight request status = %d, want 200", status)
	}
	if err := <-done; err != nil {
		t.Errorf("serve returned %v", err)
	}
}

func TestServerMaxBodySize(t *testing.T) {
	handler := gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			gohttp.Error(w, err.Error(), gohttp.StatusRequestEntityTooLarge)
			return
		}
		io.WriteString(w, "ok")
	})

	srv := NewServer(handler, WithMaxBodySize(8), WithLogger(quietLogger()))

	ln := listen(t)
	addr := ln.Addr().String()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.serve(ctx, ln)

	var resp *gohttp.Response
	var err error
	for i := 0; i < 20; i++ {
		resp, err = gohttp.Post("http://"+addr+"/mcp", "application/json", strings.NewReader(`{"too":"large"}`))
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != gohttp.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", resp.StatusCode)
	}
}

func TestServerMiddlewareOrder(t *testing.T) {
	var order []string
	mw := func(name string) transport.Middleware {
		return func(next gohttp.Handler) gohttp.Handler {
			return gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
				if transport.RequestIDFromContext(r.Context()) == "" {
					t.Errorf("%s ran before the request ID middleware", name)
				}
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	handler := gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		order = append(order, "handler")
	})

	srv := NewServer(handler, WithMiddleware(mw("auth"), mw("metrics")), WithLogger(quietLogger()))

	ln := listen(t)
	addr := ln.Addr().String()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.serve(ctx, ln)

	var err error
	for i := 0; i < 20; i++ {
		var resp *gohttp.Response
		resp, err = gohttp.Get("http://" + addr + "/")
		if err == nil {
			resp.Body.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	if strings.Join(order, ",") != "auth,metrics,handler" {
		t.Errorf("order = %v", order)
	}
}

func TestServerFunctionalOptions(t *testing.T) {
	srv := NewServer(gohttp.NotFoundHandler(),
		WithAddr(":9999"),
		WithMaxBodySize(1024),
		WithShutdownTimeout(10*time.Second),
	)

	if srv.config.Addr != ":9999" {
		t.Errorf("addr = %q, want %q", srv.config.Addr, ":9999")
	}
	if srv.config.MaxBodySize != 1024 {
		t.Errorf("max body size = %d, want %d", srv.config.MaxBodySize, 1024)
	}
	if srv.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("shutdown timeout = %v, want %v", srv.config.ShutdownTimeout, 10*time.Second)
	}
	if srv.Handler() == nil {
		t.Error("Handler() returned nil")
	}
}

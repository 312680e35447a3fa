package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestProxyConfigDisabled(t *testing.T) {
	cases := []struct {
		name string
		cfg  ProxyConfig
		want bool
	}{
		{"none type", ProxyConfig{Type: ProxyNone, Host: "h", Port: 1080}, true},
		{"empty host", ProxyConfig{Type: ProxyHTTP, Host: "", Port: 1080}, true},
		{"port too low", ProxyConfig{Type: ProxyHTTP, Host: "h", Port: 0}, true},
		{"port too high", ProxyConfig{Type: ProxyHTTP, Host: "h", Port: 70000}, true},
		{"valid socks5", ProxyConfig{Type: ProxySOCKS5, Host: "h", Port: 1080}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.cfg.Disabled(); got != c.want {
				t.Errorf("Disabled() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestDoReturnsBodyOn2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	tr, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := tr.Do(context.Background(), http.MethodGet, srv.URL, nil, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if string(resp.Body) != "ok" {
		t.Fatalf("expected body 'ok', got %q", resp.Body)
	}
}

func TestDoReturnsHTTPErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	tr, _ := New(DefaultConfig())
	_, err := tr.Do(context.Background(), http.MethodGet, srv.URL, nil, nil)
	terr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if terr.Code != CodeHTTPError || terr.Status != 500 {
		t.Fatalf("expected HTTP_ERROR/500, got %v/%v", terr.Code, terr.Status)
	}
}

func TestStreamDeliversChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: hello\n\n")
		flusher.Flush()
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer srv.Close()

	tr, _ := New(DefaultConfig())

	var mu sync.Mutex
	var received []byte
	_, err := tr.Stream(context.Background(), http.MethodGet, srv.URL, nil, nil, func(chunk []byte) {
		mu.Lock()
		received = append(received, chunk...)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if !strings.Contains(string(received), "data: hello") {
		t.Fatalf("expected to receive 'data: hello', got %q", received)
	}
}

func TestStreamFallsBackToUnaryReplay(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		first := attempts == 1
		mu.Unlock()

		if first {
			// Cut the connection mid-body so the streaming read fails
			// without a definitive HTTP status.
			w.(http.Flusher).Flush()
			panic(http.ErrAbortHandler)
		}
		fmt.Fprint(w, "data: hello\n\n")
	}))
	defer srv.Close()

	tr, _ := New(DefaultConfig())

	var received []byte
	result, err := tr.Stream(context.Background(), http.MethodGet, srv.URL, nil, nil, func(chunk []byte) {
		mu.Lock()
		received = append(received, chunk...)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if !result.FellBack {
		t.Fatalf("expected FellBack set on the replayed result")
	}
	if !strings.Contains(string(received), "data: hello") {
		t.Fatalf("expected replayed body to reach the handler, got %q", received)
	}
}

func TestStreamHTTPErrorNotFallenBack(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("no such model"))
	}))
	defer srv.Close()

	tr, _ := New(DefaultConfig())
	_, err := tr.Stream(context.Background(), http.MethodGet, srv.URL, nil, nil, func([]byte) {})
	terr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T (%v)", err, err)
	}
	if terr.Code != CodeHTTPError || terr.Status != http.StatusNotFound {
		t.Fatalf("expected HTTP_ERROR/404 with status preserved, got %v/%v", terr.Code, terr.Status)
	}
	mu.Lock()
	defer mu.Unlock()
	if attempts != 1 {
		t.Fatalf("expected no unary retry on a definitive status, got %d attempts", attempts)
	}
}

func TestReplayPreservesUTF8Boundaries(t *testing.T) {
	body := []byte("data: caf\xc3\xa9 hello world, this is a longer payload to split\n\n")

	var chunks [][]byte
	replay(body, func(c []byte) {
		b := make([]byte, len(c))
		copy(b, c)
		chunks = append(chunks, b)
	})

	var reassembled []byte
	for _, c := range chunks {
		reassembled = append(reassembled, c...)
	}
	if string(reassembled) != string(body) {
		t.Fatalf("replay did not preserve full body")
	}
	for _, c := range chunks {
		if len(c) > 0 && isUTF8Continuation(c[0]) {
			t.Fatalf("chunk starts with a UTF-8 continuation byte: %v", c)
		}
	}
}

func TestReplayChunkCountWithinBounds(t *testing.T) {
	body := make([]byte, 20000)
	for i := range body {
		body[i] = 'a'
	}
	n := 0
	start := time.Now()
	replay(body, func([]byte) { n++ })
	elapsed := time.Since(start)

	if n < minChunks || n > maxChunks {
		t.Fatalf("expected chunk count within [%d,%d], got %d", minChunks, maxChunks, n)
	}
	if elapsed < minReplayTotal {
		t.Fatalf("expected replay to take at least %v, took %v", minReplayTotal, elapsed)
	}
}

func TestStreamAbortedNotFallenBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	tr, _ := New(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Stream(ctx, http.MethodGet, srv.URL, nil, nil, func([]byte) {})
	terr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if terr.Code != CodeAborted {
		t.Fatalf("expected ABORTED on cancellation, got %v", terr.Code)
	}
}

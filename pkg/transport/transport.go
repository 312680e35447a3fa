// Package transport implements the HTTP request/response and streaming
// layer beneath the provider adapters: unary and streaming
// requests, proxy configuration, overall/idle timeouts, and transparent
// streaming-to-unary fallback with buffered-replay pseudo-chunking.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/net/proxy"

	"github.com/socratic-council/council/pkg/log"
	"github.com/socratic-council/council/pkg/ratelimit"
)

// sharedLimiters is the process-wide registry every Transport draws its
// outbound budget from. Transports configured with the same RateLimit.Key
// (normally a provider name) share one token bucket, so two adapters
// bound to the same upstream account can't each claim the configured
// rate for themselves.
var sharedLimiters = ratelimit.NewRegistry()

// anonLimiterSeq mints a private registry key for a Transport that
// doesn't set RateLimit.Key, so its bucket is never accidentally shared
// with another Transport.
var anonLimiterSeq uint64

// ErrorCode is the machine-readable transport error taxonomy.
type ErrorCode string

const (
	CodeHTTPError          ErrorCode = "HTTP_ERROR"
	CodeFetchRequestFailed ErrorCode = "FETCH_REQUEST_FAILED"
	CodeFetchStreamFailed  ErrorCode = "FETCH_STREAM_FAILED"
	CodeStreamTimeout      ErrorCode = "STREAM_TIMEOUT"
	CodeStreamIdleTimeout  ErrorCode = "STREAM_IDLE_TIMEOUT"
	CodeAborted            ErrorCode = "ABORTED"
	CodeFallbackFailed     ErrorCode = "FALLBACK_FAILED"
)

// Error is a transport-layer failure carrying a code, an optional HTTP
// status, and a human-readable message.
type Error struct {
	Code    ErrorCode
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ProxyType enumerates the recognized proxy schemes.
type ProxyType string

const (
	ProxyNone    ProxyType = "none"
	ProxyHTTP    ProxyType = "http"
	ProxyHTTPS   ProxyType = "https"
	ProxySOCKS5  ProxyType = "socks5"
	ProxySOCKS5H ProxyType = "socks5h"
)

// ProxyConfig is the single global proxy configuration for a Transport.
type ProxyConfig struct {
	Type ProxyType
	Host string
	Port int
}

// Disabled reports whether this configuration should be treated as no
// proxy at all: type none, empty host, or a port outside
// 1..65535.
func (p ProxyConfig) Disabled() bool {
	return p.Type == "" || p.Type == ProxyNone || p.Host == "" || p.Port < 1 || p.Port > 65535
}

func (p ProxyConfig) url() (*url.URL, error) {
	scheme := string(p.Type)
	return url.Parse(fmt.Sprintf("%s://%s:%d", scheme, p.Host, p.Port))
}

// Config controls timeouts and proxying for a Transport.
type Config struct {
	OverallTimeout time.Duration
	IdleTimeout    time.Duration
	Proxy          ProxyConfig

	// RateLimit, when RatePerSecond > 0, caps outbound requests issued by
	// this Transport so a runaway bidding round can't re-trigger the same
	// provider every turn. Zero value leaves the limiter disabled.
	RateLimit RateLimitConfig
}

// RateLimitConfig configures the optional outbound limiter. Key selects
// which bucket in the shared registry this Transport draws from — set it
// to the provider name so every adapter bound to the same upstream
// account shares one budget; leave it empty for a private, unshared
// bucket.
type RateLimitConfig struct {
	RatePerSecond float64
	Burst         int
	Key           string
}

// DefaultConfig returns the documented timeout defaults.
func DefaultConfig() Config {
	return Config{
		OverallTimeout: 180 * time.Second,
		IdleTimeout:    120 * time.Second,
	}
}

// Transport issues unary and streaming HTTP requests. Its proxy dialer is
// built once, in New, and reused across requests and turns; building it
// is not deferred to first use, so a bad proxy configuration fails New.
type Transport struct {
	cfg        Config
	client     *http.Client
	limiter    *ratelimit.Registry
	limiterKey string
}

// New builds a Transport from cfg, applying documented defaults to any
// zero-value timeout.
func New(cfg Config) (*Transport, error) {
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = 180 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 120 * time.Second
	}

	transport := &http.Transport{}
	if !cfg.Proxy.Disabled() {
		dialer, err := buildProxyDialer(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("transport: configure proxy: %w", err)
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	}

	key := cfg.RateLimit.Key
	if key == "" {
		key = fmt.Sprintf("anon-%d", atomic.AddUint64(&anonLimiterSeq, 1))
	}
	sharedLimiters.Configure(key, cfg.RateLimit.RatePerSecond, cfg.RateLimit.Burst)

	return &Transport{
		cfg:        cfg,
		client:     &http.Client{Transport: transport},
		limiter:    sharedLimiters,
		limiterKey: key,
	}, nil
}

func buildProxyDialer(cfg ProxyConfig) (proxy.Dialer, error) {
	u, err := cfg.url()
	if err != nil {
		return nil, err
	}
	switch cfg.Type {
	case ProxySOCKS5, ProxySOCKS5H:
		return proxy.FromURL(u, proxy.Direct)
	case ProxyHTTP, ProxyHTTPS:
		return &httpConnectDialer{addr: u.Host}, nil
	default:
		return nil, fmt.Errorf("unsupported proxy type %q", cfg.Type)
	}
}

// httpConnectDialer is a minimal CONNECT-tunnel dialer for http/https
// proxy types, since golang.org/x/net/proxy only ships a SOCKS5
// implementation out of the box.
type httpConnectDialer struct {
	addr string
}

func (d *httpConnectDialer) Dial(network, addr string) (net.Conn, error) {
	conn, err := net.Dial(network, d.addr)
	if err != nil {
		return nil, err
	}
	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
	}
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, err
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("proxy CONNECT failed: %s", resp.Status)
	}
	return conn, nil
}

// Response is the result of a unary request.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Do issues a unary request and returns the full body.
func (t *Transport) Do(ctx context.Context, method, target string, headers http.Header, body []byte) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.OverallTimeout)
	defer cancel()

	if err := t.limiter.Wait(ctx, t.limiterKey); err != nil {
		return nil, &Error{Code: CodeAborted, Message: "rate limit wait: " + err.Error()}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &Error{Code: CodeFetchRequestFailed, Message: err.Error()}
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, &Error{Code: CodeAborted, Message: "request aborted"}
		}
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &Error{Code: CodeStreamTimeout, Message: "overall deadline exceeded"}
		}
		return nil, &Error{Code: CodeFetchRequestFailed, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Code: CodeFetchRequestFailed, Message: err.Error()}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		t.limiter.Pause(t.limiterKey, retryAfter(resp.Header))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Response{Status: resp.StatusCode, Headers: resp.Header, Body: data},
			&Error{Code: CodeHTTPError, Status: resp.StatusCode, Message: string(data)}
	}

	return &Response{Status: resp.StatusCode, Headers: resp.Header, Body: data}, nil
}

// retryAfter parses a Retry-After header as seconds, defaulting to a
// conservative pause when the header is absent or unparseable.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 2 * time.Second
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 2 * time.Second
	}
	return time.Duration(secs) * time.Second
}

// ChunkHandler receives streamed byte chunks as they arrive.
type ChunkHandler func(chunk []byte)

// StreamResult summarizes a completed streaming request.
type StreamResult struct {
	Status   int
	Headers  http.Header
	FellBack bool
}

// Stream issues a streaming request, invoking onChunk for each byte
// chunk read off the body. If the stream fails with a non-cancellation
// error before completion, it is transparently retried as a unary
// request whose body is replayed to onChunk in simulated chunks.
// Cancellation is never retried, and neither is a definitive non-2xx
// response: a 4xx/5xx is the provider's answer, not a stream failure,
// and replaying it unary would only discard the status the adapters
// classify on (e.g. model-not-found on 404).
func (t *Transport) Stream(ctx context.Context, method, target string, headers http.Header, body []byte, onChunk ChunkHandler) (*StreamResult, error) {
	result, err := t.streamOnce(ctx, method, target, headers, body, onChunk)
	if err == nil {
		return result, nil
	}

	var terr *Error
	if e, ok := err.(*Error); ok {
		terr = e
	}
	if terr != nil && (terr.Code == CodeAborted || terr.Code == CodeHTTPError) {
		return nil, err
	}

	log.WithField("target", target).WithError(err).Warn("transport: streaming attempt failed, falling back to unary replay")

	resp, fallbackErr := t.Do(ctx, method, target, headers, body)
	if fallbackErr != nil {
		if ferr, ok := fallbackErr.(*Error); ok && (ferr.Code == CodeAborted || ferr.Code == CodeHTTPError) {
			// Pass the error through unwrapped so an HTTP status survives.
			return nil, fallbackErr
		}
		return nil, &Error{Code: CodeFallbackFailed, Message: fallbackErr.Error()}
	}

	replay(resp.Body, onChunk)
	return &StreamResult{Status: resp.Status, Headers: resp.Headers, FellBack: true}, nil
}

func (t *Transport) streamOnce(ctx context.Context, method, target string, headers http.Header, body []byte, onChunk ChunkHandler) (*StreamResult, error) {
	overallCtx, overallCancel := context.WithTimeout(ctx, t.cfg.OverallTimeout)
	defer overallCancel()

	if err := t.limiter.Wait(overallCtx, t.limiterKey); err != nil {
		return nil, &Error{Code: CodeAborted, Message: "rate limit wait: " + err.Error()}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(overallCtx, method, target, reader)
	if err != nil {
		return nil, &Error{Code: CodeFetchRequestFailed, Message: err.Error()}
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if overallCtx.Err() == context.Canceled {
			return nil, &Error{Code: CodeAborted, Message: "stream aborted"}
		}
		return nil, &Error{Code: CodeFetchStreamFailed, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		t.limiter.Pause(t.limiterKey, retryAfter(resp.Header))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return nil, &Error{Code: CodeHTTPError, Status: resp.StatusCode, Message: string(data)}
	}

	idleTimer := time.NewTimer(t.cfg.IdleTimeout)
	defer idleTimer.Stop()

	chunks := make(chan []byte)
	readErrs := make(chan error, 1)
	go func() {
		defer close(chunks)
		buf := make([]byte, 4096)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				b := make([]byte, n)
				copy(b, buf[:n])
				chunks <- b
			}
			if err != nil {
				if err != io.EOF {
					readErrs <- err
				}
				return
			}
		}
	}()

	for {
		if !idleTimer.Stop() {
			select {
			case <-idleTimer.C:
			default:
			}
		}
		idleTimer.Reset(t.cfg.IdleTimeout)

		select {
		case chunk, ok := <-chunks:
			if !ok {
				select {
				case err := <-readErrs:
					return nil, &Error{Code: CodeFetchStreamFailed, Message: err.Error()}
				default:
					return &StreamResult{Status: resp.StatusCode, Headers: resp.Header}, nil
				}
			}
			onChunk(chunk)
		case <-idleTimer.C:
			return nil, &Error{Code: CodeStreamIdleTimeout, Message: "no chunk received within idle window"}
		case <-overallCtx.Done():
			if ctx.Err() == context.Canceled {
				return nil, &Error{Code: CodeAborted, Message: "stream aborted"}
			}
			return nil, &Error{Code: CodeStreamTimeout, Message: "overall deadline exceeded"}
		}
	}
}

const (
	minChunks        = 24
	maxChunks        = 220
	minReplayTotal   = 400 * time.Millisecond
	maxReplayTotal   = 3500 * time.Millisecond
	minInterChunkGap = 4 * time.Millisecond
)

// replay splits body into 24..220 pseudo-chunks targeting a 400..3500ms
// total replay with at least a 4ms inter-chunk delay, preserving UTF-8
// rune boundaries so a trailing multi-byte sequence is never split
// across two chunks.
func replay(body []byte, onChunk ChunkHandler) {
	if len(body) == 0 {
		return
	}

	n := len(body) / 64
	if n < minChunks {
		n = minChunks
	}
	if n > maxChunks {
		n = maxChunks
	}
	if n > len(body) {
		n = len(body)
	}
	if n == 0 {
		onChunk(body)
		return
	}

	total := minReplayTotal + time.Duration(float64(maxReplayTotal-minReplayTotal)*clampFraction(float64(len(body))/65536))
	perChunk := total / time.Duration(n)
	if perChunk < minInterChunkGap {
		perChunk = minInterChunkGap
	}

	start := 0
	for i := 1; i <= n; i++ {
		// Chunk i ends at i/n of the body, so there are never more than n
		// chunks.
		end := i * len(body) / n
		if end <= start {
			continue
		}
		// Extend end forward until it lands on a UTF-8 rune boundary so a
		// continuation byte is never split between chunks.
		for end < len(body) && isUTF8Continuation(body[end]) {
			end++
		}
		onChunk(body[start:end])
		start = end
		if start < len(body) {
			time.Sleep(perChunk)
		}
	}
}

func isUTF8Continuation(b byte) bool {
	return b&0xC0 == 0x80
}

func clampFraction(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

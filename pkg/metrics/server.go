package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/socratic-council/council/pkg/log"
)

// Server is an HTTP server that exposes the council's Prometheus metrics.
type Server struct {
	addr     string
	server   *http.Server
	registry *prometheus.Registry
	metrics  *Metrics
}

// ServerConfig configures the metrics server.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Registry     *prometheus.Registry
}

// NewServer builds a metrics server from config, applying a
// fixed default address and timeouts when unset.
func NewServer(config ServerConfig) *Server {
	if config.Addr == "" {
		config.Addr = ":9090"
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 5 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}

	registry := config.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	metrics := NewMetrics(registry)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/", indexHandler)

	server := &http.Server{
		Addr:         config.Addr,
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return &Server{addr: config.Addr, server: server, registry: registry, metrics: metrics}
}

// Start blocks until the server is stopped or fails to listen.
func (s *Server) Start() error {
	log.WithField("addr", s.addr).Info("starting metrics server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("metrics server failed")
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	log.Info("stopping metrics server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}
	return nil
}

// Metrics returns the handle used to record observations.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Registry returns the underlying Prometheus registry.
func (s *Server) Registry() *prometheus.Registry { return s.registry }

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","service":"socratic-council-metrics"}`)
}

func indexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Council Metrics</title></head>
<body>
<h1>Socratic Council Metrics Server</h1>
<ul>
<li><a href="/metrics">/metrics</a> - Prometheus metrics in OpenMetrics format</li>
<li><a href="/health">/health</a> - health check</li>
</ul>
<h2>Series</h2>
<ul>
<li><code>council_bids_total</code></li>
<li><code>council_fairness_adjustments_total</code></li>
<li><code>council_conflict_score</code></li>
<li><code>council_dyadic_exchanges_total</code></li>
<li><code>council_tool_calls_total</code></li>
<li><code>council_stream_chunks_total</code></li>
<li><code>council_cost_usd_total</code></li>
<li><code>council_agent_request_duration_seconds</code></li>
<li><code>council_agent_errors_total</code></li>
<li><code>council_active_sessions</code></li>
</ul>
</body>
</html>`)
}

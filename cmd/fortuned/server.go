package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/munnerz/goautoneg"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/example/fortune/internal/platform/compliance"
	"github.com/example/fortune/internal/platform/logging"
	"github.com/example/fortune/internal/platform/metrics"
	"github.com/example/fortune/internal/platform/tracing"
	"github.com/example/fortune/pkg/fortune/rotation"
)

const (
	mimeJSON = "application/json"
	mimeText = "text/plain"

	requestIDHeader = "X-Request-ID"
)

// Selector yields the lease for the current time slice. Snapshot must not
// advance rotation state.
type Selector interface {
	Lease() rotation.Lease
	Snapshot() rotation.State
	Len() int
}

// ServerConfig wires runtime parameters for the fortune server.
type ServerConfig struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	Logger          *zap.Logger
	Metrics         *metrics.Fortune
	Tracer          trace.Tracer
	ReadinessChecks []compliance.Check
}

// FortuneServer hosts the HTTP interface serving the current fortune.
type FortuneServer struct {
	cfg        ServerConfig
	logger     *zap.Logger
	httpSrv    *http.Server
	selector   Selector
	metrics    *metrics.Fortune
	tracer     trace.Tracer
	correlator *logging.Correlator
	readiness  *compliance.Checker
	now        func() time.Time
}

// NewFortuneServer constructs the server and prepares HTTP handlers.
func NewFortuneServer(cfg ServerConfig, selector Selector) (*FortuneServer, error) {
	if selector == nil {
		return nil, fmt.Errorf("fortuned: selector is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("fortuned")
	}
	if cfg.Address == "" {
		cfg.Address = "0.0.0.0:3000"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	s := &FortuneServer{
		cfg:        cfg,
		logger:     cfg.Logger,
		selector:   selector,
		metrics:    cfg.Metrics,
		tracer:     cfg.Tracer,
		correlator: logging.NewCorrelator("request_id", nil),
		now:        time.Now,
	}
	s.readiness = compliance.NewChecker(2*time.Second, append(selectorChecks(selector), cfg.ReadinessChecks...)...)

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleFortune)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	s.httpSrv = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.withRequestID(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

// Handler exposes the routing table.
func (s *FortuneServer) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start begins serving HTTP endpoints.
func (s *FortuneServer) Start() error {
	return s.httpSrv.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *FortuneServer) Stop(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *FortuneServer) handleFortune(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := tracing.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := s.tracer.Start(ctx, "fortune.current", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	logger := logging.From(ctx, s.logger)

	lease := s.selector.Lease()
	format := negotiate(r.Header.Get("Accept"))
	span.SetAttributes(
		attribute.Int64("fortune.bucket", lease.Bucket),
		attribute.Int("fortune.index", lease.Index),
		attribute.String("fortune.format", format),
	)

	etag := entityTag(lease.Record.Fingerprint(), format)
	header := w.Header()
	header.Set("ETag", etag)
	header.Set("Cache-Control", "public, max-age="+strconv.Itoa(maxAge(lease.Expires, s.now())))
	header.Set("Vary", "Accept")

	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		logger.Debug("fortune not modified", zap.Int64("bucket", lease.Bucket))
		return
	}

	s.metrics.Request(ctx, format)
	logger.Debug("fortune served",
		zap.Int64("bucket", lease.Bucket),
		zap.Int("index", lease.Index),
		zap.String("format", format),
	)

	if format == mimeText {
		header.Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(lease.Record.String() + "\n"))
		return
	}
	writeJSON(w, lease.Record, http.StatusOK)
}

// withRequestID tags every request with a correlation id, echoed in the
// response and carried by the request logger.
func (s *FortuneServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, _, id := s.correlator.Decorate(r.Context(), s.logger, r.Header.Get(requestIDHeader))
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *FortuneServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", mimeJSON)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type readinessResponse struct {
	Status string `json:"status"`
	compliance.Summary
}

func (s *FortuneServer) handleReady(w http.ResponseWriter, r *http.Request) {
	summary := s.readiness.Evaluate(r.Context())
	if !summary.Healthy() {
		logging.From(r.Context(), s.logger).Warn("readiness check failed", zap.Error(summary.Error()))
		writeJSON(w, readinessResponse{Status: "unavailable", Summary: summary}, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, readinessResponse{Status: "ready", Summary: summary}, http.StatusOK)
}

func selectorChecks(selector Selector) []compliance.Check {
	return []compliance.Check{
		compliance.Named("store", func(context.Context) compliance.Result {
			n := selector.Len()
			if n == 0 {
				return compliance.Fail(fmt.Errorf("record store is empty"))
			}
			return compliance.Pass(strconv.Itoa(n) + " records")
		}),
		compliance.Named("selector", func(context.Context) compliance.Result {
			state := selector.Snapshot()
			if state.LastBucket < 0 {
				return compliance.Pass("no selection yet")
			}
			if state.Index < 0 || state.Index >= selector.Len() {
				return compliance.Fail(fmt.Errorf("selected index %d out of range", state.Index))
			}
			return compliance.Pass("bucket " + strconv.FormatInt(state.LastBucket, 10))
		}),
	}
}

// negotiate picks JSON unless the client prefers plain text.
func negotiate(accept string) string {
	if accept == "" {
		return mimeJSON
	}
	if goautoneg.Negotiate(accept, []string{mimeJSON, mimeText}) == mimeText {
		return mimeText
	}
	return mimeJSON
}

// entityTag is a strong validator per record and representation.
func entityTag(fingerprint, format string) string {
	suffix := "json"
	if format == mimeText {
		suffix = "text"
	}
	return `"` + fingerprint + "-" + suffix + `"`
}

func etagMatches(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

// maxAge rounds the time left in the slice up to whole seconds.
func maxAge(expires, now time.Time) int {
	left := expires.Sub(now)
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", mimeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

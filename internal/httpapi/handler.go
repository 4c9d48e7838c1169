// Copyright (c) 2026 CallVu Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpapi exposes the submission pipeline over HTTP. The
// handlers here are thin: origin and method gating, a global inbound
// throttle, panic containment, and JSON envelopes. All pipeline
// semantics live in internal/pipeline.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"

	"golang.org/x/time/rate"

	"github.com/callvu/leadbridge/internal/pipeline"
)

// maxBodyBytes caps the request body well above the largest legal
// submission (2000-char message) to bound memory per request.
const maxBodyBytes = 64 << 10

// Pinger reports backend health for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the lead-capture endpoints.
type Handler struct {
	orch           *pipeline.Orchestrator
	allowedOrigins []string
	throttle       *rate.Limiter
	redactCrashes  bool
	pingers        map[string]Pinger
}

// Option configures a Handler.
type Option func(*Handler)

// WithGlobalThrottle installs a token-bucket guard in front of the
// whole endpoint, independent of per-identity limits.
func WithGlobalThrottle(rps float64, burst int) Option {
	return func(h *Handler) { h.throttle = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithCrashRedaction hides panic detail from clients (production).
func WithCrashRedaction(redact bool) Option {
	return func(h *Handler) { h.redactCrashes = redact }
}

// WithPinger registers a named backend health check.
func WithPinger(name string, p Pinger) Option {
	return func(h *Handler) { h.pingers[name] = p }
}

// NewHandler creates the HTTP handler around a pipeline orchestrator.
func NewHandler(orch *pipeline.Orchestrator, allowedOrigins []string, opts ...Option) *Handler {
	h := &Handler{
		orch:           orch,
		allowedOrigins: allowedOrigins,
		pingers:        make(map[string]Pinger),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeSubmit handles POST /api/submit.
func (h *Handler) ServeSubmit(w http.ResponseWriter, r *http.Request) {
	defer h.recoverCrash(w)

	if !h.originAllowed(r) {
		slog.Error("blocked request from unauthorized origin",
			"origin", r.Header.Get("Origin"),
			"referer", r.Header.Get("Referer"),
		)
		writeJSON(w, http.StatusForbidden, pipeline.ErrorBody{Error: "UNAUTHORIZED_ORIGIN"})
		return
	}

	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, pipeline.ErrorBody{Error: "METHOD_NOT_ALLOWED"})
		return
	}

	if h.throttle != nil && !h.throttle.Allow() {
		slog.Warn("global throttle rejected request")
		writeJSON(w, http.StatusTooManyRequests, pipeline.ErrorBody{
			Error:   pipeline.CodeRateLimited,
			Message: "Service is busy. Please try again shortly.",
		})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, pipeline.ErrorBody{Error: "INVALID_REQUEST_BODY"})
		return
	}

	resp := h.orch.Process(r.Context(), body)
	writeJSON(w, resp.Status, resp.Body)
}

// ServeHealth handles GET /health, pinging registered backends.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	for name, p := range h.pingers {
		if err := p.Ping(r.Context()); err != nil {
			slog.Warn("health check failed", "backend", name, "error", err)
			http.Error(w, name+" unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "healthy"}`))
}

// originAllowed implements the domain allow-list. A request with no
// Origin and no Referer (curl, server-to-server) is allowed; browsers
// always send one of the two.
func (h *Handler) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = r.Header.Get("Referer")
	}
	if origin == "" {
		return true
	}

	for _, domain := range h.allowedOrigins {
		if strings.Contains(origin, domain) {
			return true
		}
	}
	// Local testing
	return strings.Contains(origin, "localhost")
}

// recoverCrash converts any panic below the handler into the stable
// crash envelope. Detail is redacted from clients in production; the
// full stack always goes to the log.
func (h *Handler) recoverCrash(w http.ResponseWriter) {
	rec := recover()
	if rec == nil {
		return
	}

	slog.Error("pipeline panicked",
		"panic", rec,
		"stack", string(debug.Stack()),
	)

	msg := fmt.Sprint(rec)
	if h.redactCrashes {
		msg = "internal error"
	}
	writeJSON(w, http.StatusInternalServerError, pipeline.ErrorBody{
		Error:   pipeline.CodeBridgeCrashed,
		Message: msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Serve starts the HTTP server on the given port. It binds the port
// immediately and signals readiness via the returned channel before
// accepting connections.
func Serve(ctx context.Context, port int, handler *Handler) (<-chan struct{}, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/submit", handler.ServeSubmit)
	mux.HandleFunc("/health", handler.ServeHealth)

	server := &http.Server{
		Handler: mux,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("http server shutting down")
		server.Close()
	}()

	go func() {
		slog.Info("http server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	return ready, nil
}

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Alvinotuya84/parliament-voting-booth/internal/api"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/booth"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/config"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/metrics"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/vad"
)

// BoothStatus reports the booth's current state
type BoothStatus interface {
	Status() booth.Status
}

// APIStats reports API client statistics
type APIStats interface {
	GetStats() api.ClientStats
}

// RealtimeStatus reports the realtime channel state
type RealtimeStatus interface {
	Connected() bool
	Rooms() []string
}

// Dependencies are the components the status endpoints read from.
// Detector and Gatherer are optional.
type Dependencies struct {
	Booth    BoothStatus
	API      APIStats
	Realtime RealtimeStatus
	Detector *vad.Detector
	Gatherer prometheus.Gatherer // default registry when nil
}

// HTTPServer provides HTTP endpoints for monitoring the booth
type HTTPServer struct {
	server  *http.Server
	router  chi.Router
	logger  *slog.Logger
	config  *config.Config
	deps    Dependencies
	metrics *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new status server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config, deps Dependencies, m *metrics.Metrics) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		deps:      deps,
		metrics:   m,
		startTime: time.Now(),
	}
	h.router = h.routes()

	h.server = &http.Server{
		Addr:         cfg.ListenAddress(),
		Handler:      h.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// routes configures the status endpoints
func (h *HTTPServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(h.withMetrics)

		r.Get("/", h.handleRoot)
		r.Get("/health", h.handleHealth)
		r.Get("/session", h.handleSession)
		r.Get("/stats", h.handleStats)
		r.Get("/config", h.handleConfig)
	})

	// Prometheus metrics endpoint (not itself measured)
	r.Handle("/metrics", promhttp.HandlerFor(h.deps.Gatherer, promhttp.HandlerOpts{}))

	return r
}

// Handler returns the router, for tests and embedding
func (h *HTTPServer) Handler() http.Handler {
	return h.router
}

// withMetrics records request metrics labelled with the route pattern
func (h *HTTPServer) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}

		h.metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(status), time.Since(startTime).Seconds())

		if status >= 400 {
			errorType := "client_error"
			if status >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	})
}

// Start starts the HTTP server in the background
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP status server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP status server...")

	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleHealth reports degraded while the realtime channel is down; the
// booth can still record and submit votes then
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected := h.deps.Realtime.Connected()
	status := h.deps.Booth.Status()

	health := "healthy"
	if !connected {
		health = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    health,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]any{
			"name":    "parliament-voting-booth",
			"version": "1.0.0",
		},
		"components": map[string]any{
			"realtime": map[string]any{
				"connected": connected,
				"rooms":     h.deps.Realtime.Rooms(),
			},
			"recorder": map[string]any{
				"state": status.Recording,
			},
			"session": map[string]any{
				"voting_active": status.Session.VotingActive,
				"voted_members": len(status.Session.VotedMembers),
			},
		},
	})
}

// handleSession returns the live session state
func (h *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Booth.Status().Session)
}

// handleStats returns booth, API client and speech detection statistics
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	status := h.deps.Booth.Status()

	stats := map[string]any{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"recording": map[string]any{
			"state":    status.Recording,
			"progress": status.Progress,
		},
		"votes": map[string]any{
			"statistics": status.Statistics,
			"last_vote":  status.LastVote,
		},
		"api": h.deps.API.GetStats(),
	}
	if h.deps.Detector != nil {
		stats["vad"] = h.deps.Detector.GetStats()
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleConfig returns the configuration without credentials
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	c := h.config

	sanitized := map[string]any{
		"api": map[string]any{
			"base_url":       c.API.BaseURL,
			"timeout":        c.API.Timeout,
			"retry_delay":    c.API.RetryDelay,
			"max_retries":    c.API.MaxRetries,
			"max_concurrent": c.API.MaxConcurrent,
			"authenticated":  c.API.Token != "",
		},
		"realtime": map[string]any{
			"url":                c.Realtime.URL,
			"reconnect_interval": c.Realtime.ReconnectInterval,
			"ping_interval":      c.Realtime.PingInterval,
		},
		"recording": map[string]any{
			"device":                    c.Recording.Device,
			"sample_rate":               c.Recording.SampleRate,
			"channels":                  c.Recording.Channels,
			"duration":                  c.Recording.Duration,
			"progress_interval":         c.Recording.ProgressInterval,
			"announce_before_recording": c.Recording.AnnounceBeforeRecording,
			"require_speech":            c.Recording.RequireSpeech,
		},
		"vad": map[string]any{
			"threshold":           c.VAD.Threshold,
			"window_size":         c.VAD.WindowSize,
			"min_speech_duration": c.VAD.MinSpeechDuration,
			"smoothing":           c.VAD.Smoothing,
		},
		"session": map[string]any{
			"storage": c.Session.Storage,
			"path":    c.Session.Path,
		},
		"logging": map[string]any{
			"level":  c.Logging.Level,
			"format": c.Logging.Format,
			"output": c.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, sanitized)
}

// handleRoot lists the available endpoints
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "Parliament Voting Booth",
		"version": "1.0.0",
		"endpoints": map[string]any{
			"GET /":        "Endpoint list",
			"GET /health":  "Booth health check",
			"GET /session": "Live session state",
			"GET /stats":   "Booth, API and speech detection statistics",
			"GET /config":  "Sanitized configuration",
			"GET /metrics": "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}

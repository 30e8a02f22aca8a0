// Package transporthttp exposes the orchestrator's status, health, and
// live event stream over HTTP. Routing and middleware shape (chi router,
// RequestID/RealIP/Recoverer/Timeout stack, a permissive CORS handler,
// and an SSE handler fed by the event bus) is narrowed to the
// read-only status/health/metrics/events surface (queue and snapshot
// mutation stay on the CLI).
package transporthttp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/midnight-build/midnight/internal/events"
)

// Orchestrator is the subset of orchestrator.Orchestrator this transport
// reports on.
type Orchestrator interface {
	StatusAsync(ctx context.Context) (Status, error)
}

// Status mirrors orchestrator.Status field-for-field. transporthttp must
// not import internal/orchestrator (it is orchestrator's collaborator,
// wired from cmd/midnight, not the other way around), so callers adapt
// orchestrator.Status into this shape at the wiring site.
type Status struct {
	Running            bool
	CurrentProjectID   string
	CurrentProjectName string
	QueueLength        int
	ConfidenceScore    int
	ConfidenceStatus   string
	UptimeSeconds      float64
	TasksCompleted     int
	TasksFailed        int
	ActiveCooldowns    int
}

// Logger is the subset of *logging.Logger the transport needs.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config configures the HTTP transport http sub-config.
type Config struct {
	ListenAddr  string
	CORSOrigins []string
}

// Server serves Midnight's status, health, metrics, and event-stream
// endpoints.
type Server struct {
	router   chi.Router
	orch     Orchestrator
	bus      *events.Bus
	registry *prometheus.Registry
	log      Logger
	httpSrv  *http.Server
}

// New builds a Server wired to the orchestrator, the event bus, and a
// Prometheus registry. registry may be nil, in which case /metrics 404s.
func New(cfg Config, orch Orchestrator, bus *events.Bus, registry *prometheus.Registry, log Logger) *Server {
	s := &Server{orch: orch, bus: bus, registry: registry, log: log}
	s.router = s.setupRouter(cfg)
	s.httpSrv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE streams hold the connection open indefinitely
	}
	return s
}

// ListenAndServe blocks serving HTTP until the server errors or is shut
// down. http.ErrServerClosed is swallowed (expected on Shutdown).
func (s *Server) ListenAndServe() error {
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests, including SSE streams
// (bounded by ctx).
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) setupRouter(cfg Config) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.loggingMiddleware)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(corsHandler.Handler)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/events", s.handleSSE)
	})

	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			s.log.Info("http request", "method", r.Method, "path", r.URL.Path,
				"status", ww.Status(), "duration", time.Since(start))
		}()
		next.ServeHTTP(ww, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// handleHealthz reports process liveness; it never consults the
// orchestrator, so it stays fast and dependency-free for container
// liveness probes.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus reports the orchestrator's current status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.orch.StatusAsync(r.Context())
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// sseEnvelope is the wire shape of one streamed event: the event's own
// EventType plus its JSON-marshaled payload, one typed
// event stream (project_started, task_completed, confidence_updated,
// and the rest of internal/events' closed set).
type sseEnvelope struct {
	Type      string    `json:"type"`
	ProjectID string    `json:"project_id,omitempty"`
	At        time.Time `json:"at"`
	Data      any       `json:"data"`
}

// handleSSE streams every bus event to the client as Server-Sent Events
// until the client disconnects or the bus closes.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	ctx := r.Context()
	projectID := r.URL.Query().Get("project")
	eventCh := s.bus.SubscribeForProject(projectID)

	s.sendSSE(w, flusher, sseEnvelope{Type: "connected", At: time.Now()})

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			s.sendSSE(w, flusher, sseEnvelope{
				Type:      string(ev.Type()),
				ProjectID: ev.ProjectID(),
				At:        ev.Timestamp(),
				Data:      ev,
			})
		}
	}
}

func (s *Server) sendSSE(w http.ResponseWriter, flusher http.Flusher, env sseEnvelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		s.log.Error("failed to marshal SSE event", "error", err.Error())
		return
	}
	_, _ = w.Write([]byte("event: " + env.Type + "\n"))
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n\n"))
	flusher.Flush()
}

package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/download-simulator/internal/app"
	"github.com/JakeFAU/download-simulator/internal/metrics"
	"github.com/JakeFAU/download-simulator/internal/worker"
)

const defaultRequestTimeout = 30 * time.Second

// Controller is the application surface the handlers drive. *app.App
// satisfies it.
type Controller interface {
	Title() string
	State() app.State
	StartDownload() (int, bool)
	Clear()
	Snapshot() []app.DownloadView
}

// IDGenerator produces request ids.
type IDGenerator interface {
	NewID() (string, error)
}

// SubmitLimiter decides whether a client may start another download.
type SubmitLimiter interface {
	Allow(key string) bool
}

// Config wires optional collaborators into the Server.
//   - Logger: request and panic logging (default no-op).
//   - IDs: request id source (required).
//   - Stats: worker counters for /v1/stats; the route answers 404 when nil.
//   - Limiter: throttles POST /v1/downloads per client host; nil allows everything.
//   - RequestTimeout: per-request deadline (default 30s).
type Config struct {
	Logger         *zap.Logger
	IDs            IDGenerator
	Stats          func() worker.Stats
	Limiter        SubmitLimiter
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the application model.
type Server struct {
	router chi.Router
	ctrl   Controller
	cfg    Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(ctrl Controller, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	s := &Server{
		ctrl:   ctrl,
		cfg:    cfg,
		logger: cfg.Logger.Named("api"),
	}
	metrics.Init()

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/title", s.title)
		r.Get("/stats", s.stats)
		r.Route("/downloads", func(r chi.Router) {
			r.Get("/", s.listDownloads)
			r.With(s.limitMiddleware).Post("/", s.startDownload)
			r.Delete("/", s.clearDownloads)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.ctrl.State() != app.StateRunning {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": app.InitializingText})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) title(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"title": s.ctrl.Title()})
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.Stats == nil {
		s.writeError(w, http.StatusNotFound, "stats unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, statsResponse(s.cfg.Stats()))
}

type downloadsResponse struct {
	State     app.State          `json:"state"`
	Downloads []app.DownloadView `json:"downloads"`
}

func (s *Server) listDownloads(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, downloadsResponse{
		State:     s.ctrl.State(),
		Downloads: s.ctrl.Snapshot(),
	})
}

type startResponse struct {
	ID  int    `json:"id"`
	URL string `json:"url"`
}

func (s *Server) startDownload(w http.ResponseWriter, r *http.Request) {
	id, ok := s.ctrl.StartDownload()
	if !ok {
		s.writeError(w, http.StatusServiceUnavailable, app.InitializingText)
		return
	}
	resp := startResponse{ID: id}
	for _, d := range s.ctrl.Snapshot() {
		if d.ID == id {
			resp.URL = d.URL
			break
		}
	}
	s.logger.Info("download started", zap.Int("id", id), zap.String("request_id", requestID(r.Context())))
	s.writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) clearDownloads(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.Clear()
	w.WriteHeader(http.StatusNoContent)
}

type statsJSON struct {
	SubmissionsAccepted uint64 `json:"submissions_accepted"`
	SubmissionsDropped  uint64 `json:"submissions_dropped"`
	EventsDelivered     uint64 `json:"events_delivered"`
	EventsDropped       uint64 `json:"events_dropped"`
}

func statsResponse(st worker.Stats) statsJSON {
	return statsJSON{
		SubmissionsAccepted: st.SubmissionsAccepted,
		SubmissionsDropped:  st.SubmissionsDropped,
		EventsDelivered:     st.EventsDelivered,
		EventsDropped:       st.EventsDropped,
	}
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID, err := s.cfg.IDs.NewID()
		if err != nil {
			s.logger.Error("generate request id", zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", requestID(r.Context())),
		)
	})
}

func (s *Server) limitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !s.cfg.Limiter.Allow(host) {
			s.logger.Debug("download submission throttled",
				zap.String("client", host),
				zap.String("request_id", requestID(r.Context())))
			w.Header().Set("Retry-After", "1")
			s.writeError(w, http.StatusTooManyRequests, "too many download requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// writeJSON answers 500 when payload cannot be encoded.
func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("encode response", zap.Error(err), zap.Int("status", status))
		status = http.StatusInternalServerError
		body = []byte(`{"error":"internal server error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		s.logger.Debug("write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

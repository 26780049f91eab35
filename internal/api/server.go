// Package api exposes the stress analysis pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"eeg-stress-api/internal/analysis"
	"eeg-stress-api/internal/common"
	"eeg-stress-api/internal/events"
	"eeg-stress-api/internal/ml"
	"eeg-stress-api/internal/storage"
)

// Analyzer runs one upload through the pipeline.
type Analyzer interface {
	Ready() bool
	Analyze(ctx context.Context, up analysis.Upload) (*analysis.Report, error)
}

// ModelStatus reports the model lifecycle for health and info endpoints.
type ModelStatus interface {
	Info() ml.ModelInfo
}

// History reads persisted analyses.
type History interface {
	GetAnalysis(id string) (storage.AnalysisRecord, error)
	ListAnalyses(limit int) ([]storage.AnalysisRecord, error)
}

// Subscriber hands out live event subscriptions.
type Subscriber interface {
	Subscribe() *events.Subscription
}

// MetricsInterface defines metrics methods needed by the HTTP layer
type MetricsInterface interface {
	HTTPRequestObserve(method, route string, code int, seconds float64)
}

// Config wires a Server. Analyzer and Model are required.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Analyzer       Analyzer
	Model          ModelStatus
	History        History    // optional, history endpoints answer 503 without it
	Events         Subscriber // optional, the stream answers 503 without it
	Metrics        MetricsInterface
	MetricsHandler http.Handler // defaults to promhttp.Handler()

	UploadFields   []string
	MaxUploadBytes int64
	CORSOrigins    []string
	RateLimit      int // requests per RateWindow and client IP, 0 disables
	RateWindow     time.Duration
	HistoryLimit   int
}

// Server is the HTTP front of the service.
type Server struct {
	cfg      Config
	fields   map[string]bool
	upgrader websocket.Upgrader
	router   chi.Router
	server   *http.Server
}

func New(cfg Config) *Server {
	if len(cfg.UploadFields) == 0 {
		cfg.UploadFields = common.DefaultUploadFields
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = common.DefaultMaxUploadBytes
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = common.DefaultHistoryLimit
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.MetricsHandler == nil {
		cfg.MetricsHandler = promhttp.Handler()
	}

	s := &Server{
		cfg:    cfg,
		fields: make(map[string]bool, len(cfg.UploadFields)),
	}
	for _, f := range cfg.UploadFields {
		s.fields[f] = true
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originAllowed(cfg.CORSOrigins),
	}
	s.router = s.routes()

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(CORS(s.cfg.CORSOrigins))
	r.Use(AccessLog(s.cfg.Metrics))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found", "Request failed")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "Request failed")
	})

	r.Get("/health", s.handleHealth)
	r.Get("/model/info", s.handleModelInfo)
	r.Method(http.MethodGet, "/metrics", s.cfg.MetricsHandler)
	r.Get("/analyses/stream", s.handleStream)

	r.Group(func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(RateLimit(s.cfg.RateLimit, s.cfg.RateWindow))
		}
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/analyses", s.handleListAnalyses)
		r.Get("/analyses/{id}", s.handleGetAnalysis)
	})

	return r
}

// Handler returns the routed handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Package web serves the heart risk form, the JSON prediction API, the
// WebSocket progress stream and the operational endpoints.
//
// The pages stay usable when no model is loaded: the sidebar shows the load
// failure and every prediction attempt is answered with the unavailable
// message instead of a result.
package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/jroyseravila/heart/internal/common"
	"github.com/jroyseravila/heart/internal/ml"
	"github.com/jroyseravila/heart/internal/storage"

	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

//go:embed templates/*.html
var templateFS embed.FS

// MetricsInterface defines the metrics the HTTP layer records.
type MetricsInterface interface {
	HTTPRequestObserve(route, method string, status int, seconds float64)
	ProgressStreamsInc()
	ErrorsInc()
	FailureRate() float64
}

// Ledger lists recorded model loads.
type Ledger interface {
	ModelLoads(limit int) ([]storage.LoadRecord, error)
}

// Config contains configuration for the web server
type Config struct {
	Addr           string
	ProgressDelay  time.Duration
	AllowedOrigins []string
	Gatherer       prometheus.Gatherer // nil uses the default registry
}

// Server hosts the pages and API around a single predictor.
type Server struct {
	cfg       Config
	predictor *ml.Predictor
	ledger    Ledger
	metrics   MetricsInterface
	router    *mux.Router
	server    *http.Server
	upgrader  websocket.Upgrader
	decoder   *schema.Decoder
	pages     map[string]*template.Template
	startedAt time.Time
}

// NewServer builds the router. ledger and metrics may be nil.
func NewServer(cfg Config, predictor *ml.Predictor, ledger Ledger, metrics MetricsInterface) *Server {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	s := &Server{
		cfg:       cfg,
		predictor: predictor,
		ledger:    ledger,
		metrics:   metrics,
		decoder:   decoder,
		pages:     parsePages(),
		startedAt: time.Now(),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.router = s.routes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  common.HTTPReadTimeout,
		WriteTimeout: common.HTTPWriteTimeout,
		IdleTimeout:  common.HTTPIdleTimeout,
	}
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestID, s.accessLog, s.recoverer, s.observe)

	r.HandleFunc("/", s.handleHome).Methods(http.MethodGet).Name("inicio")
	r.HandleFunc("/prediccion", s.handlePredictionPage).Methods(http.MethodGet).Name("prediccion")
	r.HandleFunc("/prediccion", s.handlePredictionSubmit).Methods(http.MethodPost)
	r.HandleFunc("/acerca", s.handleAbout).Methods(http.MethodGet).Name("acerca")

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.metricsHandler()).Methods(http.MethodGet)
	r.HandleFunc("/ws/predict", s.handleProgressStream).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.cors())
	api.HandleFunc("/predict", s.handleAPIPredict).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/model", s.handleAPIModel).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/model/loads", s.handleAPILoads).Methods(http.MethodGet, http.MethodOptions)

	return r
}

func (s *Server) metricsHandler() http.Handler {
	if s.cfg.Gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{})
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	log.Info().
		Str("address", s.server.Addr).
		Bool("model_ready", s.predictor.Available()).
		Msg("starting web server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	// Same-origin requests are always accepted.
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

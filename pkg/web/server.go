package web

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	"github.com/dbehnke/turbocodec/pkg/codec"
	"github.com/dbehnke/turbocodec/pkg/config"
	"github.com/dbehnke/turbocodec/pkg/logger"
	"github.com/dbehnke/turbocodec/pkg/stats"
)

// Server exposes the codec over HTTP and WebSocket.
type Server struct {
	config       *config.Config
	logger       *logger.Logger
	codec        *codec.Codec
	reporter     *stats.Reporter
	gatherer     prometheus.Gatherer
	httpServer   *http.Server
	websocketHub *WebSocketHub
	slots        *semaphore.Weighted
	hubOnce      sync.Once
	stopHub      context.CancelFunc
	startTime    time.Time
	version      string
	buildTime    string
	mu           sync.RWMutex
	running      bool
}

// Option customises a Server.
type Option func(*Server)

// WithReporter serves the latest periodic report on /api/stats.
func WithReporter(r *stats.Reporter) Option {
	return func(s *Server) { s.reporter = r }
}

// WithGatherer replaces prometheus.DefaultGatherer for the metrics route.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

func WithVersion(version, buildTime string) Option {
	return func(s *Server) {
		s.version = version
		s.buildTime = buildTime
	}
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, log *logger.Logger, c *codec.Codec, opts ...Option) *Server {
	if log == nil {
		log = logger.Nop()
	}
	hubCtx, stopHub := context.WithCancel(context.Background())
	concurrent := cfg.Web.MaxConcurrent
	if concurrent <= 0 {
		concurrent = runtime.GOMAXPROCS(0)
	}
	s := &Server{
		config:       cfg,
		logger:       log.WithComponent("web"),
		codec:        c,
		gatherer:     prometheus.DefaultGatherer,
		websocketHub: newWebSocketHub(hubCtx, log.WithComponent("web.hub")),
		slots:        semaphore.NewWeighted(int64(concurrent)),
		stopHub:      stopHub,
		startTime:    time.Now(),
		version:      "dev",
		buildTime:    "unknown",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Web.Enabled {
		s.logger.Info("Web server disabled")
		return nil
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("web server already running")
	}
	s.running = true

	addr := fmt.Sprintf("%s:%d", s.config.Web.Host, s.config.Web.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Unlock()

	s.logger.Info("Starting web server",
		logger.String("address", addr),
		logger.Int64("max_message_bytes", s.config.Web.MaxMessageBytes))

	serverErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		s.logger.Info("Shutting down web server")
		return s.Stop()
	}
}

// Stop stops the web server and disconnects WebSocket clients.
func (s *Server) Stop() error {
	s.stopHub()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.running = false

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// Handler returns the routed handler. Start uses it; tests mount it on
// httptest servers directly.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// BroadcastReport pushes a stats report to every WebSocket client.
func (s *Server) BroadcastReport(report stats.Report) {
	s.websocketHub.broadcastMessage(WebSocketMessage{Type: MessageStats, Data: report})
}

// setupRoutes configures HTTP routes
func (s *Server) setupRoutes() *mux.Router {
	s.hubOnce.Do(func() { go s.websocketHub.run() })

	router := mux.NewRouter()
	router.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)

	router.HandleFunc("/ws", s.handleWebSocket)

	if s.config.Metrics.Enabled && s.config.Metrics.Prometheus.Enabled {
		router.Handle(s.config.Metrics.Prometheus.Path, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.corsMiddleware)
	api.Use(s.loggingMiddleware)

	// Codec endpoints
	api.HandleFunc("/encode", s.handleCodec(OpEncode)).Methods("POST", "OPTIONS")
	api.HandleFunc("/decode", s.handleCodec(OpDecode)).Methods("POST", "OPTIONS")

	// Status endpoints
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/system/info", s.handleSystemInfo).Methods("GET")
	api.HandleFunc("/config/codec", s.handleGetCodecConfig).Methods("GET")

	// Subrouter routes share the /api prefix matcher, and a later route
	// matching that prefix clears an earlier method mismatch. Catch-all
	// routes registered last keep wrong methods at 405 instead of 404.
	for _, path := range []string{"/encode", "/decode", "/health", "/stats", "/system/info", "/config/codec"} {
		api.HandleFunc(path, s.handleMethodNotAllowed)
	}

	return router
}

// Middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("HTTP request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Duration("elapsed", time.Since(start)))
	})
}

// Package server exposes the registered ledgers over HTTP: rendered views as
// JSON, filter options, CSV and XLSX exports, health and metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/asaidimu/go-tabula/ledger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Options configure a Server.
type Options struct {
	// CORSOrigins lists the origins allowed to call the API. "*" allows any.
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Now dates export filenames. Defaults to time.Now.
	Now func() time.Time
}

// Server serves a ledger registry.
type Server struct {
	registry *ledger.Registry
	logger   *zap.Logger
	options  Options
	metrics  *Metrics
	gatherer *prometheus.Registry
	engine   *gin.Engine
	detach   func()
}

// New builds the router and subscribes the metrics to the registry.
func New(registry *ledger.Registry, logger *zap.Logger, options Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	reg := prometheus.NewRegistry()
	s := &Server{
		registry: registry,
		logger:   logger,
		options:  options,
		metrics:  NewMetrics(reg),
		gatherer: reg,
	}
	s.detach = s.metrics.Attach(registry)
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	if cors := s.cors(); cors != nil {
		r.Use(cors)
	}

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api/ledgers")
	api.GET("", s.handleList)
	api.GET("/:name", s.handleRender)
	api.GET("/:name/records/:key", s.handleRecord)
	api.GET("/:name/options/:field", s.handleOptions)
	api.GET("/:name/export/:format", s.handleExport)
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.options.ReadTimeout,
		WriteTimeout: s.options.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("Shutting down")
	return srv.Shutdown(shutdownCtx)
}

// Close detaches the metrics from the registry.
func (s *Server) Close() {
	if s.detach != nil {
		s.detach()
		s.detach = nil
	}
}

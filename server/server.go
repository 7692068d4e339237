// Package server - HTTP API for the metal finish classifier.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/metal-classifier/config"
	"github.com/nvr-ai/metal-classifier/models/postprocess"
)

// Classifier ranks the classes of an encoded image.
type Classifier interface {
	ClassifyBytes(ctx context.Context, data []byte) ([]postprocess.Prediction, error)
}

// Fetcher downloads an image by URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Options configures a Server.
type Options struct {
	// Config is the listener configuration.
	Config config.Server
	// ModelName is reported by /health.
	ModelName string
	// Classes are reported by /classes in output order.
	Classes []string
	// Logger receives access and error logs.
	Logger logrus.FieldLogger
	// Registry collects request metrics and is served on /metrics.
	Registry *prometheus.Registry
}

// Server is the HTTP front end.
type Server struct {
	opts       Options
	classifier Classifier
	fetcher    Fetcher
	logger     logrus.FieldLogger
	metrics    *requestMetrics
	router     *gin.Engine
}

// New creates a Server and its routes.
//
// Arguments:
//   - opts: The server options.
//   - classifier: Classifies uploaded and downloaded images.
//   - fetcher: Downloads images submitted by URL.
//
// Returns:
//   - *Server: The server.
//   - error: An error if the metrics cannot be registered.
func New(opts Options, classifier Classifier, fetcher Fetcher) (*Server, error) {
	if classifier == nil {
		return nil, errors.New("classifier is required")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	metrics, err := newRequestMetrics(opts.Registry)
	if err != nil {
		return nil, errors.Wrap(err, "failed to register request metrics")
	}

	s := &Server{
		opts:       opts,
		classifier: classifier,
		fetcher:    fetcher,
		logger:     opts.Logger,
		metrics:    metrics,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(
		requestID(),
		s.accessLog(),
		s.metrics.middleware(),
		gin.CustomRecovery(s.recover),
		cors.New(corsConfig(s.opts.Config.AllowOrigins)),
	)

	r.POST("/predict", s.predict)
	r.GET("/health", s.health)
	r.GET("/classes", s.classes)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Registry, promhttp.HandlerOpts{})))

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is canceled, then shuts down gracefully.
//
// Arguments:
//   - ctx: Stops the server when done.
//
// Returns:
//   - error: A listen error, or a shutdown error.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Config.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", srv.Addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server failed")
	case <-ctx.Done():
	}

	timeout := s.opts.Config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http server shutdown failed")
	}
	return nil
}

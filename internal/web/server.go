// Package web is the HTTP request boundary of the knowledge base.
//
// It owns everything session related (cookies, anti-forgery tokens and the
// notification shown after a redirect) and forwards mutations to the engine.
// No handler touches storage directly.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/calvinalkan/docbase/internal/engine"
)

// SessionCookie names the cookie carrying the session id.
const SessionCookie = "kb_session"

const shutdownTimeout = 5 * time.Second

var ginMode sync.Once

// ErrForbidden is returned for a missing or mismatched anti-forgery token.
var ErrForbidden = engine.ErrForbidden

// Options configures a [Server].
type Options struct {
	Engine   *engine.Engine
	Sessions SessionStore

	// SessionTTL is the cookie lifetime. Defaults to 24h.
	SessionTTL time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	// Gatherer backs /metrics. Defaults to [prometheus.DefaultGatherer].
	Gatherer prometheus.Gatherer

	// StartupNotice, if set, is queued into every new session. serve uses it
	// to surface a failed bootstrap.
	StartupNotice *engine.Notice

	// Now is used for export file names. Defaults to [time.Now].
	Now func() time.Time

	Logger *slog.Logger
}

// Server routes HTTP requests to the engine.
type Server struct {
	engine   *engine.Engine
	sessions SessionStore
	ttl      time.Duration
	startup  *engine.Notice
	now      func() time.Time
	logger   *slog.Logger
	router   *gin.Engine
}

// New builds a Server and its routes.
func New(opts Options) *Server {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}

	if opts.Sessions == nil {
		opts.Sessions = NewMemoryStore(opts.SessionTTL)
	}

	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = 5
	}

	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 10
	}

	s := &Server{
		engine:   opts.Engine,
		sessions: opts.Sessions,
		ttl:      opts.SessionTTL,
		startup:  opts.StartupNotice,
		now:      opts.Now,
		logger:   opts.Logger,
	}

	ginMode.Do(func() { gin.SetMode(gin.ReleaseMode) })

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.GET("/documents", s.listDocuments)
	api.GET("/documents/:id", s.getDocument)
	api.GET("/export", s.export)

	withSession := api.Group("", s.sessionMiddleware())
	withSession.GET("/session", s.session)

	limiter := newRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst)
	mutating := withSession.Group("", limiter.middleware())
	mutating.POST("/mutations", s.mutation)
	mutating.POST("/import", s.importDocuments)

	s.router = r

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.InfoContext(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

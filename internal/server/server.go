package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/coah80/chocbot/internal/config"
	"github.com/coah80/chocbot/internal/middleware"
)

// Stats feeds the health endpoint.
type Stats interface {
	Active() map[string]int
}

type Options struct {
	Port        int
	TempDir     string
	CORSOrigins []string
	Version     string
}

// Server exposes scratch files that are too large to attach to a reply.
type Server struct {
	opts    Options
	stats   Stats
	pending func() int
	limiter *middleware.RateLimiter
	http    *http.Server
	logger  *zap.Logger
}

// New builds the server. pending reports the number of scheduled deletions
// and may be nil.
func New(opts Options, stats Stats, pending func() int, logger *zap.Logger) *Server {
	s := &Server{
		opts:    opts,
		stats:   stats,
		pending: pending,
		limiter: middleware.NewRateLimiter(config.RateLimitWindow, config.RateLimitMax),
		logger:  logger.Named("server"),
	}
	s.http = &http.Server{
		Addr:              ":" + strconv.Itoa(opts.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(securityHeaders)
	r.Use(middleware.CORS(s.opts.CORSOrigins, s.logger))
	r.Use(s.limiter.Handler)

	r.Get("/health", s.handleHealth)
	r.Get("/temp/{filename}", s.handleTempFile)
	r.Head("/temp/{filename}", s.handleTempFile)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go s.limiter.Cleanup(ctx, time.Minute)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("stopped")
	return nil
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Package server exposes the HTTP API: recall, memory CRUD, ingestion,
// inbox review, usage reporting, and health. Handlers translate between
// JSON shapes and the domain packages; all policy lives below this layer.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"contextcache/internal/cag"
	"contextcache/internal/config"
	"contextcache/internal/gate"
	"contextcache/internal/logging"
	"contextcache/internal/pipeline"
	"contextcache/internal/recall"
	"contextcache/internal/store"
	"contextcache/internal/types"
)

// SessionValidator resolves a session cookie to a user. Nil means cookie
// auth is disabled and only API keys are accepted.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*types.User, error)
}

// Server bundles the API dependencies behind one gin engine.
type Server struct {
	store      *store.Store
	dispatcher *recall.Dispatcher
	writer     *pipeline.Writer
	ingestor   *pipeline.Ingestor
	gate       *gate.Gate
	cache      *cag.Cache
	sessions   SessionValidator

	cfg    config.ServerConfig
	limits config.LimitsConfig

	engine *gin.Engine
	http   *http.Server
}

// New builds the server and registers all routes. sessions may be nil.
func New(s *store.Store, dispatcher *recall.Dispatcher, writer *pipeline.Writer,
	ingestor *pipeline.Ingestor, g *gate.Gate, cache *cag.Cache,
	sessions SessionValidator, cfg config.ServerConfig, limits config.LimitsConfig) *Server {

	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &Server{
		store:      s,
		dispatcher: dispatcher,
		writer:     writer,
		ingestor:   ingestor,
		gate:       g,
		cache:      cache,
		sessions:   sessions,
		cfg:        cfg,
		limits:     limits,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), srv.requestID(), srv.accessLog(), srv.observe())
	srv.registerRoutes(engine)
	srv.engine = engine
	return srv
}

// Handler exposes the engine for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Get(logging.CategoryAPI).Infof("listening on %s", s.cfg.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

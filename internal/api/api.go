// Package api provides the HTTP presentation layer for the blight engine.
//
// It translates the engine's typed results into JSON responses; no business
// logic lives here.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mossvale/blight/internal/blight"
	"github.com/mossvale/blight/internal/healing"
	"github.com/mossvale/blight/internal/models"
	"github.com/mossvale/blight/internal/store"
	"github.com/mossvale/blight/internal/sweeper"
)

// DefaultAddr is the default API listen address.
const DefaultAddr = ":8080"

// Opts holds configuration for the API server.
type Opts struct {
	Addr string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server wires the engine operations to HTTP endpoints.
type Server struct {
	engine   *blight.Engine
	workflow *healing.Workflow
	sweeper  *sweeper.Sweeper
	store    store.Store
	addr     string
}

// NewServer creates an API server over the given engine components.
func NewServer(engine *blight.Engine, workflow *healing.Workflow, swp *sweeper.Sweeper, st store.Store, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{
		engine:   engine,
		workflow: workflow,
		sweeper:  swp,
		store:    st,
		addr:     cfg.Addr,
	}
}

// Handler returns the HTTP handler with all engine routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /characters/{id}", s.getCharacterHandler)
	mux.HandleFunc("POST /characters/{id}/roll", s.rollHandler)
	mux.HandleFunc("POST /characters/{id}/afflict", s.afflictHandler)
	mux.HandleFunc("POST /healing/requests", s.createRequestHandler)
	mux.HandleFunc("GET /healing/requests/{id}", s.getRequestHandler)
	mux.HandleFunc("POST /healing/requests/{id}/fulfill", s.fulfillHandler)
	mux.HandleFunc("POST /sweep", s.sweepHandler)
	return mux
}

// Run serves the API until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// statusForError maps typed domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrCharacterNotFound),
		errors.Is(err, models.ErrHealerNotFound),
		errors.Is(err, models.ErrRequestNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDuplicatePending),
		errors.Is(err, models.ErrAlreadyRolled),
		errors.Is(err, models.ErrRequestNotPending),
		errors.Is(err, models.ErrVersionConflict),
		errors.Is(err, sweeper.ErrSweepInProgress):
		return http.StatusConflict
	case errors.Is(err, models.ErrRequestExpired):
		return http.StatusGone
	case errors.Is(err, models.ErrNotAfflicted),
		errors.Is(err, models.ErrBlightPaused),
		errors.Is(err, models.ErrVillageMismatch),
		errors.Is(err, models.ErrStageForbidden),
		errors.Is(err, models.ErrInvalidMethod),
		errors.Is(err, models.ErrItemMismatch),
		errors.Is(err, models.ErrInsufficientQuantity),
		errors.Is(err, models.ErrNoBalance),
		errors.Is(err, models.ErrNoTokenTracker),
		errors.Is(err, models.ErrEmptyLink):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Package server serves the applicant form, the JSON scoring API and the
// assessment history.
package server

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/teranos/scholar/assess"
	"github.com/teranos/scholar/errors"
	"github.com/teranos/scholar/storage"
)

// History is the read side of the assessment store.
type History interface {
	Get(ctx context.Context, id string) (*storage.Assessment, error)
	List(ctx context.Context, opts storage.ListOptions) ([]storage.Assessment, error)
	Stats(ctx context.Context) (*storage.Stats, error)
}

// Options wire a ScholarServer. Service and Models are required.
type Options struct {
	Service *assess.Service
	Models  assess.ModelSource
	// History is nil when the database is disabled.
	History History
	// Gatherer backs /metrics; nil serves the default registry.
	Gatherer prometheus.Gatherer

	AllowedOrigins []string
	// RequestsPerMinute limits assessment submissions per client IP; 0 = unlimited.
	RequestsPerMinute int
	// MaxUploadBytes bounds request bodies, photo included.
	MaxUploadBytes int64
	Logger         *zap.SugaredLogger
}

// DefaultMaxUploadBytes applies when Options.MaxUploadBytes is zero.
const DefaultMaxUploadBytes = 10 << 20

// ServerState is the lifecycle state reported by /health
type ServerState int32

const (
	ServerStateRunning  ServerState = iota // Normal operation
	ServerStateDraining                    // Shutdown started, finishing in-flight requests
	ServerStateStopped                     // Listener closed
)

func (s ServerState) String() string {
	switch s {
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ScholarServer is the HTTP surface.
type ScholarServer struct {
	service        *assess.Service
	models         assess.ModelSource
	history        History
	gatherer       prometheus.Gatherer
	allowedOrigins []string
	limiter        *ipLimiter
	maxBody        int64
	logger         *zap.SugaredLogger
	page           *pageRenderer
	state          atomic.Int32
	started        time.Time
}

// New validates options and prepares templates.
func New(opts Options) (*ScholarServer, error) {
	if opts.Service == nil || opts.Models == nil {
		return nil, errors.New("server: Service and Models are required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	page, err := newPageRenderer()
	if err != nil {
		return nil, err
	}

	s := &ScholarServer{
		service:        opts.Service,
		models:         opts.Models,
		history:        opts.History,
		gatherer:       opts.Gatherer,
		allowedOrigins: opts.AllowedOrigins,
		limiter:        newIPLimiter(opts.RequestsPerMinute),
		maxBody:        opts.MaxUploadBytes,
		logger:         opts.Logger,
		page:           page,
		started:        time.Now(),
	}
	return s, nil
}

func (s *ScholarServer) getState() ServerState { return ServerState(s.state.Load()) }

func (s *ScholarServer) setState(state ServerState) {
	s.state.Store(int32(state))
	s.logger.Infow("Server state changed", "new_state", state.String())
}

// ListenAndServe serves on addr until ctx is cancelled, then drains
// in-flight requests for at most shutdownTimeout.
func (s *ScholarServer) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve is ListenAndServe on an existing listener.
func (s *ScholarServer) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.setState(ServerStateRunning)
	s.logger.Infow("HTTP server listening", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		s.setState(ServerStateStopped)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server failed")
	case <-ctx.Done():
	}

	s.logger.Infow("Initiating server shutdown")
	s.setState(ServerStateDraining)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warnw("Graceful shutdown timed out, closing connections", "timeout", shutdownTimeout, "error", err)
		_ = srv.Close()
	}
	<-errCh
	s.setState(ServerStateStopped)
	s.logger.Infow("Server shutdown complete")
	return nil
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/iotcoss/powermirror/internal/backend"
	"github.com/iotcoss/powermirror/internal/device"
	"github.com/iotcoss/powermirror/internal/eventlog"
	"github.com/iotcoss/powermirror/internal/infrastructure/config"
	"github.com/iotcoss/powermirror/internal/infrastructure/logging"
	"github.com/iotcoss/powermirror/internal/monitor"
	"github.com/iotcoss/powermirror/internal/stream"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// StreamStatus exposes the live-stream connection state to handlers.
// *stream.Client satisfies it.
type StreamStatus interface {
	State() stream.State
	SessionID() string
}

// ControlBackend is the subset of the backend client the API proxies to.
// *backend.Client satisfies it.
type ControlBackend interface {
	ControlPower(ctx context.Context, mac, state string) error
	ClearSystemLogs(ctx context.Context) error
	SystemLogs(ctx context.Context, q backend.LogQuery) (backend.LogPage, error)
}

// MonitorStatus exposes the monitor's backend view to handlers.
// *monitor.Monitor satisfies it.
type MonitorStatus interface {
	Status() monitor.Status
	SyncedNow() time.Time
	DailySeries(ctx context.Context, mac string) ([]device.DailyPowerPoint, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Registry *device.Registry
	Journal  *eventlog.Journal
	Stream   StreamStatus
	Backend  ControlBackend
	Monitor  MonitorStatus
	Version  string
}

// Server is PowerMirror's local HTTP API.
//
// It exposes the mirrored registry, derived summary, outlet positions,
// and the system journal to presentation clients, and proxies control
// requests to the upstream backend. It is created with New() and started
// with Start().
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	registry *device.Registry
	journal  *eventlog.Journal
	stream   StreamStatus
	backend  ControlBackend
	monitor  MonitorStatus
	version  string
	server   *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Journal == nil {
		return nil, fmt.Errorf("journal is required")
	}
	// Stream, backend, and monitor are optional; the affected endpoints
	// degrade when absent.

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		registry: deps.Registry,
		journal:  deps.Journal,
		stream:   deps.Stream,
		backend:  deps.Backend,
		monitor:  deps.Monitor,
		version:  deps.Version,
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

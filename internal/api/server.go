package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/graylogic-mqttlink/internal/infrastructure/config"
	"github.com/nerrad567/graylogic-mqttlink/internal/infrastructure/logging"
	"github.com/nerrad567/graylogic-mqttlink/internal/journal"
	"github.com/nerrad567/graylogic-mqttlink/internal/session"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// publishQueueSize bounds publish requests waiting for the host loop.
const publishQueueSize = 64

// Link is the read side of the connection supervisor.
type Link interface {
	HealthCheck(ctx context.Context) error
	IsConnected() bool
	State() session.State
	CurrentDelay() time.Duration
	Endpoint() (string, uint16)
	PresenceTopic() string
	Stats() session.Stats
}

// EventStore serves journal pages.
type EventStore interface {
	List(ctx context.Context, filter journal.Filter) (*journal.ListResult, error)
}

// Publishing is the publish facade served by Drain.
type Publishing interface {
	Publish(topic string, payload []byte) error
	PublishTransient(topic string, payload []byte) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Link     Link
	Events   EventStore // optional; /link/events answers 503 without it
	Hub      *Hub       // optional; created if nil
	Version  string
}

// publishRequest is one queued publish awaiting the host loop.
type publishRequest struct {
	topic   string
	payload []byte
	retain  bool
	result  chan error
}

// Server is the operator HTTP API.
//
// It is created with New, started with Start and stopped with Close.
type Server struct {
	cfg      config.APIConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	link     Link
	events   EventStore
	hub      *Hub
	version  string
	requests chan publishRequest

	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not listening until Start is called, but Drain and Handler
// work immediately.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Link == nil {
		return nil, fmt.Errorf("link is required")
	}

	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.Logger)
	}

	return &Server{
		cfg:      deps.Config,
		secCfg:   deps.Security,
		logger:   deps.Logger,
		link:     deps.Link,
		events:   deps.Events,
		hub:      hub,
		version:  deps.Version,
		requests: make(chan publishRequest, publishQueueSize),
	}, nil
}

// Hub returns the WebSocket hub. Register it as a supervisor observer to
// stream lifecycle events.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in a background goroutine.
//
// Returns:
//   - error: If the address cannot be bound
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
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

// Drain serves every queued publish request through p without blocking and
// returns how many it served. It must be called from the goroutine that
// drives the supervisor.
func (s *Server) Drain(p Publishing) int {
	n := 0
	for {
		select {
		case req := <-s.requests:
			var err error
			if req.retain {
				err = p.Publish(req.topic, req.payload)
			} else {
				err = p.PublishTransient(req.topic, req.payload)
			}
			req.result <- err
			n++
		default:
			return n
		}
	}
}

// enqueue hands a publish to the host loop and waits for its outcome.
func (s *Server) enqueue(ctx context.Context, req publishRequest) error {
	req.result = make(chan error, 1)

	select {
	case s.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

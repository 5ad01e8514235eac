// Package gateway serves the voicegate HTTP surface.
//
// GET /ws upgrades to a WebSocket and hands the connection to a new
// session.Actor. The same listener serves the status page, health checks,
// Prometheus metrics and the Swagger UI.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/nadzzz/voicegate/internal/health"
	"github.com/nadzzz/voicegate/internal/message"
	"github.com/nadzzz/voicegate/internal/metrics"
	"github.com/nadzzz/voicegate/internal/session"
)

// StatusMessage is returned by GET /.
const StatusMessage = "voicegate WebSocket audio server"

// Options wires a Server. Greeting, Metrics and Health may be nil.
type Options struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration

	Session   session.Config
	Processor session.TurnProcessor
	Greeting  session.Greeter

	Metrics *metrics.Metrics
	Health  *health.Server
	Logger  *slog.Logger

	// OnListening runs once the listener is bound, before connections are
	// served. Use it to flip readiness.
	OnListening func(addr net.Addr)
}

// Server accepts WebSocket sessions and tracks them until shutdown.
type Server struct {
	opts     Options
	registry *Registry
	upgrader websocket.Upgrader
	logger   *slog.Logger

	server *http.Server

	// base is the parent context of every session; cancelled on shutdown.
	base       context.Context
	cancelBase context.CancelFunc
}

// New creates a Server. Call Start to begin accepting connections.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:     opts,
		registry: NewRegistry(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:     logger.With("component", "gateway"),
		base:       base,
		cancelBase: cancel,
	}
	s.server = &http.Server{
		Addr:              net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Registry returns the session registry.
func (s *Server) Registry() *Registry { return s.registry }

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleStatus)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	if s.opts.Health != nil {
		s.opts.Health.Register(mux)
	}
	if s.opts.Metrics != nil {
		mux.Handle("GET /metrics", s.opts.Metrics.Handler())
	}

	// Swagger UI for the generated OpenAPI docs.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return withCORS(mux)
}

// Start listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	return s.Serve(ctx, lis)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.logger.Info("gateway listening", "addr", lis.Addr().String())

	errc := make(chan error, 1)
	go func() { errc <- s.server.Serve(lis) }()

	if s.opts.OnListening != nil {
		s.opts.OnListening(lis.Addr())
	}

	select {
	case err := <-errc:
		s.cancelBase()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("gateway serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting connections, asks every session to close and
// waits for them until ctx ends. Sessions still open then are dropped.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("gateway shutting down", "sessions", s.registry.Count())

	// Hijacked WebSocket connections are not tracked by http.Server.
	err := s.server.Shutdown(ctx)

	s.registry.CloseAll()
	if !s.registry.Wait(ctx) {
		n := s.registry.ForceCloseAll()
		s.logger.Warn("force-closed sessions after shutdown timeout", "sessions", n)
	}
	s.cancelBase()

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	return nil
}

// handleStatus reports that the server is up.
//
// @Summary     Server status
// @Description Liveness message for load balancers and humans.
// @Tags        status
// @Produce     json
// @Success     200  {object}  message.Status
// @Router      / [get]
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(message.Status{Message: StatusMessage, Status: "ok"})
}

// handleWebSocket upgrades the connection and runs a session on it.
//
// @Summary     Voice session
// @Description Upgrades to a WebSocket. The client sends audio_blob frames
// @Description ({"type":"audio_blob","data":"<base64>","format":"wav"}) and receives
// @Description one audio_response or error frame per blob, in submission order.
// @Tags        session
// @Success     101  {string}  string  "Switching Protocols"
// @Failure     400  {string}  string  "Not a WebSocket handshake"
// @Router      /ws [get]
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.base.Err() != nil {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		s.logger.Error("generating session id", "error", err)
		_ = conn.Close()
		return
	}

	actor, err := session.Accept(s.base, session.Dependencies{
		ID:        id.String(),
		Conn:      conn,
		Processor: s.opts.Processor,
		Greeting:  s.opts.Greeting,
		Config:    s.opts.Session,
		Metrics:   s.opts.Metrics,
		Logger:    s.logger,
	})
	if err != nil {
		s.logger.Error("starting session", "error", err)
		_ = conn.Close()
		return
	}

	unregister := s.registry.Register(actor)
	s.logger.Info("connection opened", "session_id", actor.ID(), "remote", r.RemoteAddr, "sessions", s.registry.Count())

	go func() {
		<-actor.Done()
		unregister()
		s.logger.Info("connection closed", "session_id", actor.ID(), "sessions", s.registry.Count())
	}()
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "*")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

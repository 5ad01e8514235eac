// Package health exposes liveness and readiness checks.
//
// Docker and Kubernetes poll /healthz and /readyz on the gateway's HTTP
// listener. The same readiness flag drives the standard grpc.health.v1
// service, served on its own port for gRPC-native orchestrators.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server tracks readiness and serves it over HTTP and gRPC.
type Server struct {
	grpcHost string
	grpcPort int
	ready    atomic.Bool
	sessions func() int

	grpcHealth *grpchealth.Server
}

// New creates a health server whose gRPC service binds host:grpcPort. A
// grpcPort of zero disables the gRPC service. sessions, if non-nil, reports
// the number of open sessions in /readyz.
func New(host string, grpcPort int, sessions func() int) *Server {
	s := &Server{
		grpcHost:   host,
		grpcPort:   grpcPort,
		sessions:   sessions,
		grpcHealth: grpchealth.NewServer(),
	}
	s.grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// SetReady marks the daemon as ready to accept traffic.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.grpcHealth.SetServingStatus("", status)
}

// Ready reports the readiness flag.
func (s *Server) Ready() bool { return s.ready.Load() }

// Register mounts /healthz and /readyz on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
}

// handleHealthz reports process liveness.
//
// @Summary     Liveness check
// @Tags        health
// @Produce     json
// @Success     200  {object}  map[string]string
// @Router      /healthz [get]
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleReadyz reports whether the gateway accepts sessions.
//
// @Summary     Readiness check
// @Tags        health
// @Produce     json
// @Success     200  {object}  map[string]any
// @Failure     503  {object}  map[string]any
// @Router      /readyz [get]
func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		writeStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
		return
	}
	body := map[string]any{"status": "ok"}
	if s.sessions != nil {
		body["sessions"] = s.sessions()
	}
	writeStatus(w, http.StatusOK, body)
}

func writeStatus(w http.ResponseWriter, code int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// Addr is the gRPC listen address, or "" when the service is disabled.
func (s *Server) Addr() string {
	if s.grpcPort == 0 {
		return ""
	}
	return net.JoinHostPort(s.grpcHost, strconv.Itoa(s.grpcPort))
}

// Listen binds the gRPC listener. It returns a nil listener when the
// service is disabled.
func (s *Server) Listen() (net.Listener, error) {
	addr := s.Addr()
	if addr == "" {
		return nil, nil
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc health listen: %w", err)
	}
	return lis, nil
}

// Serve runs the gRPC health service on lis until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	server := grpc.NewServer()
	healthpb.RegisterHealthServer(server, s.grpcHealth)

	slog.Info("grpc health listening", "addr", lis.Addr().String())

	go func() {
		<-ctx.Done()
		s.grpcHealth.Shutdown()
		server.GracefulStop()
	}()

	if err := server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("grpc health: %w", err)
	}
	return nil
}

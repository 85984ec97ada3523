package api

import (
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"facegate-worker-go/internal/models"
)

// StreamServicePrefix prefixes the per-stream health service names.
const StreamServicePrefix = "facegate.stream."

// HealthServer is the standard gRPC health service. The empty service name
// reports the worker itself; each stream reports under its own name.
type HealthServer struct {
	port   int
	server *grpc.Server
	health *health.Server
}

func NewHealthServer(port int) *HealthServer {
	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	return &HealthServer{port: port, server: srv, health: hs}
}

func StreamServiceName(streamID string) string {
	return StreamServicePrefix + streamID
}

// SetStreamState maps a stream state onto its health status. Removed streams
// are reported as SERVICE_UNKNOWN by passing an empty state.
func (h *HealthServer) SetStreamState(streamID string, state models.StreamState) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	switch state {
	case models.StreamStateRunning:
		status = healthpb.HealthCheckResponse_SERVING
	case "":
		status = healthpb.HealthCheckResponse_SERVICE_UNKNOWN
	}
	h.health.SetServingStatus(StreamServiceName(streamID), status)
}

// Start listens on the configured port and serves until Stop.
func (h *HealthServer) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", h.port))
	if err != nil {
		return fmt.Errorf("listen grpc health on %d: %w", h.port, err)
	}
	log.Info().Int("port", h.port).Msg("Starting gRPC health service")
	return h.Serve(lis)
}

func (h *HealthServer) Serve(lis net.Listener) error {
	if err := h.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// Stop flips every service to NOT_SERVING so watchers see the shutdown, then
// drains in-flight calls. Open Watch streams are cut after a few seconds.
func (h *HealthServer) Stop() {
	h.health.Shutdown()

	done := make(chan struct{})
	go func() {
		h.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		h.server.Stop()
	}
}

package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name the daemon registers.
const ServiceName = "shipyard.daemon"

// CheckDaemon queries the daemon's gRPC health service on its Unix
// socket. The connection uses insecure credentials since the socket is
// protected by filesystem permissions.
func CheckDaemon(ctx context.Context, socketPath string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("daemon health check: %w", err)
	}
	return resp.GetStatus(), nil
}

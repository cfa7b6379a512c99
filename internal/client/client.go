// Package client talks to a running gravvyd over its Unix domain socket.
package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/gravvy/internal/daemon"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn   *grpc.ClientConn
	Health healthpb.HealthClient
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}

	return &Client{
		conn:   conn,
		Health: healthpb.NewHealthClient(conn),
	}, nil
}

// Call invokes a control method with args as its request.
func (c *Client) Call(ctx context.Context, method string, args map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, daemon.FullMethod(method), req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Serving reports whether the daemon's health service marks service
// SERVING.
func (c *Client) Serving(ctx context.Context, service string) (bool, error) {
	resp, err := c.Health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

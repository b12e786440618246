// Package client is a Go client for the memcache gRPC API.
package client

import (
	"context"

	"github.com/flowmesh/memcache/api/proto/cachepb"
	"github.com/flowmesh/memcache/internal/tracing"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

// Client is the main memcache client
type Client struct {
	conn        *grpc.ClientConn
	authToken   string
	dialOptions []grpc.DialOption

	// Service clients
	healthClient healthpb.HealthClient
	cacheClient  cachepb.CacheServiceClient
}

// New creates a new memcache client
func New(addr string, opts ...Option) (*Client, error) {
	c := &Client{}

	// Apply options
	for _, opt := range opts {
		opt(c)
	}

	// Caller dial options come last so they win
	dialOptions := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, c.dialOptions...)

	// Establish gRPC connection
	conn, err := grpc.NewClient(addr, dialOptions...)
	if err != nil {
		return nil, err
	}
	c.conn = conn

	// Initialize service clients
	c.healthClient = healthpb.NewHealthClient(conn)
	c.cacheClient = cachepb.NewCacheServiceClient(conn)

	return c, nil
}

// Close closes the gRPC connection
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// outgoing adds authentication and trace metadata to ctx
func (c *Client) outgoing(ctx context.Context) context.Context {
	ctx = tracing.InjectToOutgoingMetadata(ctx)
	if c.authToken != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.authToken)
	}
	return ctx
}

// Health reports whether the server is serving the cache
func (c *Client) Health(ctx context.Context) (bool, error) {
	resp, err := c.healthClient.Check(c.outgoing(ctx), &healthpb.HealthCheckRequest{
		Service: cachepb.ServiceName,
	})
	if err != nil {
		return false, wrapError(err, "health check")
	}
	return resp.Status == healthpb.HealthCheckResponse_SERVING, nil
}

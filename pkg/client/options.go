package client

import (
	"google.golang.org/grpc"
)

// Option is a functional option for client configuration
type Option func(*Client)

// WithAuthToken sets the authentication token
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.authToken = token
	}
}

// WithDialOptions adds gRPC dial options, e.g. TLS credentials
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) {
		c.dialOptions = append(c.dialOptions, opts...)
	}
}

package client

import (
	"context"
	"crypto/tls"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// dialTLS establishes a gRPC connection secured with tlsConfig, whose
// CA/cert material comes from an in-memory security.Authority rather
// than disk files.
func dialTLS(ctx context.Context, addr string, tlsConfig *tls.Config) (*grpc.ClientConn, error) {
	creds := credentials.NewTLS(tlsConfig)
	return grpc.DialContext(ctx, addr, grpc.WithTransportCredentials(creds), grpc.WithBlock())
}

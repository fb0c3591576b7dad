package grpcx

import (
	"context"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"google.golang.org/grpc/metadata"
)

// RequestIDMetadataKey is the canonical key used for request id propagation over gRPC metadata.
// Lowercase is recommended by gRPC metadata conventions.
const RequestIDMetadataKey = "x-request-id"

// requestIDFromIncoming returns the caller's request id or a fresh UUID.
func requestIDFromIncoming(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(RequestIDMetadataKey); len(vals) > 0 && vals[0] != "" && len(vals[0]) <= 128 {
			return vals[0]
		}
	}
	return uuid.NewString()
}

// RequestIDFromContext shares storage with the HTTP middleware so log lines
// carry the same field regardless of transport.
func RequestIDFromContext(ctx context.Context) string {
	return httpx.RequestIDFromContext(ctx)
}

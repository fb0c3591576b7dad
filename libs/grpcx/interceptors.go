package grpcx

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryServerRequestIDInterceptor reads request id from incoming metadata (if present),
// stores it in context, and echoes it back in response headers.
func UnaryServerRequestIDInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := requestIDFromIncoming(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDMetadataKey, id))
		return handler(httpx.ContextWithRequestID(ctx, id), req)
	}
}

// UnaryServerLoggingInterceptor logs one line per call and converts panics
// into codes.Internal.
func UnaryServerLoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		start := time.Now()
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("grpc handler panic", "method", info.FullMethod, "panic", rec, "stack", string(debug.Stack()))
				err = status.Error(codes.Internal, "internal error")
			}
			level := slog.LevelDebug
			if err != nil {
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, "grpc request",
				"request_id", RequestIDFromContext(ctx),
				"method", info.FullMethod,
				"code", status.Code(err).String(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}()
		return handler(ctx, req)
	}
}

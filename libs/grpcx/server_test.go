package grpcx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
)

func TestHealthFollowsReadiness(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, hs := NewServer(logger)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	var healthy atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	check := func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("db down")
	}
	go WatchReadiness(ctx, hs, "clinic", 10*time.Millisecond, check, logger)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	waitFor := func(want healthpb.HealthCheckResponse_ServingStatus) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			var header metadata.MD
			resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "clinic"}, grpc.Header(&header))
			if err == nil && resp.GetStatus() == want {
				if len(header.Get(RequestIDMetadataKey)) == 0 {
					t.Fatal("expected request id header")
				}
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Fatalf("health never reached %s", want)
	}

	waitFor(healthpb.HealthCheckResponse_NOT_SERVING)
	healthy.Store(true)
	waitFor(healthpb.HealthCheckResponse_SERVING)
}

package grpchealth

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type stubPinger struct {
	mu  sync.Mutex
	err error
}

func (p *stubPinger) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *stubPinger) set(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func startServer(t *testing.T, pinger Pinger) (*Server, healthpb.HealthClient) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(pinger, time.Hour, zap.NewNop())
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return srv, healthpb.NewHealthClient(conn)
}

func checkStatus(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	return resp.GetStatus()
}

func TestHealthStartsNotServing(t *testing.T) {
	_, client := startServer(t, &stubPinger{})

	if got := checkStatus(t, client, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before first check, got %v", got)
	}
}

func TestHealthFollowsStorePing(t *testing.T) {
	pinger := &stubPinger{}
	srv, client := startServer(t, pinger)

	if got := srv.Check(context.Background()); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", got)
	}
	if got := checkStatus(t, client, ServiceName); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING over gRPC, got %v", got)
	}

	pinger.set(errors.New("database is locked"))
	srv.Check(context.Background())
	if got := checkStatus(t, client, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING after failed ping, got %v", got)
	}
}

func TestWatchStopsWithContext(t *testing.T) {
	srv := NewServer(&stubPinger{}, 10*time.Millisecond, zap.NewNop())
	t.Cleanup(srv.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Watch(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not return after cancel")
	}
}

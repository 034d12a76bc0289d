package grpc

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/prashikshan/portal-auth/internal/logging"
)

type fakePinger struct {
	fail atomic.Bool
}

func (p *fakePinger) PingContext(context.Context) error {
	if p.fail.Load() {
		return errors.New("db down")
	}
	return nil
}

func startBuf(t *testing.T, s *HealthServer) (healthpb.HealthClient, context.CancelFunc, <-chan error) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return healthpb.NewHealthClient(conn), cancel, done
}

func checkStatus(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN
	}
	return resp.GetStatus()
}

func TestHealth_ServingAfterPing(t *testing.T) {
	p := &fakePinger{}
	s := NewHealthServer("", p, logging.Nop{})
	s.interval = 10 * time.Millisecond

	c, cancel, done := startBuf(t, s)
	defer cancel()

	assert.Eventually(t, func() bool {
		return checkStatus(t, c, ServiceName) == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	p.fail.Store(true)
	assert.Eventually(t, func() bool {
		return checkStatus(t, c, "") == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestHealth_NotServingBeforeFirstPing(t *testing.T) {
	p := &fakePinger{}
	p.fail.Store(true)
	s := NewHealthServer("", p, logging.Nop{})

	c, cancel, _ := startBuf(t, s)
	defer cancel()

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkStatus(t, c, ServiceName))
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	s := NewHealthServer("127.0.0.1:99999", &fakePinger{}, logging.Nop{})
	err := s.Run(context.Background())
	require.Error(t, err)
}

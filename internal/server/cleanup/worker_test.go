package cleanup

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/prashikshan/portal-auth/internal/logging"
)

type fakePurger struct {
	calls atomic.Int32
	n     int64
	err   error
}

func (p *fakePurger) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	p.calls.Add(1)
	return p.n, p.err
}

func TestWorker_RunsUntilCancelled(t *testing.T) {
	p := &fakePurger{n: 3}
	w := NewWorker(p, 10*time.Millisecond, logging.Nop{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return p.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestWorker_LogsErrors(t *testing.T) {
	var buf bytes.Buffer
	p := &fakePurger{err: errors.New("db down")}
	w := NewWorker(p, time.Hour, logging.NewJSON(&buf, "info"))

	w.runOnce(context.Background())

	assert.Contains(t, buf.String(), "refresh token cleanup failed")
	assert.Contains(t, buf.String(), "db down")
}

func TestNewWorker_DefaultInterval(t *testing.T) {
	w := NewWorker(&fakePurger{}, 0, logging.Nop{})
	assert.Equal(t, DefaultInterval, w.interval)
}

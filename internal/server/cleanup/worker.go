// Package cleanup periodically purges expired refresh tokens. Expiry is also
// enforced at redemption, so a missed run only costs disk space.
package cleanup

import (
	"context"
	"time"

	"github.com/prashikshan/portal-auth/internal/logging"
)

const DefaultInterval = time.Hour

// Purger is satisfied by *services.UserService.
type Purger interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

type Worker struct {
	purger   Purger
	interval time.Duration
	log      logging.Logger
}

func NewWorker(p Purger, interval time.Duration, l logging.Logger) *Worker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Worker{purger: p, interval: interval, log: l.With("module", "cleanup")}
}

// Run purges once immediately and then on every tick until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runOnce(ctx)
	for {
		select {
		case <-ticker.C:
			w.runOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	n, err := w.purger.CleanupExpiredTokens(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error(ctx, "refresh token cleanup failed", "error", err)
		}
		return
	}
	if n > 0 {
		w.log.Info(ctx, "expired refresh tokens removed", "count", n)
	}
}

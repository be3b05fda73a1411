package jobs

import (
	"context"
	"log"
	"time"

	"eduvision/registry/internal/config"
)

type Store interface {
	DeleteShadowedPending(ctx context.Context) (int64, error)
}

// StartPendingReconcileJob periodically sweeps pending rows whose email
// already has an active profile. Such rows are left behind when the
// delete step of an approval fails; lookups ignore them, this just
// keeps the table tidy.
func StartPendingReconcileJob(ctx context.Context, cfg config.Config, store Store) {
	if !cfg.ReconcileJobEnabled {
		return
	}
	interval := cfg.ReconcileJobInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	timeout := cfg.ReconcileJobTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(ctx, timeout)
				removed, err := store.DeleteShadowedPending(tickCtx)
				cancel()
				if err != nil {
					log.Printf("pending reconcile job error: %v", err)
					continue
				}
				if removed > 0 {
					log.Printf("pending reconcile job removed %d shadowed rows", removed)
				}
			}
		}
	}()
}

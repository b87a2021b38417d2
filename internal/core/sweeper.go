package core

import (
	"context"
	"time"
)

// Sweeper periodically releases expired reservation holds.
type Sweeper struct {
	service  *Service
	interval time.Duration
}

// NewSweeper builds a sweeper over the service. A non-positive interval
// falls back to one minute.
func NewSweeper(service *Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{service: service, interval: interval}
}

// Run sweeps on the configured interval until the context is cancelled.
// One sweep runs immediately so a restart catches holds that expired while
// the process was down.
func (w *Sweeper) Run(ctx context.Context) {
	w.sweep(ctx)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Sweeper) sweep(ctx context.Context) {
	if _, _, err := w.service.SweepExpired(ctx, w.service.Now()); err != nil {
		w.service.logger.Error("sweep failed", "error", err)
	}
}

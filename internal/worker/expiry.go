package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/careloop/outreach-api/internal/model"
	"github.com/careloop/outreach-api/internal/service/waitlist"
)

// ExpiryWorker finalizes stale slot offers on a fixed interval. The sweep
// itself is idempotent, so overlapping or missed ticks are harmless.
type ExpiryWorker struct {
	svc      *waitlist.Service
	interval time.Duration
}

func NewExpiryWorker(svc *waitlist.Service, interval time.Duration) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpiryWorker{svc: svc, interval: interval}
}

func (w *ExpiryWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", w.interval).Msg("expiry worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("expiry worker shutting down")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	expired, err := w.svc.ExpireStale(ctx, nil, model.SystemActorID)
	if err != nil {
		log.Error().Err(err).Msg("expiry sweep failed")
		return
	}
	if expired > 0 {
		log.Info().Int64("expired", expired).Msg("expiry sweep finalized stale offers")
	}
}

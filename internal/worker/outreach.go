package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/careloop/outreach-api/internal/model"
	"github.com/careloop/outreach-api/internal/service/recall"
)

// OutreachWorker drives recall campaigns on a schedule: campaigns marked
// auto-identify get a fresh identification pass, then every active campaign
// has its due enrollments contacted.
type OutreachWorker struct {
	svc       *recall.Service
	interval  time.Duration
	batchSize int
}

func NewOutreachWorker(svc *recall.Service, interval time.Duration, batchSize int) *OutreachWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &OutreachWorker{svc: svc, interval: interval, batchSize: batchSize}
}

func (w *OutreachWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", w.interval).Msg("outreach worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("outreach worker shutting down")
			return
		case <-ticker.C:
			w.run(ctx)
		}
	}
}

func (w *OutreachWorker) run(ctx context.Context) {
	campaigns, err := w.svc.ActiveCampaigns(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list active campaigns")
		return
	}

	for _, campaign := range campaigns {
		if ctx.Err() != nil {
			return
		}

		if campaign.AutoIdentify {
			result, err := w.svc.Identify(ctx, campaign.OrganizationID, model.SystemActorID, campaign.ID)
			if err != nil {
				log.Error().Err(err).Str("campaign_id", campaign.ID.String()).Msg("scheduled identification failed")
			} else if result.Created > 0 {
				log.Info().
					Str("campaign_id", campaign.ID.String()).
					Int("created", result.Created).
					Int("skipped", result.Skipped).
					Msg("scheduled identification enrolled patients")
			}
		}

		result, err := w.svc.ProcessOutreach(ctx, campaign.OrganizationID, model.SystemActorID, campaign.ID, w.batchSize)
		if err != nil {
			log.Error().Err(err).Str("campaign_id", campaign.ID.String()).Msg("scheduled outreach failed")
			continue
		}
		if result.Processed > 0 {
			log.Info().
				Str("campaign_id", campaign.ID.String()).
				Int("contacted", result.Contacted).
				Int("failed", result.Failed).
				Msg("scheduled outreach batch processed")
		}
	}
}

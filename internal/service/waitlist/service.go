package waitlist

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/careloop/outreach-api/internal/model"
	"github.com/careloop/outreach-api/internal/repository"
	"github.com/careloop/outreach-api/internal/service/audit"
	apperrors "github.com/careloop/outreach-api/pkg/errors"
	"github.com/careloop/outreach-api/pkg/messaging"
	"github.com/careloop/outreach-api/pkg/metrics"
	"github.com/careloop/outreach-api/pkg/validator"
)

var validate = validator.New()

// Engine defaults; all overridable per call or via Config.
const (
	DefaultMaxMatches      = 10
	DefaultExpirationHours = 24
	DefaultMaxOffers       = 3
	DefaultChannel         = messaging.ChannelSMS
)

type Config struct {
	MaxMatches      int
	ExpirationHours int
	MaxOffers       int
}

func (c *Config) withDefaults() {
	if c.MaxMatches <= 0 {
		c.MaxMatches = DefaultMaxMatches
	}
	if c.ExpirationHours <= 0 {
		c.ExpirationHours = DefaultExpirationHours
	}
	if c.MaxOffers <= 0 {
		c.MaxOffers = DefaultMaxOffers
	}
}

type Service struct {
	repo        repository.WaitlistRepository
	apptRepo    repository.AppointmentRepository
	patientRepo repository.PatientRepository
	auditor     *audit.Service
	messenger   messaging.Messenger
	broker      messaging.Broker
	metrics     *metrics.Metrics
	cfg         Config
}

func NewService(repo repository.WaitlistRepository, apptRepo repository.AppointmentRepository, patientRepo repository.PatientRepository, auditor *audit.Service, messenger messaging.Messenger, broker messaging.Broker, m *metrics.Metrics, cfg Config) *Service {
	cfg.withDefaults()
	return &Service{
		repo:        repo,
		apptRepo:    apptRepo,
		patientRepo: patientRepo,
		auditor:     auditor,
		messenger:   messenger,
		broker:      broker,
		metrics:     m,
		cfg:         cfg,
	}
}

func (s *Service) AddEntry(ctx context.Context, actorID uuid.UUID, entry *model.WaitlistEntry) error {
	if err := validate.Validate(entry); err != nil {
		return err
	}

	if err := s.repo.CreateEntry(ctx, entry); err != nil {
		return err
	}

	s.auditor.Record(ctx, entry.OrganizationID, actorID, model.AuditActionCreate, model.AuditResourceWaitlistEntry, entry.ID, entry)
	return nil
}

func (s *Service) GetEntry(ctx context.Context, orgID, id uuid.UUID) (*model.WaitlistEntry, error) {
	return s.repo.GetEntry(ctx, orgID, id)
}

func (s *Service) GetNotification(ctx context.Context, orgID, id uuid.UUID) (*model.WaitlistNotification, error) {
	return s.repo.GetNotification(ctx, orgID, id)
}

func (s *Service) ListEntries(ctx context.Context, orgID uuid.UUID, filters *model.WaitlistEntryFilters) ([]*model.WaitlistEntry, error) {
	return s.repo.ListEntries(ctx, orgID, filters)
}

func (s *Service) RemoveEntry(ctx context.Context, orgID, actorID, id uuid.UUID) error {
	if err := s.repo.CancelEntry(ctx, orgID, id); err != nil {
		return err
	}
	s.auditor.Record(ctx, orgID, actorID, model.AuditActionCancel, model.AuditResourceWaitlistEntry, id, nil)
	return nil
}

// MatchSlot ranks eligible entries against a slot and returns the top
// maxMatches. Candidates arrive ordered by enrollment time, and the stable
// sort preserves that order among equal scores, so ties resolve to the
// earliest enrollment.
func (s *Service) MatchSlot(ctx context.Context, orgID uuid.UUID, slot *model.AvailableSlot, maxMatches int) ([]*model.WaitlistMatch, error) {
	if err := validateSlot(slot); err != nil {
		return nil, err
	}
	if maxMatches <= 0 {
		maxMatches = s.cfg.MaxMatches
	}

	now := time.Now()
	candidates, err := s.repo.FindCandidates(ctx, orgID, slot, now)
	if err != nil {
		return nil, err
	}

	matches := make([]*model.WaitlistMatch, 0, len(candidates))
	for _, entry := range candidates {
		score, details := ScoreEntry(slot, entry, now)
		if score <= 0 {
			continue
		}
		matches = append(matches, &model.WaitlistMatch{
			EntryID:   entry.ID,
			PatientID: entry.PatientID,
			Score:     score,
			Details:   details,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > maxMatches {
		matches = matches[:maxMatches]
	}

	s.metrics.MatchesComputed.Observe(float64(len(matches)))
	return matches, nil
}

// Offer proposes a slot to one entry. The repository transaction locks the
// entry row first, so a concurrent offer on the same entry loses with a
// conflict instead of creating a second pending notification.
func (s *Service) Offer(ctx context.Context, orgID, actorID, entryID uuid.UUID, slot *model.AvailableSlot, ttlHours int, channel string) (*model.WaitlistNotification, error) {
	if err := validateSlot(slot); err != nil {
		return nil, err
	}
	if ttlHours <= 0 {
		ttlHours = s.cfg.ExpirationHours
	}
	if channel == "" {
		channel = DefaultChannel
	}

	now := time.Now()
	notification := &model.WaitlistNotification{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		OrganizationID:    orgID,
		WaitlistEntryID:   entryID,
		ProviderID:        slot.ProviderID,
		LocationID:        slot.LocationID,
		AppointmentTypeID: slot.AppointmentTypeID,
		SlotStart:         slot.StartTime,
		SlotEnd:           slot.EndTime,
		OfferedAt:         now,
		ExpiresAt:         now.Add(time.Duration(ttlHours) * time.Hour),
		Response:          model.NotificationResponsePending,
		Channel:           channel,
	}

	if err := s.repo.OfferSlot(ctx, notification); err != nil {
		return nil, err
	}

	s.metrics.OffersCreated.Inc()
	s.auditor.Record(ctx, orgID, actorID, model.AuditActionOffer, model.AuditResourceNotification, notification.ID, map[string]interface{}{
		"waitlist_entry_id": entryID,
		"slot_start":        slot.StartTime,
		"expires_at":        notification.ExpiresAt,
		"channel":           channel,
	})
	s.publish(ctx, messaging.ChannelWaitlistEvents, "OFFER_CREATED", notification)

	if entry, err := s.repo.GetEntry(ctx, orgID, entryID); err != nil {
		log.Warn().Err(err).Str("entry_id", entryID.String()).Msg("failed to reload entry for offer delivery")
	} else {
		s.deliverOffer(ctx, entry.PatientID, notification)
	}

	return notification, nil
}

// deliverOffer hands the offer to the messaging collaborator. Delivery
// failure does not void the offer; the notification stays pending until
// answered or swept.
func (s *Service) deliverOffer(ctx context.Context, patientID uuid.UUID, n *model.WaitlistNotification) {
	patient, err := s.patientRepo.Get(ctx, n.OrganizationID, patientID)
	if err != nil {
		log.Warn().Err(err).
			Str("notification_id", n.ID.String()).
			Msg("failed to resolve patient for offer delivery")
		return
	}

	to := patient.Phone
	if n.Channel == messaging.ChannelEmail {
		to = patient.Email
	}

	body := fmt.Sprintf(
		"An appointment slot on %s has opened up. Reply YES within %d hours to book it.",
		n.SlotStart.Format("Mon Jan 2 at 3:04 PM"),
		int(time.Until(n.ExpiresAt).Hours()),
	)

	receipt, err := s.messenger.Send(ctx, n.Channel, to, body)
	if err != nil {
		s.metrics.MessagesSent.WithLabelValues(n.Channel, "failed").Inc()
		log.Warn().Err(err).
			Str("notification_id", n.ID.String()).
			Str("channel", n.Channel).
			Msg("offer delivery failed, offer remains pending")
		return
	}
	s.metrics.MessagesSent.WithLabelValues(n.Channel, receipt.Status).Inc()
}

// ResolveResponse settles a patient's answer to an offer. A lapsed deadline
// is reported as a defined "expired" outcome rather than an error.
func (s *Service) ResolveResponse(ctx context.Context, orgID, actorID, notificationID uuid.UUID, accepted bool, notes string) (*model.ResolveOutcome, error) {
	outcome, err := s.repo.ResolveNotification(ctx, orgID, notificationID, accepted, time.Now())
	if err != nil {
		return nil, err
	}

	s.metrics.OffersResolved.WithLabelValues(string(outcome.Outcome)).Inc()
	metadata := map[string]interface{}{
		"outcome": outcome.Outcome,
		"notes":   notes,
	}
	if outcome.Appointment != nil {
		metadata["appointment_id"] = outcome.Appointment.ID
	}
	s.auditor.Record(ctx, orgID, actorID, model.AuditActionResolve, model.AuditResourceNotification, notificationID, metadata)
	s.publish(ctx, messaging.ChannelWaitlistEvents, "OFFER_RESOLVED", outcome)

	return outcome, nil
}

// AutoFill offers a cancelled appointment's former slot to the top matches.
// Offers are made sequentially and failures are isolated per candidate.
func (s *Service) AutoFill(ctx context.Context, orgID, actorID, appointmentID uuid.UUID, maxOffers int) (*model.AutoFillResult, error) {
	if maxOffers <= 0 {
		maxOffers = s.cfg.MaxOffers
	}

	appt, err := s.apptRepo.Get(ctx, orgID, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != model.AppointmentStatusCancelled {
		return nil, apperrors.NewConflict("appointment is not cancelled", nil)
	}

	slot := &model.AvailableSlot{
		ProviderID:        appt.ProviderID,
		LocationID:        appt.LocationID,
		AppointmentTypeID: appt.AppointmentTypeID,
		StartTime:         appt.StartTime,
		EndTime:           appt.EndTime,
	}

	matches, err := s.MatchSlot(ctx, orgID, slot, s.cfg.MaxMatches)
	if err != nil {
		return nil, err
	}

	result := &model.AutoFillResult{MatchesFound: len(matches)}
	for _, match := range matches {
		if result.Notified >= maxOffers {
			break
		}
		notification, err := s.Offer(ctx, orgID, actorID, match.EntryID, slot, s.cfg.ExpirationHours, DefaultChannel)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("entry %s: %v", match.EntryID, err))
			continue
		}
		result.Notified++
		result.Notifications = append(result.Notifications, notification)
	}

	s.metrics.AutoFillRuns.Inc()
	s.auditor.Record(ctx, orgID, actorID, model.AuditActionAutoFill, model.AuditResourceAppointment, appointmentID, map[string]interface{}{
		"matches_found": result.MatchesFound,
		"notified":      result.Notified,
		"errors":        len(result.Errors),
	})

	return result, nil
}

// ExpireStale finalizes every pending offer past its deadline and returns
// the owning entries to the pool. Safe to invoke repeatedly; a second sweep
// with nothing new to expire changes nothing.
func (s *Service) ExpireStale(ctx context.Context, orgID *uuid.UUID, actorID uuid.UUID) (int64, error) {
	expired, err := s.repo.ExpireNotifications(ctx, orgID, time.Now())
	if err != nil {
		return 0, err
	}

	if expired > 0 {
		s.metrics.NotificationsExpired.Add(float64(expired))
		auditOrg := uuid.Nil
		if orgID != nil {
			auditOrg = *orgID
		}
		s.auditor.Record(ctx, auditOrg, actorID, model.AuditActionSweep, model.AuditResourceNotification, uuid.Nil, map[string]interface{}{
			"expired": expired,
		})
	}
	return expired, nil
}

func (s *Service) Stats(ctx context.Context, orgID uuid.UUID) (*model.WaitlistStats, error) {
	return s.repo.EntryStats(ctx, orgID, time.Now())
}

func (s *Service) publish(ctx context.Context, channel, eventType string, payload interface{}) {
	if err := s.broker.Publish(ctx, channel, &messaging.Event{Type: eventType, Payload: payload}); err != nil {
		log.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}

func validateSlot(slot *model.AvailableSlot) error {
	if slot == nil {
		return apperrors.NewValidation("slot is required", nil)
	}
	return validate.Validate(slot)
}

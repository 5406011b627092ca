package recall

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/careloop/outreach-api/internal/model"
	"github.com/careloop/outreach-api/internal/repository"
	"github.com/careloop/outreach-api/internal/repository/postgres"
	"github.com/careloop/outreach-api/internal/service/audit"
	apperrors "github.com/careloop/outreach-api/pkg/errors"
	"github.com/careloop/outreach-api/pkg/messaging"
	"github.com/careloop/outreach-api/pkg/metrics"
	"github.com/careloop/outreach-api/pkg/validator"
)

var validate = validator.New()

const (
	// DefaultDueDays is how far out a freshly identified enrollment is due.
	DefaultDueDays = 7

	// DefaultOutreachLimit bounds one processing batch.
	DefaultOutreachLimit = 100

	campaignCacheTTL = 5 * time.Minute
)

type Service struct {
	repo      repository.RecallRepository
	auditor   *audit.Service
	messenger messaging.Messenger
	broker    messaging.Broker
	metrics   *metrics.Metrics

	// Campaigns are re-read on every outreach batch and response; a short
	// TTL cache keeps that off the hot path. Invalidated on update.
	campaigns *gocache.Cache
}

func NewService(repo repository.RecallRepository, auditor *audit.Service, messenger messaging.Messenger, broker messaging.Broker, m *metrics.Metrics) *Service {
	return &Service{
		repo:      repo,
		auditor:   auditor,
		messenger: messenger,
		broker:    broker,
		metrics:   m,
		campaigns: gocache.New(campaignCacheTTL, 2*campaignCacheTTL),
	}
}

func (s *Service) CreateCampaign(ctx context.Context, actorID uuid.UUID, campaign *model.RecallCampaign) error {
	if err := validate.Validate(campaign); err != nil {
		return err
	}
	if !campaign.RecallType.Valid() {
		return apperrors.NewValidation(fmt.Sprintf("invalid recall type %q", campaign.RecallType), nil)
	}
	if campaign.FrequencyDays <= 0 {
		campaign.FrequencyDays = DefaultDueDays
	}
	if campaign.MaxAttempts <= 0 {
		campaign.MaxAttempts = 3
	}

	if err := s.repo.CreateCampaign(ctx, campaign); err != nil {
		return err
	}

	s.auditor.Record(ctx, campaign.OrganizationID, actorID, model.AuditActionCreate, model.AuditResourceCampaign, campaign.ID, campaign)
	return nil
}

func (s *Service) GetCampaign(ctx context.Context, orgID, id uuid.UUID) (*model.RecallCampaign, error) {
	key := campaignCacheKey(orgID, id)
	if cached, ok := s.campaigns.Get(key); ok {
		return cached.(*model.RecallCampaign), nil
	}

	campaign, err := s.repo.GetCampaign(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	s.campaigns.Set(key, campaign, campaignCacheTTL)
	return campaign, nil
}

// UpdateCampaign applies a partial update; identity and recall type are
// immutable.
func (s *Service) UpdateCampaign(ctx context.Context, orgID, actorID, id uuid.UUID, req *model.UpdateCampaignRequest) (*model.RecallCampaign, error) {
	campaign, err := s.repo.GetCampaign(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		campaign.Name = *req.Name
	}
	if req.Description != nil {
		campaign.Description = *req.Description
	}
	if req.Criteria != nil {
		campaign.Criteria = *req.Criteria
	}
	if req.Templates != nil {
		campaign.Templates = *req.Templates
	}
	if req.FrequencyDays != nil {
		campaign.FrequencyDays = *req.FrequencyDays
	}
	if req.MaxAttempts != nil {
		campaign.MaxAttempts = *req.MaxAttempts
	}
	if req.Active != nil {
		campaign.Active = *req.Active
	}
	if req.AutoIdentify != nil {
		campaign.AutoIdentify = *req.AutoIdentify
	}

	if err := s.repo.UpdateCampaign(ctx, campaign); err != nil {
		return nil, err
	}
	s.campaigns.Delete(campaignCacheKey(orgID, id))

	s.auditor.Record(ctx, orgID, actorID, model.AuditActionUpdate, model.AuditResourceCampaign, id, req)
	return campaign, nil
}

func (s *Service) ListCampaigns(ctx context.Context, orgID uuid.UUID, activeOnly bool) ([]*model.RecallCampaign, error) {
	return s.repo.ListCampaigns(ctx, orgID, activeOnly)
}

// ActiveCampaigns spans all organizations; the scheduled outreach worker
// iterates it.
func (s *Service) ActiveCampaigns(ctx context.Context) ([]*model.RecallCampaign, error) {
	return s.repo.ListActiveCampaigns(ctx)
}

// Identify runs the campaign's compiled criteria over the patient
// population and enrolls every match. Patients already active in the
// campaign are counted as skipped; other failures are collected and the
// batch continues.
func (s *Service) Identify(ctx context.Context, orgID, actorID, campaignID uuid.UUID) (*model.IdentifyResult, error) {
	campaign, err := s.GetCampaign(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	patients, err := s.repo.IdentifyCandidates(ctx, campaign, now)
	if err != nil {
		return nil, err
	}

	result := &model.IdentifyResult{Identified: len(patients)}
	s.metrics.RecallIdentified.Add(float64(len(patients)))

	for _, patient := range patients {
		rp := &model.RecallPatient{
			OrganizationID: orgID,
			CampaignID:     campaignID,
			PatientID:      patient.ID,
			Reason:         fmt.Sprintf("matched %s criteria", campaign.RecallType),
			DueDate:        now.AddDate(0, 0, DefaultDueDays),
			Status:         model.RecallStatusPending,
			Source:         model.RecallSourceAuto,
		}
		err := s.repo.EnrollPatient(ctx, rp)
		switch {
		case err == nil:
			result.Created++
		case err == postgres.ErrAlreadyEnrolled:
			result.Skipped++
		default:
			result.Errors = append(result.Errors, fmt.Sprintf("patient %s: %v", patient.ID, err))
		}
	}

	s.metrics.RecallEnrolled.Add(float64(result.Created))
	s.metrics.RecallSkipped.Add(float64(result.Skipped))
	s.auditor.Record(ctx, orgID, actorID, model.AuditActionIdentify, model.AuditResourceCampaign, campaignID, result)
	s.publish(ctx, "IDENTIFY_COMPLETED", map[string]interface{}{
		"campaign_id": campaignID,
		"created":     result.Created,
		"skipped":     result.Skipped,
	})

	return result, nil
}

// ProcessOutreach contacts due enrollments on the campaign's cadence. Each
// member's contact log and cadence update commit together; one member's
// failure never aborts the batch.
func (s *Service) ProcessOutreach(ctx context.Context, orgID, actorID, campaignID uuid.UUID, limit int) (*model.OutreachResult, error) {
	if limit <= 0 {
		limit = DefaultOutreachLimit
	}

	campaign, err := s.GetCampaign(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	due, err := s.repo.ListDueOutreach(ctx, orgID, campaignID, now, limit)
	if err != nil {
		return nil, err
	}

	result := &model.OutreachResult{Processed: len(due)}
	for _, candidate := range due {
		if err := s.contactOne(ctx, campaign, candidate, now); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("recall patient %s: %v", candidate.ID, err))
			s.metrics.OutreachProcessed.WithLabelValues("failed").Inc()
			continue
		}
		result.Contacted++
		s.metrics.OutreachProcessed.WithLabelValues("contacted").Inc()
	}

	s.auditor.Record(ctx, orgID, actorID, model.AuditActionOutreach, model.AuditResourceCampaign, campaignID, result)
	return result, nil
}

func (s *Service) contactOne(ctx context.Context, campaign *model.RecallCampaign, candidate *model.OutreachCandidate, now time.Time) error {
	channel, message := pickTemplate(campaign.Templates)
	to := candidate.PatientPhone
	if channel == messaging.ChannelEmail {
		to = candidate.PatientEmail
	}

	contact := &model.RecallContactLog{
		RecallPatientID: candidate.ID,
		Channel:         channel,
		Message:         message,
		SentAt:          now,
	}

	receipt, err := s.messenger.Send(ctx, channel, to, message)
	if err != nil {
		s.metrics.MessagesSent.WithLabelValues(channel, "failed").Inc()
		return fmt.Errorf("send failed: %w", err)
	}
	contact.DeliveryStatus = receipt.Status
	contact.ExternalID = receipt.ExternalID
	s.metrics.MessagesSent.WithLabelValues(channel, receipt.Status).Inc()

	next := now.AddDate(0, 0, campaign.FrequencyDays)
	rp := &candidate.RecallPatient
	rp.Status = model.RecallStatusContacted
	rp.LastContactAt = &now
	rp.NextContactAt = &next
	rp.ContactAttempts++

	return s.repo.RecordContact(ctx, contact, rp)
}

// pickTemplate chooses the outreach channel: SMS when a template exists for
// it, otherwise the first configured channel. Template bodies are sent as
// configured; content generation is owned elsewhere.
func pickTemplate(templates model.MessageTemplates) (string, string) {
	if body, ok := templates[messaging.ChannelSMS]; ok {
		return messaging.ChannelSMS, body
	}
	for channel, body := range templates {
		return channel, body
	}
	return messaging.ChannelSMS, "You are due for a follow-up visit. Please call the clinic to schedule."
}

// RecordContact registers a manually performed contact attempt (e.g., a
// front-desk phone call) against an enrollment.
func (s *Service) RecordContact(ctx context.Context, orgID, actorID, recallPatientID uuid.UUID, req *model.RecordContactRequest) (*model.RecallContactLog, error) {
	rp, err := s.repo.GetRecallPatient(ctx, orgID, recallPatientID)
	if err != nil {
		return nil, err
	}
	if !rp.Status.CanTransitionTo(model.RecallStatusContacted) {
		return nil, apperrors.NewConflict(fmt.Sprintf("recall patient is %s and cannot be contacted", rp.Status), nil)
	}

	campaign, err := s.GetCampaign(ctx, orgID, rp.CampaignID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	next := now.AddDate(0, 0, campaign.FrequencyDays)
	contact := &model.RecallContactLog{
		RecallPatientID: recallPatientID,
		Channel:         req.Channel,
		Message:         req.Message,
		SentAt:          now,
		DeliveryStatus:  "recorded",
	}

	rp.Status = model.RecallStatusContacted
	rp.LastContactAt = &now
	rp.NextContactAt = &next
	rp.ContactAttempts++

	if err := s.repo.RecordContact(ctx, contact, rp); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, orgID, actorID, model.AuditActionOutreach, model.AuditResourceRecallPatient, recallPatientID, contact)
	return contact, nil
}

// RecordResponse maps a caller-supplied outcome onto the enrollment's next
// status and appends the note.
func (s *Service) RecordResponse(ctx context.Context, orgID, actorID, recallPatientID uuid.UUID, req *model.RecordResponseRequest) (*model.RecallPatient, error) {
	nextStatus, ok := req.Outcome.Status()
	if !ok {
		return nil, apperrors.NewValidation(fmt.Sprintf("invalid outcome %q", req.Outcome), nil)
	}

	rp, err := s.repo.GetRecallPatient(ctx, orgID, recallPatientID)
	if err != nil {
		return nil, err
	}
	if !rp.Status.CanTransitionTo(nextStatus) {
		return nil, apperrors.NewConflict(fmt.Sprintf("cannot move recall patient from %s to %s", rp.Status, nextStatus), nil)
	}

	rp.Status = nextStatus
	if req.Notes != "" {
		rp.Notes = appendNote(rp.Notes, req.Notes)
	}

	if err := s.repo.UpdateRecallPatient(ctx, rp); err != nil {
		return nil, err
	}

	// Tie the response back to the outreach that elicited it.
	if err := s.repo.StampContactResponse(ctx, orgID, recallPatientID, string(req.Outcome), req.Notes); err != nil {
		log.Warn().Err(err).Str("recall_patient_id", recallPatientID.String()).Msg("failed to stamp contact response")
	}

	s.auditor.Record(ctx, orgID, actorID, model.AuditActionUpdate, model.AuditResourceRecallPatient, recallPatientID, map[string]interface{}{
		"outcome": req.Outcome,
		"status":  nextStatus,
	})
	s.publish(ctx, "RECALL_RESPONSE", map[string]interface{}{
		"recall_patient_id": recallPatientID,
		"status":            nextStatus,
	})

	return rp, nil
}

// ScheduleFromRecall links a booked appointment to the enrollment; this is
// the terminal hand-off to the booking subsystem.
func (s *Service) ScheduleFromRecall(ctx context.Context, orgID, actorID, recallPatientID, appointmentID uuid.UUID) (*model.RecallPatient, error) {
	rp, err := s.repo.GetRecallPatient(ctx, orgID, recallPatientID)
	if err != nil {
		return nil, err
	}
	if rp.Status != model.RecallStatusScheduled && !rp.Status.CanTransitionTo(model.RecallStatusScheduled) {
		return nil, apperrors.NewConflict(fmt.Sprintf("recall patient is %s and cannot be scheduled", rp.Status), nil)
	}

	rp.Status = model.RecallStatusScheduled
	rp.AppointmentID = &appointmentID

	if err := s.repo.UpdateRecallPatient(ctx, rp); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, orgID, actorID, model.AuditActionUpdate, model.AuditResourceRecallPatient, recallPatientID, map[string]interface{}{
		"appointment_id": appointmentID,
	})
	return rp, nil
}

func (s *Service) Dashboard(ctx context.Context, orgID uuid.UUID) (*model.RecallDashboard, error) {
	return s.repo.Dashboard(ctx, orgID, time.Now())
}

func (s *Service) PatientHistory(ctx context.Context, orgID, patientID uuid.UUID) (*model.RecallHistory, error) {
	return s.repo.PatientHistory(ctx, orgID, patientID)
}

func (s *Service) publish(ctx context.Context, eventType string, payload interface{}) {
	if err := s.broker.Publish(ctx, messaging.ChannelRecallEvents, &messaging.Event{Type: eventType, Payload: payload}); err != nil {
		log.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}

func campaignCacheKey(orgID, id uuid.UUID) string {
	return orgID.String() + ":" + id.String()
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}

package recall

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/outreach-api/internal/model"
	"github.com/careloop/outreach-api/internal/repository/postgres"
	auditService "github.com/careloop/outreach-api/internal/service/audit"
	apperrors "github.com/careloop/outreach-api/pkg/errors"
	"github.com/careloop/outreach-api/pkg/messaging"
	"github.com/careloop/outreach-api/pkg/metrics"
)

type fakeRecallRepo struct {
	campaigns   map[uuid.UUID]*model.RecallCampaign
	enrollments map[uuid.UUID]*model.RecallPatient
	contacts    []*model.RecallContactLog
	candidates  []*model.Patient
	due         []*model.OutreachCandidate
	enrollErrOn map[uuid.UUID]error
}

func newFakeRecallRepo() *fakeRecallRepo {
	return &fakeRecallRepo{
		campaigns:   make(map[uuid.UUID]*model.RecallCampaign),
		enrollments: make(map[uuid.UUID]*model.RecallPatient),
		enrollErrOn: make(map[uuid.UUID]error),
	}
}

func (f *fakeRecallRepo) CreateCampaign(_ context.Context, c *model.RecallCampaign) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	copied := *c
	f.campaigns[c.ID] = &copied
	return nil
}

func (f *fakeRecallRepo) GetCampaign(_ context.Context, orgID, id uuid.UUID) (*model.RecallCampaign, error) {
	c, ok := f.campaigns[id]
	if !ok || c.OrganizationID != orgID {
		return nil, apperrors.NewNotFound("recall campaign", nil)
	}
	copied := *c
	return &copied, nil
}

func (f *fakeRecallRepo) UpdateCampaign(_ context.Context, c *model.RecallCampaign) error {
	if _, ok := f.campaigns[c.ID]; !ok {
		return apperrors.NewNotFound("recall campaign", nil)
	}
	copied := *c
	f.campaigns[c.ID] = &copied
	return nil
}

func (f *fakeRecallRepo) ListCampaigns(_ context.Context, orgID uuid.UUID, activeOnly bool) ([]*model.RecallCampaign, error) {
	var out []*model.RecallCampaign
	for _, c := range f.campaigns {
		if c.OrganizationID != orgID {
			continue
		}
		if activeOnly && !c.Active {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeRecallRepo) ListActiveCampaigns(_ context.Context) ([]*model.RecallCampaign, error) {
	var out []*model.RecallCampaign
	for _, c := range f.campaigns {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeRecallRepo) IdentifyCandidates(_ context.Context, _ *model.RecallCampaign, _ time.Time) ([]*model.Patient, error) {
	return f.candidates, nil
}

func (f *fakeRecallRepo) EnrollPatient(_ context.Context, rp *model.RecallPatient) error {
	if err, ok := f.enrollErrOn[rp.PatientID]; ok {
		return err
	}
	for _, existing := range f.enrollments {
		if existing.CampaignID == rp.CampaignID && existing.PatientID == rp.PatientID && existing.Status.Active() {
			return postgres.ErrAlreadyEnrolled
		}
	}
	if rp.ID == uuid.Nil {
		rp.ID = uuid.New()
	}
	copied := *rp
	f.enrollments[rp.ID] = &copied
	return nil
}

func (f *fakeRecallRepo) GetRecallPatient(_ context.Context, orgID, id uuid.UUID) (*model.RecallPatient, error) {
	rp, ok := f.enrollments[id]
	if !ok || rp.OrganizationID != orgID {
		return nil, apperrors.NewNotFound("recall patient", nil)
	}
	copied := *rp
	return &copied, nil
}

func (f *fakeRecallRepo) ListDueOutreach(_ context.Context, _, _ uuid.UUID, _ time.Time, limit int) ([]*model.OutreachCandidate, error) {
	if limit < len(f.due) {
		return f.due[:limit], nil
	}
	return f.due, nil
}

func (f *fakeRecallRepo) RecordContact(_ context.Context, contact *model.RecallContactLog, rp *model.RecallPatient) error {
	f.contacts = append(f.contacts, contact)
	copied := *rp
	f.enrollments[rp.ID] = &copied
	return nil
}

func (f *fakeRecallRepo) UpdateRecallPatient(_ context.Context, rp *model.RecallPatient) error {
	if _, ok := f.enrollments[rp.ID]; !ok {
		return apperrors.NewNotFound("recall patient", nil)
	}
	copied := *rp
	f.enrollments[rp.ID] = &copied
	return nil
}

func (f *fakeRecallRepo) StampContactResponse(_ context.Context, orgID, recallPatientID uuid.UUID, response, notes string) error {
	rp, ok := f.enrollments[recallPatientID]
	if !ok || rp.OrganizationID != orgID {
		return nil
	}
	var latest *model.RecallContactLog
	for _, c := range f.contacts {
		if c.RecallPatientID != recallPatientID {
			continue
		}
		if latest == nil || c.SentAt.After(latest.SentAt) {
			latest = c
		}
	}
	if latest != nil {
		latest.Response = &response
		latest.ResponseNotes = &notes
	}
	return nil
}

func (f *fakeRecallRepo) Dashboard(_ context.Context, _ uuid.UUID, _ time.Time) (*model.RecallDashboard, error) {
	return &model.RecallDashboard{StatusCounts: map[model.RecallStatus]int{}}, nil
}

func (f *fakeRecallRepo) PatientHistory(_ context.Context, _, _ uuid.UUID) (*model.RecallHistory, error) {
	return &model.RecallHistory{}, nil
}

type fakeAuditRepo struct{}

func (fakeAuditRepo) Create(context.Context, *model.AuditLog) error { return nil }

// failingMessenger fails sends to specific recipients and records the rest.
type failingMessenger struct {
	inner  *messaging.Recorder
	failTo map[string]bool
}

func (m *failingMessenger) Send(ctx context.Context, channel, to, body string) (*messaging.Receipt, error) {
	if m.failTo[to] {
		return nil, errors.New("carrier rejected message")
	}
	return m.inner.Send(ctx, channel, to, body)
}

type recallFixture struct {
	svc      *Service
	repo     *fakeRecallRepo
	recorder *messaging.Recorder
	failing  *failingMessenger
	orgID    uuid.UUID
	actorID  uuid.UUID
}

func newRecallFixture(t *testing.T) *recallFixture {
	t.Helper()
	repo := newFakeRecallRepo()
	recorder := messaging.NewRecorder()
	failing := &failingMessenger{inner: recorder, failTo: make(map[string]bool)}
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	auditor := auditService.NewService(fakeAuditRepo{})

	svc := NewService(repo, auditor, failing, messaging.NopBroker{}, m)
	return &recallFixture{
		svc:      svc,
		repo:     repo,
		recorder: recorder,
		failing:  failing,
		orgID:    uuid.New(),
		actorID:  uuid.New(),
	}
}

func (fx *recallFixture) createCampaign(t *testing.T) *model.RecallCampaign {
	t.Helper()
	campaign := &model.RecallCampaign{
		OrganizationID: fx.orgID,
		Name:           "Annual skin checks",
		RecallType:     model.RecallTypeAnnualSkinCheck,
		Templates:      model.MessageTemplates{messaging.ChannelSMS: "You are due for your annual skin check."},
		FrequencyDays:  30,
		MaxAttempts:    3,
		Active:         true,
	}
	require.NoError(t, fx.svc.CreateCampaign(context.Background(), fx.actorID, campaign))
	return campaign
}

func TestCreateCampaignValidation(t *testing.T) {
	fx := newRecallFixture(t)

	err := fx.svc.CreateCampaign(context.Background(), fx.actorID, &model.RecallCampaign{
		OrganizationID: fx.orgID,
		RecallType:     model.RecallTypeAnnualSkinCheck,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrValidation, apperrors.CodeOf(err))

	err = fx.svc.CreateCampaign(context.Background(), fx.actorID, &model.RecallCampaign{
		OrganizationID: fx.orgID,
		Name:           "Bad type",
		RecallType:     "quarterly_newsletter",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrValidation, apperrors.CodeOf(err))
}

func TestUpdateCampaignInvalidatesCache(t *testing.T) {
	fx := newRecallFixture(t)
	campaign := fx.createCampaign(t)

	// Prime the cache.
	got, err := fx.svc.GetCampaign(context.Background(), fx.orgID, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, "Annual skin checks", got.Name)

	name := "Annual skin checks (renamed)"
	_, err = fx.svc.UpdateCampaign(context.Background(), fx.orgID, fx.actorID, campaign.ID, &model.UpdateCampaignRequest{Name: &name})
	require.NoError(t, err)

	got, err = fx.svc.GetCampaign(context.Background(), fx.orgID, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, name, got.Name)
}

func TestIdentifyCountsCreatedSkippedAndErrors(t *testing.T) {
	fx := newRecallFixture(t)
	campaign := fx.createCampaign(t)

	enrolled := &model.Patient{Base: model.Base{ID: uuid.New()}, OrganizationID: fx.orgID}
	fresh := &model.Patient{Base: model.Base{ID: uuid.New()}, OrganizationID: fx.orgID}
	broken := &model.Patient{Base: model.Base{ID: uuid.New()}, OrganizationID: fx.orgID}

	// One patient is already active in the campaign, one insert fails.
	require.NoError(t, fx.repo.EnrollPatient(context.Background(), &model.RecallPatient{
		OrganizationID: fx.orgID,
		CampaignID:     campaign.ID,
		PatientID:      enrolled.ID,
		Status:         model.RecallStatusPending,
	}))
	fx.repo.enrollErrOn[broken.ID] = errors.New("insert failed")
	fx.repo.candidates = []*model.Patient{enrolled, fresh, broken}

	result, err := fx.svc.Identify(context.Background(), fx.orgID, fx.actorID, campaign.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Identified)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Skipped)
	assert.Len(t, result.Errors, 1)
}

func TestIdentifyIsIdempotent(t *testing.T) {
	fx := newRecallFixture(t)
	campaign := fx.createCampaign(t)

	patient := &model.Patient{Base: model.Base{ID: uuid.New()}, OrganizationID: fx.orgID}
	fx.repo.candidates = []*model.Patient{patient}

	first, err := fx.svc.Identify(context.Background(), fx.orgID, fx.actorID, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)

	second, err := fx.svc.Identify(context.Background(), fx.orgID, fx.actorID, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 1, second.Skipped)
}

func dueCandidate(orgID, campaignID uuid.UUID, phone string) *model.OutreachCandidate {
	return &model.OutreachCandidate{
		RecallPatient: model.RecallPatient{
			Base:           model.Base{ID: uuid.New()},
			OrganizationID: orgID,
			CampaignID:     campaignID,
			PatientID:      uuid.New(),
			Status:         model.RecallStatusPending,
			DueDate:        time.Now(),
		},
		FrequencyDays: 30,
		MaxAttempts:   3,
		PatientPhone:  phone,
		PatientEmail:  "patient@example.com",
	}
}

func TestProcessOutreachContactsDueMembers(t *testing.T) {
	fx := newRecallFixture(t)
	campaign := fx.createCampaign(t)

	first := dueCandidate(fx.orgID, campaign.ID, "+15555550101")
	second := dueCandidate(fx.orgID, campaign.ID, "+15555550102")
	fx.repo.enrollments[first.ID] = &first.RecallPatient
	fx.repo.enrollments[second.ID] = &second.RecallPatient
	fx.repo.due = []*model.OutreachCandidate{first, second}

	result, err := fx.svc.ProcessOutreach(context.Background(), fx.orgID, fx.actorID, campaign.ID, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, result.Contacted)
	assert.Equal(t, 0, result.Failed)
	require.Len(t, fx.recorder.Messages, 2)
	assert.Equal(t, "You are due for your annual skin check.", fx.recorder.Messages[0].Body)

	updated := fx.repo.enrollments[first.ID]
	assert.Equal(t, model.RecallStatusContacted, updated.Status)
	assert.Equal(t, 1, updated.ContactAttempts)
	require.NotNil(t, updated.NextContactAt)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 30), *updated.NextContactAt, time.Minute)
	require.Len(t, fx.repo.contacts, 2)
	assert.Equal(t, "sent", fx.repo.contacts[0].DeliveryStatus)
}

func TestProcessOutreachIsolatesFailures(t *testing.T) {
	fx := newRecallFixture(t)
	campaign := fx.createCampaign(t)

	good := dueCandidate(fx.orgID, campaign.ID, "+15555550101")
	bad := dueCandidate(fx.orgID, campaign.ID, "+15555550199")
	fx.repo.enrollments[good.ID] = &good.RecallPatient
	fx.repo.enrollments[bad.ID] = &bad.RecallPatient
	fx.repo.due = []*model.OutreachCandidate{bad, good}
	fx.failing.failTo["+15555550199"] = true

	result, err := fx.svc.ProcessOutreach(context.Background(), fx.orgID, fx.actorID, campaign.ID, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Contacted)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)

	// The failed member keeps its cadence untouched.
	assert.Equal(t, model.RecallStatusPending, fx.repo.enrollments[bad.ID].Status)
	assert.Equal(t, 0, fx.repo.enrollments[bad.ID].ContactAttempts)
	assert.Equal(t, model.RecallStatusContacted, fx.repo.enrollments[good.ID].Status)
}

func TestRecordResponseTransitions(t *testing.T) {
	fx := newRecallFixture(t)
	campaign := fx.createCampaign(t)

	rp := &model.RecallPatient{
		Base:           model.Base{ID: uuid.New()},
		OrganizationID: fx.orgID,
		CampaignID:     campaign.ID,
		PatientID:      uuid.New(),
		Status:         model.RecallStatusContacted,
	}
	fx.repo.enrollments[rp.ID] = rp

	updated, err := fx.svc.RecordResponse(context.Background(), fx.orgID, fx.actorID, rp.ID, &model.RecordResponseRequest{
		Outcome: model.RecallResponseDeclined,
		Notes:   "not interested this year",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RecallStatusDeclined, updated.Status)
	assert.Contains(t, updated.Notes, "not interested this year")

	// Declined is terminal; a follow-up response conflicts.
	_, err = fx.svc.RecordResponse(context.Background(), fx.orgID, fx.actorID, rp.ID, &model.RecordResponseRequest{
		Outcome: model.RecallResponseScheduled,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
}

func TestRecordResponseStampsLatestContact(t *testing.T) {
	fx := newRecallFixture(t)
	campaign := fx.createCampaign(t)

	rp := &model.RecallPatient{
		Base:           model.Base{ID: uuid.New()},
		OrganizationID: fx.orgID,
		CampaignID:     campaign.ID,
		PatientID:      uuid.New(),
		Status:         model.RecallStatusContacted,
	}
	fx.repo.enrollments[rp.ID] = rp

	earlier := &model.RecallContactLog{
		ID:              uuid.New(),
		RecallPatientID: rp.ID,
		Channel:         "sms",
		SentAt:          time.Now().Add(-48 * time.Hour),
	}
	latest := &model.RecallContactLog{
		ID:              uuid.New(),
		RecallPatientID: rp.ID,
		Channel:         "sms",
		SentAt:          time.Now().Add(-1 * time.Hour),
	}
	fx.repo.contacts = append(fx.repo.contacts, earlier, latest)

	_, err := fx.svc.RecordResponse(context.Background(), fx.orgID, fx.actorID, rp.ID, &model.RecordResponseRequest{
		Outcome: model.RecallResponseDeclined,
		Notes:   "asked to stop texting",
	})
	require.NoError(t, err)

	require.NotNil(t, latest.Response)
	assert.Equal(t, string(model.RecallResponseDeclined), *latest.Response)
	require.NotNil(t, latest.ResponseNotes)
	assert.Equal(t, "asked to stop texting", *latest.ResponseNotes)
	assert.Nil(t, earlier.Response)
}

func TestRecordResponseRejectsUnknownOutcome(t *testing.T) {
	fx := newRecallFixture(t)
	campaign := fx.createCampaign(t)

	rp := &model.RecallPatient{
		Base:           model.Base{ID: uuid.New()},
		OrganizationID: fx.orgID,
		CampaignID:     campaign.ID,
		Status:         model.RecallStatusContacted,
	}
	fx.repo.enrollments[rp.ID] = rp

	_, err := fx.svc.RecordResponse(context.Background(), fx.orgID, fx.actorID, rp.ID, &model.RecordResponseRequest{
		Outcome: "ghosted",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrValidation, apperrors.CodeOf(err))
}

func TestScheduleFromRecall(t *testing.T) {
	fx := newRecallFixture(t)
	campaign := fx.createCampaign(t)

	rp := &model.RecallPatient{
		Base:           model.Base{ID: uuid.New()},
		OrganizationID: fx.orgID,
		CampaignID:     campaign.ID,
		Status:         model.RecallStatusContacted,
	}
	fx.repo.enrollments[rp.ID] = rp

	appointmentID := uuid.New()
	updated, err := fx.svc.ScheduleFromRecall(context.Background(), fx.orgID, fx.actorID, rp.ID, appointmentID)
	require.NoError(t, err)
	assert.Equal(t, model.RecallStatusScheduled, updated.Status)
	require.NotNil(t, updated.AppointmentID)
	assert.Equal(t, appointmentID, *updated.AppointmentID)
}

func TestScheduleFromRecallRejectsTerminal(t *testing.T) {
	fx := newRecallFixture(t)
	campaign := fx.createCampaign(t)

	rp := &model.RecallPatient{
		Base:           model.Base{ID: uuid.New()},
		OrganizationID: fx.orgID,
		CampaignID:     campaign.ID,
		Status:         model.RecallStatusDismissed,
	}
	fx.repo.enrollments[rp.ID] = rp

	_, err := fx.svc.ScheduleFromRecall(context.Background(), fx.orgID, fx.actorID, rp.ID, uuid.New())
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
}

func TestRecordContactAdvancesCadence(t *testing.T) {
	fx := newRecallFixture(t)
	campaign := fx.createCampaign(t)

	rp := &model.RecallPatient{
		Base:           model.Base{ID: uuid.New()},
		OrganizationID: fx.orgID,
		CampaignID:     campaign.ID,
		Status:         model.RecallStatusPending,
	}
	fx.repo.enrollments[rp.ID] = rp

	contact, err := fx.svc.RecordContact(context.Background(), fx.orgID, fx.actorID, rp.ID, &model.RecordContactRequest{
		Channel: messaging.ChannelPhone,
		Message: "left voicemail",
	})
	require.NoError(t, err)
	assert.Equal(t, messaging.ChannelPhone, contact.Channel)

	updated := fx.repo.enrollments[rp.ID]
	assert.Equal(t, model.RecallStatusContacted, updated.Status)
	assert.Equal(t, 1, updated.ContactAttempts)
}

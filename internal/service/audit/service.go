package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/careloop/outreach-api/internal/model"
	"github.com/careloop/outreach-api/internal/repository"
)

type Service struct {
	repo repository.AuditRepository
}

func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo}
}

// Record writes one audit entry. Failures are logged and swallowed so an
// audit sink outage never rolls back the operation being audited.
func (s *Service) Record(ctx context.Context, orgID, actorID uuid.UUID, action, resourceType string, resourceID uuid.UUID, metadata interface{}) {
	var raw json.RawMessage
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			log.Error().Err(err).Str("action", action).Msg("failed to marshal audit metadata")
		} else {
			raw = b
		}
	}

	entry := &model.AuditLog{
		OrganizationID: orgID,
		ActorID:        actorID,
		Action:         action,
		ResourceType:   resourceType,
		ResourceID:     resourceID,
		Metadata:       raw,
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		log.Error().
			Err(err).
			Str("action", action).
			Str("resource_type", resourceType).
			Str("resource_id", resourceID.String()).
			Msg("failed to write audit log")
	}
}

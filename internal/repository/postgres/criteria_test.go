package postgres

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/outreach-api/internal/model"
)

func intPtr(v int) *int { return &v }

func TestBuildCriteriaQueryBase(t *testing.T) {
	orgID := uuid.New()
	campaignID := uuid.New()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	query, args := buildCriteriaQuery(orgID, campaignID, nil, now)

	assert.Contains(t, query, "FROM patients p")
	assert.Contains(t, query, "p.organization_id = $1")
	assert.Contains(t, query, "NOT EXISTS")
	assert.Contains(t, query, "rp.campaign_id = $3")
	assert.Contains(t, query, "LIMIT $7")

	require.Len(t, args, 7)
	assert.Equal(t, orgID, args[0])
	assert.Equal(t, model.PatientStatusActive, args[1])
	assert.Equal(t, campaignID, args[2])
	assert.Equal(t, identifyResultCap, args[6])
}

func TestBuildCriteriaQueryLastVisitRecency(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	criteria := &model.TargetCriteria{
		LastVisitDays: &model.IntRange{Min: intPtr(365)},
	}

	query, args := buildCriteriaQuery(uuid.New(), uuid.New(), criteria, now)

	assert.Contains(t, query, "MAX(a.start_time)")
	assert.Contains(t, query, "a.status = 'completed'")
	assert.Contains(t, query, "p.created_at")
	assert.Contains(t, query, "<= $7")

	// Min 365 means the last visit was at least a year before now.
	require.Len(t, args, 8)
	assert.Equal(t, now.AddDate(0, 0, -365), args[6])
}

func TestBuildCriteriaQueryAgeRange(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	criteria := &model.TargetCriteria{
		AgeRange: &model.IntRange{Min: intPtr(40), Max: intPtr(65)},
	}

	query, args := buildCriteriaQuery(uuid.New(), uuid.New(), criteria, now)

	assert.Contains(t, query, "p.date_of_birth <= $7")
	assert.Contains(t, query, "p.date_of_birth > $8")

	require.Len(t, args, 9)
	assert.Equal(t, now.AddDate(-40, 0, 0), args[6])
	assert.Equal(t, now.AddDate(-66, 0, 0), args[7])
}

func TestBuildCriteriaQueryCombinesFiltersWithAnd(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	criteria := &model.TargetCriteria{
		LastVisitDays:         &model.IntRange{Min: intPtr(180)},
		DiagnosisCodePrefixes: []string{"L57", "D04"},
		RiskLevels:            []string{"high"},
	}

	query, args := buildCriteriaQuery(uuid.New(), uuid.New(), criteria, now)

	assert.Contains(t, query, "d.code LIKE $8")
	assert.Contains(t, query, "d.code LIKE $9")
	assert.Contains(t, query, "p.risk_level = ANY($10)")
	assert.Contains(t, query, "LIMIT $11")

	require.Len(t, args, 11)
	assert.Equal(t, "L57%", args[7])
	assert.Equal(t, "D04%", args[8])
}

func TestBuildCriteriaQueryNeverInterpolatesValues(t *testing.T) {
	now := time.Now()
	hostile := "'; DROP TABLE patients; --"
	criteria := &model.TargetCriteria{
		DiagnosisCodePrefixes: []string{hostile},
		ProcedureCodes:        []string{hostile},
		RiskLevels:            []string{hostile},
	}

	query, args := buildCriteriaQuery(uuid.New(), uuid.New(), criteria, now)

	// Hostile strings travel only inside bound parameters.
	assert.NotContains(t, query, "DROP TABLE")
	found := 0
	for _, arg := range args {
		if s, ok := arg.(string); ok && strings.Contains(s, "DROP TABLE") {
			found++
		}
	}
	assert.Equal(t, 1, found, "prefix should be bound as a single string arg")

	// Placeholders are numbered contiguously.
	for i := 1; i <= len(args); i++ {
		assert.Contains(t, query, fmt.Sprintf("$%d", i))
	}
}

func TestBuildCriteriaQueryProcedureLookbackDefault(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	criteria := &model.TargetCriteria{
		ProcedureCodes: []string{"17110"},
	}

	query, args := buildCriteriaQuery(uuid.New(), uuid.New(), criteria, now)

	assert.Contains(t, query, "pr.code = ANY($7)")
	assert.Contains(t, query, "pr.performed_at >= $8")
	require.Len(t, args, 9)
	assert.Equal(t, now.AddDate(0, 0, -defaultProcedureLookbackDays), args[7])
}

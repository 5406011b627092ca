package postgres

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/careloop/outreach-api/internal/model"
)

const (
	defaultProcedureLookbackDays = 365
	identifyResultCap            = 1000
)

// buildCriteriaQuery compiles a campaign's criteria tree into one
// parameterized query over the patient population. Every filter is an
// independent AND-combined fragment and every value is a bound parameter;
// no caller-supplied text is ever concatenated into the SQL.
//
// The base query always excludes inactive patients and patients already
// active in this campaign, and caps the result set to bound a single
// identification run.
func buildCriteriaQuery(orgID, campaignID uuid.UUID, c *model.TargetCriteria, now time.Time) (string, []interface{}) {
	var b strings.Builder
	b.WriteString(`
		SELECT p.id, p.organization_id, p.first_name, p.last_name, p.email,
			   p.phone, p.date_of_birth, p.risk_level, p.status,
			   p.created_at, p.updated_at
		FROM patients p
		WHERE p.organization_id = $1
		AND p.status = $2
		AND NOT EXISTS (
			SELECT 1 FROM recall_patients rp
			WHERE rp.patient_id = p.id
			AND rp.campaign_id = $3
			AND rp.status IN ($4, $5, $6)
		)`)
	args := []interface{}{
		orgID,
		model.PatientStatusActive,
		campaignID,
		model.RecallStatusPending,
		model.RecallStatusContacted,
		model.RecallStatusScheduled,
	}

	next := func() int { return len(args) + 1 }

	if c != nil {
		// Recency of the last completed visit, falling back to the patient
		// record's creation date when no visit exists.
		if r := c.LastVisitDays; r != nil {
			lastVisit := `COALESCE(
				(SELECT MAX(a.start_time) FROM appointments a
				 WHERE a.patient_id = p.id AND a.status = 'completed'),
				p.created_at)`
			if r.Min != nil {
				fmt.Fprintf(&b, "\n\t\tAND %s <= $%d", lastVisit, next())
				args = append(args, now.AddDate(0, 0, -*r.Min))
			}
			if r.Max != nil {
				fmt.Fprintf(&b, "\n\t\tAND %s >= $%d", lastVisit, next())
				args = append(args, now.AddDate(0, 0, -*r.Max))
			}
		}

		if len(c.DiagnosisCodePrefixes) > 0 {
			var ors []string
			for _, prefix := range c.DiagnosisCodePrefixes {
				ors = append(ors, fmt.Sprintf("d.code LIKE $%d", next()))
				args = append(args, prefix+"%")
			}
			fmt.Fprintf(&b, `
		AND EXISTS (
			SELECT 1 FROM patient_diagnoses d
			WHERE d.patient_id = p.id AND (%s)
		)`, strings.Join(ors, " OR "))
		}

		if len(c.ProcedureCodes) > 0 {
			lookback := defaultProcedureLookbackDays
			if c.ProcedureLookbackDays != nil {
				lookback = *c.ProcedureLookbackDays
			}
			fmt.Fprintf(&b, `
		AND EXISTS (
			SELECT 1 FROM patient_procedures pr
			WHERE pr.patient_id = p.id
			AND pr.code = ANY($%d)
			AND pr.performed_at >= $%d
		)`, next(), next()+1)
			args = append(args, pq.Array(c.ProcedureCodes), now.AddDate(0, 0, -lookback))
		}

		if r := c.AgeRange; r != nil {
			if r.Min != nil {
				fmt.Fprintf(&b, "\n\t\tAND p.date_of_birth <= $%d", next())
				args = append(args, now.AddDate(-*r.Min, 0, 0))
			}
			if r.Max != nil {
				// Younger than max+1: born after the (max+1)th birthday cutoff.
				fmt.Fprintf(&b, "\n\t\tAND p.date_of_birth > $%d", next())
				args = append(args, now.AddDate(-(*r.Max+1), 0, 0))
			}
		}

		if len(c.RiskLevels) > 0 {
			fmt.Fprintf(&b, "\n\t\tAND p.risk_level = ANY($%d)", next())
			args = append(args, pq.Array(c.RiskLevels))
		}

		if r := c.LabDueDays; r != nil {
			var conds []string
			if r.Min != nil {
				conds = append(conds, fmt.Sprintf("l.next_due_at >= $%d", next()))
				args = append(args, now.AddDate(0, 0, *r.Min))
			}
			if r.Max != nil {
				conds = append(conds, fmt.Sprintf("l.next_due_at <= $%d", next()))
				args = append(args, now.AddDate(0, 0, *r.Max))
			}
			if len(conds) > 0 {
				fmt.Fprintf(&b, `
		AND EXISTS (
			SELECT 1 FROM patient_labs l
			WHERE l.patient_id = p.id AND %s
		)`, strings.Join(conds, " AND "))
			}
		}

		if r := c.PrescriptionExpiryDays; r != nil {
			var conds []string
			if r.Min != nil {
				conds = append(conds, fmt.Sprintf("rx.expires_at >= $%d", next()))
				args = append(args, now.AddDate(0, 0, *r.Min))
			}
			if r.Max != nil {
				conds = append(conds, fmt.Sprintf("rx.expires_at <= $%d", next()))
				args = append(args, now.AddDate(0, 0, *r.Max))
			}
			if len(conds) > 0 {
				fmt.Fprintf(&b, `
		AND EXISTS (
			SELECT 1 FROM prescriptions rx
			WHERE rx.patient_id = p.id AND %s
		)`, strings.Join(conds, " AND "))
			}
		}
	}

	fmt.Fprintf(&b, "\n\t\tORDER BY p.created_at ASC\n\t\tLIMIT $%d", next())
	args = append(args, identifyResultCap)

	return b.String(), args
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/careloop/outreach-api/internal/model"
	apperrors "github.com/careloop/outreach-api/pkg/errors"
)

const waitlistEntryColumns = `
	id, organization_id, patient_id, provider_id, appointment_type_id,
	location_id, preferred_dates, time_of_day, preferred_weekdays,
	flexibility_days, priority, reason, notes, status, appointment_id,
	created_at, updated_at
`

const notificationColumns = `
	id, organization_id, waitlist_entry_id, provider_id, location_id,
	appointment_type_id, slot_start, slot_end, offered_at, expires_at,
	response, responded_at, channel, created_at, updated_at
`

func (r *waitlistRepository) CreateEntry(ctx context.Context, entry *model.WaitlistEntry) error {
	query := `
		INSERT INTO waitlist_entries (
			id, organization_id, patient_id, provider_id, appointment_type_id,
			location_id, preferred_dates, time_of_day, preferred_weekdays,
			flexibility_days, priority, reason, notes, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	entry.UpdatedAt = entry.CreatedAt
	entry.Status = model.WaitlistStatusActive

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.OrganizationID,
		entry.PatientID,
		entry.ProviderID,
		entry.AppointmentTypeID,
		entry.LocationID,
		entry.PreferredDates,
		entry.TimeOfDay,
		entry.PreferredWeekdays,
		entry.FlexibilityDays,
		entry.Priority,
		entry.Reason,
		entry.Notes,
		entry.Status,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create waitlist entry: %w", err)
	}
	return nil
}

func (r *waitlistRepository) GetEntry(ctx context.Context, orgID, id uuid.UUID) (*model.WaitlistEntry, error) {
	query := `
		SELECT ` + waitlistEntryColumns + `
		FROM waitlist_entries
		WHERE id = $1 AND organization_id = $2
	`
	var entry model.WaitlistEntry
	err := r.db.GetContext(ctx, &entry, query, id, orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("waitlist entry", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist entry: %w", err)
	}
	return &entry, nil
}

func (r *waitlistRepository) ListEntries(ctx context.Context, orgID uuid.UUID, filters *model.WaitlistEntryFilters) ([]*model.WaitlistEntry, error) {
	query := `
		SELECT ` + waitlistEntryColumns + `
		FROM waitlist_entries
		WHERE organization_id = $1
	`
	args := []interface{}{orgID}
	argCount := 2

	if filters != nil {
		if filters.Status != "" {
			query += fmt.Sprintf(" AND status = $%d", argCount)
			args = append(args, filters.Status)
			argCount++
		}
		if filters.PatientID != uuid.Nil {
			query += fmt.Sprintf(" AND patient_id = $%d", argCount)
			args = append(args, filters.PatientID)
			argCount++
		}
		if filters.ProviderID != uuid.Nil {
			query += fmt.Sprintf(" AND provider_id = $%d", argCount)
			args = append(args, filters.ProviderID)
			argCount++
		}
		if filters.Priority != "" {
			query += fmt.Sprintf(" AND priority = $%d", argCount)
			args = append(args, filters.Priority)
			argCount++
		}
	}

	query += " ORDER BY created_at ASC"

	var entries []*model.WaitlistEntry
	err := r.db.SelectContext(ctx, &entries, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list waitlist entries: %w", err)
	}
	return entries, nil
}

func (r *waitlistRepository) CancelEntry(ctx context.Context, orgID, id uuid.UUID) error {
	query := `
		UPDATE waitlist_entries
		SET status = $1, updated_at = $2
		WHERE id = $3 AND organization_id = $4
		AND status NOT IN ($5, $6)
	`
	result, err := r.db.ExecContext(ctx, query,
		model.WaitlistStatusCancelled,
		time.Now(),
		id,
		orgID,
		model.WaitlistStatusScheduled,
		model.WaitlistStatusCancelled,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel waitlist entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := r.GetEntry(ctx, orgID, id); err != nil {
			return err
		}
		return apperrors.NewConflict("waitlist entry is already terminal", nil)
	}
	return nil
}

func (r *waitlistRepository) FindCandidates(ctx context.Context, orgID uuid.UUID, slot *model.AvailableSlot, now time.Time) ([]*model.WaitlistEntry, error) {
	// Provider and type mismatches never reach scoring; location mismatch
	// does, and is penalized there instead.
	query := `
		SELECT ` + waitlistEntryColumns + `
		FROM waitlist_entries e
		WHERE e.organization_id = $1
		AND e.status = $2
		AND (e.provider_id IS NULL OR e.provider_id = $3)
		AND (e.appointment_type_id IS NULL OR e.appointment_type_id = $4)
		AND NOT EXISTS (
			SELECT 1 FROM waitlist_notifications n
			WHERE n.waitlist_entry_id = e.id
			AND n.response = $5
			AND n.expires_at > $6
		)
		ORDER BY e.created_at ASC
	`
	var entries []*model.WaitlistEntry
	err := r.db.SelectContext(ctx, &entries, query,
		orgID,
		model.WaitlistStatusActive,
		slot.ProviderID,
		slot.AppointmentTypeID,
		model.NotificationResponsePending,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find waitlist candidates: %w", err)
	}
	return entries, nil
}

func (r *waitlistRepository) OfferSlot(ctx context.Context, n *model.WaitlistNotification) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var status model.WaitlistStatus
		err := tx.GetContext(ctx, &status, `
			SELECT status FROM waitlist_entries
			WHERE id = $1 AND organization_id = $2
			FOR UPDATE
		`, n.WaitlistEntryID, n.OrganizationID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NewNotFound("waitlist entry", err)
		}
		if err != nil {
			return fmt.Errorf("failed to lock waitlist entry: %w", err)
		}

		if status != model.WaitlistStatusActive {
			return apperrors.NewConflict(fmt.Sprintf("waitlist entry is %s, not active", status), nil)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO waitlist_notifications (
				id, organization_id, waitlist_entry_id, provider_id, location_id,
				appointment_type_id, slot_start, slot_end, offered_at, expires_at,
				response, channel, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`,
			n.ID,
			n.OrganizationID,
			n.WaitlistEntryID,
			n.ProviderID,
			n.LocationID,
			n.AppointmentTypeID,
			n.SlotStart,
			n.SlotEnd,
			n.OfferedAt,
			n.ExpiresAt,
			n.Response,
			n.Channel,
			n.CreatedAt,
			n.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create notification: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE waitlist_entries SET status = $1, updated_at = $2 WHERE id = $3
		`, model.WaitlistStatusNotified, time.Now(), n.WaitlistEntryID)
		if err != nil {
			return fmt.Errorf("failed to mark entry notified: %w", err)
		}
		return nil
	})
}

func (r *waitlistRepository) GetNotification(ctx context.Context, orgID, id uuid.UUID) (*model.WaitlistNotification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM waitlist_notifications
		WHERE id = $1 AND organization_id = $2
	`
	var n model.WaitlistNotification
	err := r.db.GetContext(ctx, &n, query, id, orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("waitlist notification", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &n, nil
}

// lockedNotification carries the joined notification+entry row read under
// the row lock inside ResolveNotification.
type lockedNotification struct {
	NotificationID    uuid.UUID                  `db:"notification_id"`
	EntryID           uuid.UUID                  `db:"entry_id"`
	Response          model.NotificationResponse `db:"response"`
	ExpiresAt         time.Time                  `db:"expires_at"`
	ProviderID        uuid.UUID                  `db:"provider_id"`
	LocationID        uuid.UUID                  `db:"location_id"`
	AppointmentTypeID uuid.UUID                  `db:"appointment_type_id"`
	SlotStart         time.Time                  `db:"slot_start"`
	SlotEnd           time.Time                  `db:"slot_end"`
	PatientID         uuid.UUID                  `db:"patient_id"`
	EntryStatus       model.WaitlistStatus       `db:"entry_status"`
}

func (r *waitlistRepository) ResolveNotification(ctx context.Context, orgID, notificationID uuid.UUID, accepted bool, now time.Time) (*model.ResolveOutcome, error) {
	var outcome *model.ResolveOutcome

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var locked lockedNotification
		err := tx.GetContext(ctx, &locked, `
			SELECT n.id AS notification_id, n.waitlist_entry_id AS entry_id,
				   n.response, n.expires_at, n.provider_id, n.location_id,
				   n.appointment_type_id, n.slot_start, n.slot_end,
				   e.patient_id, e.status AS entry_status
			FROM waitlist_notifications n
			JOIN waitlist_entries e ON e.id = n.waitlist_entry_id
			WHERE n.id = $1 AND n.organization_id = $2
			FOR UPDATE OF n, e
		`, notificationID, orgID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NewNotFound("waitlist notification", err)
		}
		if err != nil {
			return fmt.Errorf("failed to lock notification: %w", err)
		}

		if locked.Response != model.NotificationResponsePending {
			return apperrors.NewConflict(fmt.Sprintf("notification already %s", locked.Response), nil)
		}

		// A lapsed deadline is a defined outcome, not a failure. Finalize
		// the expiry durably and return the entry to the pool.
		if locked.ExpiresAt.Before(now) {
			if err := setNotificationResponse(ctx, tx, locked.NotificationID, model.NotificationResponseExpired, nil, now); err != nil {
				return err
			}
			if err := returnEntryToPool(ctx, tx, locked.EntryID, now); err != nil {
				return err
			}
			outcome = &model.ResolveOutcome{
				Outcome: model.NotificationResponseExpired,
				Message: "offer expired",
			}
			return nil
		}

		if !accepted {
			if err := setNotificationResponse(ctx, tx, locked.NotificationID, model.NotificationResponseDeclined, &now, now); err != nil {
				return err
			}
			if err := returnEntryToPool(ctx, tx, locked.EntryID, now); err != nil {
				return err
			}
			outcome = &model.ResolveOutcome{
				Outcome: model.NotificationResponseDeclined,
				Message: "offer declined, entry returned to waitlist",
			}
			return nil
		}

		// Accept requires the entry to still be held in notified. An entry
		// cancelled while its offer was pending must stay terminal.
		if locked.EntryStatus != model.WaitlistStatusNotified {
			return apperrors.NewConflict(fmt.Sprintf("waitlist entry is %s", locked.EntryStatus), nil)
		}

		// Accept: book the snapshotted slot and terminate the entry. The
		// row locks serialize concurrent accepts, so at most one
		// appointment is ever created for a notification.
		appt := &model.Appointment{
			Base: model.Base{
				ID:        uuid.New(),
				CreatedAt: now,
				UpdatedAt: now,
			},
			OrganizationID:    orgID,
			PatientID:         locked.PatientID,
			ProviderID:        locked.ProviderID,
			LocationID:        locked.LocationID,
			AppointmentTypeID: locked.AppointmentTypeID,
			StartTime:         locked.SlotStart,
			EndTime:           locked.SlotEnd,
			Status:            model.AppointmentStatusScheduled,
			Notes:             "booked from waitlist offer",
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO appointments (
				id, organization_id, patient_id, provider_id, location_id,
				appointment_type_id, start_time, end_time, status, notes,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`,
			appt.ID, appt.OrganizationID, appt.PatientID, appt.ProviderID,
			appt.LocationID, appt.AppointmentTypeID, appt.StartTime,
			appt.EndTime, appt.Status, appt.Notes, appt.CreatedAt, appt.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create appointment: %w", err)
		}

		if err := setNotificationResponse(ctx, tx, locked.NotificationID, model.NotificationResponseAccepted, &now, now); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE waitlist_entries
			SET status = $1, appointment_id = $2, updated_at = $3
			WHERE id = $4
		`, model.WaitlistStatusScheduled, appt.ID, now, locked.EntryID)
		if err != nil {
			return fmt.Errorf("failed to schedule entry: %w", err)
		}

		outcome = &model.ResolveOutcome{
			Outcome:     model.NotificationResponseAccepted,
			Message:     "offer accepted, appointment booked",
			Appointment: appt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func setNotificationResponse(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, response model.NotificationResponse, respondedAt *time.Time, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE waitlist_notifications
		SET response = $1, responded_at = $2, updated_at = $3
		WHERE id = $4
	`, response, respondedAt, now, id)
	if err != nil {
		return fmt.Errorf("failed to update notification response: %w", err)
	}
	return nil
}

func returnEntryToPool(ctx context.Context, tx *sqlx.Tx, entryID uuid.UUID, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE waitlist_entries
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, model.WaitlistStatusActive, now, entryID, model.WaitlistStatusNotified)
	if err != nil {
		return fmt.Errorf("failed to return entry to pool: %w", err)
	}
	return nil
}

func (r *waitlistRepository) ExpireNotifications(ctx context.Context, orgID *uuid.UUID, now time.Time) (int64, error) {
	var expired int64

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE waitlist_notifications
			SET response = $1, updated_at = $2
			WHERE response = $3 AND expires_at <= $4
		`
		args := []interface{}{
			model.NotificationResponseExpired,
			now,
			model.NotificationResponsePending,
			now,
		}
		if orgID != nil {
			query += " AND organization_id = $5"
			args = append(args, *orgID)
		}
		query += " RETURNING waitlist_entry_id"

		var entryIDs []uuid.UUID
		if err := tx.SelectContext(ctx, &entryIDs, query, args...); err != nil {
			return fmt.Errorf("failed to expire notifications: %w", err)
		}
		expired = int64(len(entryIDs))
		if len(entryIDs) == 0 {
			return nil
		}

		_, err := tx.ExecContext(ctx, `
			UPDATE waitlist_entries
			SET status = $1, updated_at = $2
			WHERE id = ANY($3) AND status = $4
		`, model.WaitlistStatusActive, now, pq.Array(entryIDs), model.WaitlistStatusNotified)
		if err != nil {
			return fmt.Errorf("failed to return expired entries to pool: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return expired, nil
}

func (r *waitlistRepository) EntryStats(ctx context.Context, orgID uuid.UUID, now time.Time) (*model.WaitlistStats, error) {
	stats := &model.WaitlistStats{
		StatusCounts: make(map[model.WaitlistStatus]int),
	}

	rows := []struct {
		Status model.WaitlistStatus `db:"status"`
		Count  int                  `db:"count"`
	}{}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT status, COUNT(*) AS count
		FROM waitlist_entries
		WHERE organization_id = $1
		GROUP BY status
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to count waitlist entries: %w", err)
	}
	for _, row := range rows {
		stats.StatusCounts[row.Status] = row.Count
	}

	err = r.db.GetContext(ctx, &stats.AverageWait, `
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM ($1::timestamptz - created_at)) / 86400), 0)
		FROM waitlist_entries
		WHERE organization_id = $2 AND status = $3
	`, now, orgID, model.WaitlistStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to compute average wait: %w", err)
	}

	err = r.db.GetContext(ctx, &stats.UrgentActive, `
		SELECT COUNT(*)
		FROM waitlist_entries
		WHERE organization_id = $1 AND status = $2 AND priority = $3
	`, orgID, model.WaitlistStatusActive, model.WaitlistPriorityUrgent)
	if err != nil {
		return nil, fmt.Errorf("failed to count urgent entries: %w", err)
	}

	return stats, nil
}

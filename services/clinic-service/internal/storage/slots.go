package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/model"
)

const slotColumns = `s.id, s.clinic_id, s.date, s.start_time, s.end_time, s.is_available, COALESCE(s.booking_id, '')`

// CreateSlots inserts entries for clinicID and returns how many rows were new.
// Entries that already exist for the clinic are skipped.
func (r *Repository) CreateSlots(ctx context.Context, clinicID string, entries []model.SlotEntry) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM clinics WHERE id = $1)`, clinicID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("clinic %s: %w", clinicID, model.ErrNotFound)
	}

	created := 0
	for _, e := range entries {
		tag, err := tx.Exec(ctx, `
			INSERT INTO time_slots (id, clinic_id, date, start_time, end_time, is_available)
			VALUES ($1, $2, $3, $4, $5, true)
			ON CONFLICT (clinic_id, date, start_time, end_time) DO NOTHING
		`, uuid.NewString(), clinicID, e.Date, e.StartTime, e.EndTime)
		if err != nil {
			return 0, err
		}
		created += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return created, nil
}

// ListAvailable returns available slots for clinicID ordered by date then start
// time. With day set only that calendar day is returned, otherwise every slot
// from today onward.
func (r *Repository) ListAvailable(ctx context.Context, clinicID string, day *time.Time) ([]model.TimeSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM time_slots s
		WHERE s.clinic_id = $1 AND s.is_available AND s.date >= $2`
	from := model.Day(r.now())
	args := []any{clinicID, from}
	if day != nil {
		query = `SELECT ` + slotColumns + ` FROM time_slots s
			WHERE s.clinic_id = $1 AND s.is_available AND s.date = $2`
		args = []any{clinicID, model.Day(*day)}
	}
	query += ` ORDER BY s.date ASC, s.start_time ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []model.TimeSlot
	for rows.Next() {
		var s model.TimeSlot
		if err := rows.Scan(&s.ID, &s.ClinicID, &s.Date, &s.StartTime, &s.EndTime, &s.IsAvailable, &s.BookingID); err != nil {
			return nil, err
		}
		s.Date = model.Day(s.Date)
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// GetSlot returns the slot together with its clinic.
func (r *Repository) GetSlot(ctx context.Context, slotID string) (model.SlotDetail, error) {
	var d model.SlotDetail
	s := &d.Slot
	c := &d.Clinic
	err := r.db.QueryRow(ctx, `SELECT `+slotColumns+`, `+clinicColumns+`
		FROM time_slots s JOIN clinics c ON c.id = s.clinic_id
		WHERE s.id = $1`, slotID).Scan(
		&s.ID, &s.ClinicID, &s.Date, &s.StartTime, &s.EndTime, &s.IsAvailable, &s.BookingID,
		&c.ID, &c.Name, &c.Address, &c.Latitude, &c.Longitude, &c.PhoneNumber, &c.Email,
		&c.WalkInStart, &c.WalkInEnd, &c.PhotoURL, &c.ExternalPlaceID, &c.IsSearchable, &c.OwnerUserID, &c.CreatedAt,
	)
	if IsNotFound(err) {
		return model.SlotDetail{}, fmt.Errorf("time slot %s: %w", slotID, model.ErrNotFound)
	}
	if err != nil {
		return model.SlotDetail{}, err
	}
	s.Date = model.Day(s.Date)
	return d, nil
}

// TryClaim flips is_available from true to false in a single conditional
// update. It reports true only for the caller whose update matched the row.
func (r *Repository) TryClaim(ctx context.Context, slotID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE time_slots SET is_available = false, updated_at = now()
		WHERE id = $1 AND is_available = true
	`, slotID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseClaim makes a claimed slot available again. Slots already linked to a
// booking are left untouched.
func (r *Repository) ReleaseClaim(ctx context.Context, slotID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE time_slots SET is_available = true, updated_at = now()
		WHERE id = $1 AND booking_id IS NULL
	`, slotID)
	return err
}

func linkSlot(ctx context.Context, tx pgx.Tx, slotID, bookingID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE time_slots SET booking_id = $2, updated_at = now()
		WHERE id = $1 AND is_available = false AND booking_id IS NULL
	`, slotID, bookingID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("link slot %s: %w", slotID, model.ErrConflict)
	}
	return nil
}

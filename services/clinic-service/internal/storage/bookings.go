package storage

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/model"
)

// CreateBooking inserts b and links it from its claimed slot in one
// transaction. The slot must already be claimed.
func (r *Repository) CreateBooking(ctx context.Context, b *model.Booking) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (id, user_id, clinic_id, time_slot_id, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, b.ID, b.UserID, b.ClinicID, b.TimeSlotID, string(b.Status), b.Notes).Scan(&b.CreatedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("booking references: %w", model.ErrNotFound)
		}
		if IsUniqueViolation(err) {
			return fmt.Errorf("booking for slot %s: %w", b.TimeSlotID, model.ErrConflict)
		}
		return err
	}
	if err := linkSlot(ctx, tx, b.TimeSlotID, b.ID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	var b model.Booking
	var status string
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, clinic_id, time_slot_id, status, notes, created_at
		FROM bookings WHERE id = $1
	`, id).Scan(&b.ID, &b.UserID, &b.ClinicID, &b.TimeSlotID, &status, &b.Notes, &b.CreatedAt)
	if IsNotFound(err) {
		return model.Booking{}, fmt.Errorf("booking %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.Booking{}, err
	}
	b.Status = model.BookingStatus(status)
	return b, nil
}

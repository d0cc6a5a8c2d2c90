package storage

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/geo"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/model"
)

const clinicColumns = `c.id, c.name, c.address, c.latitude, c.longitude,
	COALESCE(c.phone_number, ''), COALESCE(c.email, ''),
	COALESCE(c.walk_in_start, ''), COALESCE(c.walk_in_end, ''),
	COALESCE(c.photo_url, ''), COALESCE(c.external_place_id, ''),
	c.is_searchable, c.owner_user_id, c.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClinic(row rowScanner) (model.Clinic, error) {
	var c model.Clinic
	err := row.Scan(&c.ID, &c.Name, &c.Address, &c.Latitude, &c.Longitude, &c.PhoneNumber, &c.Email,
		&c.WalkInStart, &c.WalkInEnd, &c.PhotoURL, &c.ExternalPlaceID, &c.IsSearchable, &c.OwnerUserID, &c.CreatedAt)
	return c, err
}

func (r *Repository) GetClinic(ctx context.Context, id string) (model.Clinic, error) {
	c, err := scanClinic(r.db.QueryRow(ctx, `SELECT `+clinicColumns+` FROM clinics c WHERE c.id = $1`, id))
	if IsNotFound(err) {
		return model.Clinic{}, fmt.Errorf("clinic %s: %w", id, model.ErrNotFound)
	}
	return c, err
}

// SearchableClinicsInBox returns searchable clinics whose coordinates fall
// inside box.
func (r *Repository) SearchableClinicsInBox(ctx context.Context, box geo.Box) ([]model.Clinic, error) {
	rows, err := r.db.Query(ctx, `SELECT `+clinicColumns+` FROM clinics c
		WHERE c.is_searchable
		  AND c.latitude BETWEEN $1 AND $2
		  AND c.longitude BETWEEN $3 AND $4`,
		box.MinLat, box.MaxLat, box.MinLng, box.MaxLng)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Clinic
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertClinic inserts c, keeping an existing row with the same id unchanged.
// It reports whether a row was inserted.
func (r *Repository) UpsertClinic(ctx context.Context, c model.Clinic) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO clinics (id, name, address, latitude, longitude, phone_number, email,
			walk_in_start, walk_in_end, photo_url, external_place_id, is_searchable, owner_user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`, c.ID, c.Name, c.Address, c.Latitude, c.Longitude, nullable(c.PhoneNumber), nullable(c.Email),
		nullable(c.WalkInStart), nullable(c.WalkInEnd), nullable(c.PhotoURL), nullable(c.ExternalPlaceID),
		c.IsSearchable, c.OwnerUserID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

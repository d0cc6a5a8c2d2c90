package storage

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/model"
)

func (r *Repository) CreateUser(ctx context.Context, u *model.User) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (id, email, name, role, is_guest)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, u.ID, u.Email, u.Name, string(u.Role), u.IsGuest).Scan(&u.CreatedAt)
	if IsUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", u.Email, model.ErrConflict)
	}
	return err
}

// EnsureUser returns the id of the user with u.Email, creating it if needed.
func (r *Repository) EnsureUser(ctx context.Context, u model.User) (string, error) {
	var id string
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (id, email, name, role, is_guest)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id
	`, u.ID, u.Email, u.Name, string(u.Role), u.IsGuest).Scan(&id)
	return id, err
}

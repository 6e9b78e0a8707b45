package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/segyhp/installment-engine/internal/domain"
	customError "github.com/segyhp/installment-engine/pkg/errors"
)

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	query := `
		SELECT id, name, email, phone, role, created_at
		FROM users
		WHERE id = $1
	`

	var user domain.User
	err := r.db.GetContext(ctx, &user, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapUserNotFound(userID.String())
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// EnsureGuest relies on the partial unique index users_guest_lower_email_idx,
// so an address differing only in case reuses the same guest
func (r *userRepository) EnsureGuest(ctx context.Context, contact domain.GuestContact) (*domain.User, error) {
	query := `
		INSERT INTO users (id, name, email, phone, role, created_at)
		VALUES ($1, $2, $3, $4, 'guest', $5)
		ON CONFLICT ((lower(email))) WHERE role = 'guest'
		DO UPDATE SET phone = COALESCE(NULLIF(EXCLUDED.phone, ''), users.phone),
		              name = COALESCE(NULLIF(EXCLUDED.name, ''), users.name)
		RETURNING id, name, email, phone, role, created_at
	`

	var user domain.User
	err := r.db.GetContext(ctx, &user, query,
		uuid.New(),
		contact.Name,
		contact.Email,
		contact.Phone,
		time.Now().UTC(),
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

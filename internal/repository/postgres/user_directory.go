package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"annotext/internal/domain"
	"annotext/internal/port"
)

type userDirectory struct {
	db *sqlx.DB
}

// NewUserDirectory creates a PostgreSQL-backed UserDirectory over the users table.
func NewUserDirectory(db *sqlx.DB) port.UserDirectory {
	return &userDirectory{db: db}
}

func (r *userDirectory) ContactFor(ctx context.Context, userID uuid.UUID) (string, string, error) {
	var contact struct {
		Email    string `db:"email"`
		FullName string `db:"full_name"`
	}
	err := r.db.GetContext(ctx, &contact,
		"SELECT email, full_name FROM users WHERE id = $1 AND is_active = TRUE", userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
		}
		return "", "", fmt.Errorf("userDirectory.ContactFor: %w", err)
	}
	return contact.Email, contact.FullName, nil
}

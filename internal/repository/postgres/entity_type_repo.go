package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"annotext/internal/port"
)

type entityTypeRepo struct {
	db *sqlx.DB
}

// NewEntityTypeRepo creates a new PostgreSQL-backed EntityTypeRepository.
func NewEntityTypeRepo(db *sqlx.DB) port.EntityTypeRepository {
	return &entityTypeRepo{db: db}
}

func (r *entityTypeRepo) ListActiveNames(ctx context.Context) ([]string, error) {
	var names []string
	err := r.db.SelectContext(ctx, &names,
		"SELECT name FROM entity_types WHERE is_active = TRUE ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("entityTypeRepo.ListActiveNames: %w", err)
	}
	return names, nil
}

// displayName turns DESIGNATION into Designation.
func displayName(name string) string {
	parts := strings.Fields(strings.ReplaceAll(strings.ToLower(name), "_", " "))
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"annotext/internal/domain"
	"annotext/internal/port"
)

type statsRepo struct {
	db *sqlx.DB
}

// NewStatsRepo creates a new PostgreSQL-backed StatsRepository.
func NewStatsRepo(db *sqlx.DB) port.StatsRepository {
	return &statsRepo{db: db}
}

const entityStatsQuery = `SELECT
	COUNT(*) AS total,
	COUNT(*) FILTER (WHERE is_verified) AS verified,
	COUNT(*) FILTER (WHERE NOT is_verified) AS unverified
FROM entities WHERE is_deleted = FALSE`

type statusCount struct {
	Key   string `db:"key"`
	Count int    `db:"count"`
}

func (r *statsRepo) GetProcessingStats(ctx context.Context) (*domain.ProcessingStats, error) {
	stats := domain.ProcessingStats{
		JobsByStatus:   map[domain.JobStatus]int{},
		EntitiesByType: map[string]int{},
	}

	var byStatus []statusCount
	if err := r.db.SelectContext(ctx, &byStatus,
		`SELECT status AS key, COUNT(*) AS count FROM processing_jobs
		 WHERE deleted_at IS NULL GROUP BY status`); err != nil {
		return nil, fmt.Errorf("statsRepo.GetProcessingStats jobs: %w", err)
	}
	for _, s := range byStatus {
		stats.JobsByStatus[domain.JobStatus(s.Key)] = s.Count
		stats.TotalJobs += s.Count
	}

	var counts domain.EntityCounts
	if err := r.db.GetContext(ctx, &counts, entityStatsQuery); err != nil {
		return nil, fmt.Errorf("statsRepo.GetProcessingStats entities: %w", err)
	}
	stats.TotalEntities = counts.Total
	stats.VerifiedEntities = counts.Verified
	stats.UnverifiedEntities = counts.Unverified

	var byType []statusCount
	if err := r.db.SelectContext(ctx, &byType,
		`SELECT entity_type AS key, COUNT(*) AS count FROM entities
		 WHERE is_deleted = FALSE GROUP BY entity_type`); err != nil {
		return nil, fmt.Errorf("statsRepo.GetProcessingStats types: %w", err)
	}
	for _, t := range byType {
		stats.EntitiesByType[t.Key] = t.Count
	}

	if err := r.db.GetContext(ctx, &stats.DocumentsProcessed,
		"SELECT COUNT(*) FROM documents WHERE processing_status = 'completed'"); err != nil {
		return nil, fmt.Errorf("statsRepo.GetProcessingStats documents: %w", err)
	}
	return &stats, nil
}

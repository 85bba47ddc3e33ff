package service

import (
	"context"

	"annotext/internal/domain"
	"annotext/internal/port"
	"annotext/internal/usage"
)

// UsageSource exposes the in-process usage counters.
type UsageSource interface {
	Snapshot() []usage.ModelUsage
}

// UsageReport combines persisted pipeline statistics with live model usage.
type UsageReport struct {
	Processing *domain.ProcessingStats `json:"processing"`
	Models     []usage.ModelUsage      `json:"models"`
}

// StatsService provides aggregate statistics.
type StatsService interface {
	GetProcessingStats(ctx context.Context) (*domain.ProcessingStats, error)
	GetUsageReport(ctx context.Context) (*UsageReport, error)
}

type statsService struct {
	statsRepo port.StatsRepository
	usage     UsageSource
}

// NewStatsService creates a new StatsService implementation.
func NewStatsService(statsRepo port.StatsRepository, usage UsageSource) StatsService {
	return &statsService{statsRepo: statsRepo, usage: usage}
}

func (s *statsService) GetProcessingStats(ctx context.Context) (*domain.ProcessingStats, error) {
	return s.statsRepo.GetProcessingStats(ctx)
}

func (s *statsService) GetUsageReport(ctx context.Context) (*UsageReport, error) {
	stats, err := s.statsRepo.GetProcessingStats(ctx)
	if err != nil {
		return nil, err
	}
	report := &UsageReport{Processing: stats, Models: []usage.ModelUsage{}}
	if s.usage != nil {
		if snap := s.usage.Snapshot(); snap != nil {
			report.Models = snap
		}
	}
	return report, nil
}

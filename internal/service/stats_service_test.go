package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"annotext/internal/domain"
	"annotext/internal/service"
	"annotext/internal/usage"
	"annotext/mocks"
)

func TestStatsService_GetProcessingStats(t *testing.T) {
	repo := new(mocks.MockStatsRepo)
	expected := &domain.ProcessingStats{TotalJobs: 12, TotalEntities: 40, VerifiedEntities: 10, UnverifiedEntities: 30}
	repo.On("GetProcessingStats", mock.Anything).Return(expected, nil)

	svc := service.NewStatsService(repo, nil)
	got, err := svc.GetProcessingStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, expected, got)
	repo.AssertExpectations(t)
}

func TestStatsService_GetUsageReport_IncludesTrackerSnapshot(t *testing.T) {
	repo := new(mocks.MockStatsRepo)
	repo.On("GetProcessingStats", mock.Anything).Return(&domain.ProcessingStats{TotalJobs: 1}, nil)

	models := new(mocks.MockLLMModelRepo)
	models.On("RecordUsage", mock.Anything, mock.Anything).Return(nil)
	tracker := usage.NewTracker(models, nil)
	modelID := uuid.New()
	tracker.Record(context.Background(), domain.UsageEvent{Kind: domain.UsageRequest, ModelID: modelID, Success: true, Tokens: 500})

	report, err := service.NewStatsService(repo, tracker).GetUsageReport(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Models, 1)
	assert.Equal(t, modelID, report.Models[0].ModelID)
	assert.Equal(t, int64(500), report.Models[0].TotalTokens)
	assert.Equal(t, 1, report.Processing.TotalJobs)
}

func TestStatsService_GetUsageReport_EmptyTracker(t *testing.T) {
	repo := new(mocks.MockStatsRepo)
	repo.On("GetProcessingStats", mock.Anything).Return(&domain.ProcessingStats{}, nil)

	report, err := service.NewStatsService(repo, usage.NewTracker(nil, nil)).GetUsageReport(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, report.Models)
	assert.Empty(t, report.Models)
}

func TestStatsService_GetUsageReport_RepoError(t *testing.T) {
	repo := new(mocks.MockStatsRepo)
	dbErr := errors.New("db down")
	repo.On("GetProcessingStats", mock.Anything).Return(nil, dbErr)

	_, err := service.NewStatsService(repo, nil).GetUsageReport(context.Background())
	assert.ErrorIs(t, err, dbErr)
}

package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"annotext/internal/port"
)

// MockNotificationSender is a mock implementation of port.NotificationSender.
type MockNotificationSender struct {
	mock.Mock
}

func (m *MockNotificationSender) SendJobNotification(ctx context.Context, n port.JobNotification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// MockUserDirectory is a mock implementation of port.UserDirectory.
type MockUserDirectory struct {
	mock.Mock
}

func (m *MockUserDirectory) ContactFor(ctx context.Context, userID uuid.UUID) (email, name string, err error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.String(1), args.Error(2)
}

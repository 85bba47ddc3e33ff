package port

import (
	"context"

	"github.com/google/uuid"

	"annotext/internal/domain"
)

// JobNotification describes a finished job for the requester.
type JobNotification struct {
	ToEmail string
	ToName  string
	JobID   uuid.UUID
	JobName string
	JobType domain.JobType
	Status  domain.JobStatus
	Summary string
}

// NotificationSender delivers job completion notices.
type NotificationSender interface {
	SendJobNotification(ctx context.Context, n JobNotification) error
}

// UserDirectory resolves contact details for a requester.
type UserDirectory interface {
	ContactFor(ctx context.Context, userID uuid.UUID) (email, name string, err error)
}

package noop

import (
	"context"

	"annotext/internal/logger"
	"annotext/internal/port"
)

type noopSender struct {
	log *logger.Logger
}

// NewNoopSender creates a NotificationSender that only logs what it would send.
func NewNoopSender(log *logger.Logger) port.NotificationSender {
	if log == nil {
		log = logger.Nop()
	}
	return &noopSender{log: log}
}

func (s *noopSender) SendJobNotification(_ context.Context, n port.JobNotification) error {
	s.log.Info("[NOOP EMAIL] job notification",
		"to", n.ToEmail, "job_id", n.JobID, "job_type", n.JobType, "status", n.Status, "summary", n.Summary)
	return nil
}

package ses

import (
	"context"
	"fmt"
	"html"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"annotext/internal/port"
)

type sesSender struct {
	client      *sesv2.Client
	fromAddress string
	fromName    string
	frontendURL string
}

// NewSESSender creates a new SES-backed NotificationSender.
func NewSESSender(region, fromAddress, fromName, frontendURL string) (port.NotificationSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for SES: %w", err)
	}
	client := sesv2.NewFromConfig(cfg)
	return &sesSender{
		client:      client,
		fromAddress: fromAddress,
		fromName:    fromName,
		frontendURL: frontendURL,
	}, nil
}

func (s *sesSender) SendJobNotification(ctx context.Context, n port.JobNotification) error {
	jobURL := JobURL(s.frontendURL, n)
	subject := Subject(n)
	htmlBody := buildJobHTML(n, jobURL)
	textBody := fmt.Sprintf("Hi %s,\n\n%s\n\n%s\n\nView the job: %s\n\nAnnotext", displayName(n), subject, n.Summary, jobURL)

	from := fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress)

	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: &from,
		Destination: &types.Destination{
			ToAddresses: []string{n.ToEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: &subject},
				Body: &types.Body{
					Html: &types.Content{Data: &htmlBody},
					Text: &types.Content{Data: &textBody},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("SES SendEmail: %w", err)
	}
	return nil
}

// Subject renders the notification subject line.
func Subject(n port.JobNotification) string {
	return fmt.Sprintf("Job %s: %s", n.Status, n.JobName)
}

// JobURL links to the job in the frontend.
func JobURL(frontendURL string, n port.JobNotification) string {
	return fmt.Sprintf("%s/jobs/%s", frontendURL, n.JobID)
}

func displayName(n port.JobNotification) string {
	if n.ToName != "" {
		return n.ToName
	}
	return n.ToEmail
}

func buildJobHTML(n port.JobNotification, jobURL string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #333;">%s</h2>
  <p>Hi %s,</p>
  <p>%s</p>
  <p style="text-align: center; margin: 30px 0;">
    <a href="%s" style="background-color: #4F46E5; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; display: inline-block;">View Job</a>
  </p>
  <hr style="border: none; border-top: 1px solid #eee; margin: 20px 0;">
  <p style="color: #999; font-size: 12px;">Annotext - Entity Extraction</p>
</body>
</html>`, html.EscapeString(Subject(n)), html.EscapeString(displayName(n)), html.EscapeString(n.Summary), jobURL)
}

package ses

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"annotext/internal/domain"
	"annotext/internal/port"
)

func TestBuildJobHTML_EscapesUserText(t *testing.T) {
	n := port.JobNotification{
		ToEmail: "a@example.com",
		JobID:   uuid.MustParse("6f1c1b1e-3c1a-4f57-9b53-3b7f5d1c0a11"),
		JobName: "Extract entities: <script>",
		Status:  domain.JobStatusCompleted,
		Summary: "12 entities extracted",
	}

	url := JobURL("https://app.example.com", n)
	body := buildJobHTML(n, url)

	assert.Equal(t, "https://app.example.com/jobs/6f1c1b1e-3c1a-4f57-9b53-3b7f5d1c0a11", url)
	assert.Contains(t, body, "Job completed: Extract entities: &lt;script&gt;")
	assert.Contains(t, body, "Hi a@example.com,")
	assert.Contains(t, body, "12 entities extracted")
	assert.NotContains(t, body, "<script>")
}

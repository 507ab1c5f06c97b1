package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeRequestsDigest is the daily pending-requests summary for
	// super admins.
	TaskTypeRequestsDigest = "requests:digest"
	// TaskTypeSessionsCleanup prunes expired session rows.
	TaskTypeSessionsCleanup = "sessions:cleanup"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Kind    string `json:"kind,omitempty"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// NewRequestsDigestTask constructs the digest cron task.
func NewRequestsDigestTask() *asynq.Task {
	return asynq.NewTask(TaskTypeRequestsDigest, nil)
}

// NewSessionsCleanupTask constructs the session cleanup cron task.
func NewSessionsCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSessionsCleanup, nil)
}

package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/unimaster/unimaster/internal/jobs"
	"github.com/unimaster/unimaster/internal/requests"
)

// PendingSource lists the open review backlog.
type PendingSource interface {
	ListPending(ctx context.Context) ([]requests.PermissionRequest, error)
}

// ReviewerDirectory resolves the addresses the digest goes to.
type ReviewerDirectory interface {
	SuperAdminEmails(ctx context.Context) ([]string, error)
}

// MailEnqueuer hands digest emails to the queue.
type MailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// RequestsDigestJob mails super admins a daily summary of pending
// permission requests. Quiet days produce no mail.
type RequestsDigestJob struct {
	Pending   PendingSource
	Reviewers ReviewerDirectory
	Enqueuer  MailEnqueuer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewRequestsDigestJob initialises the digest handler.
func NewRequestsDigestJob(pending PendingSource, reviewers ReviewerDirectory, enqueuer MailEnqueuer, logger *slog.Logger, metrics *jobmetrics.Metrics) *RequestsDigestJob {
	return &RequestsDigestJob{
		Pending:   pending,
		Reviewers: reviewers,
		Enqueuer:  enqueuer,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle builds and enqueues the digest.
func (j *RequestsDigestJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Pending == nil || j.Reviewers == nil || j.Enqueuer == nil {
		return errors.New("jobs: requests digest: handler not configured")
	}
	tracker := j.Metrics.Track(TaskTypeRequestsDigest)

	var (
		pending   []requests.PermissionRequest
		addresses []string
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		pending, err = j.Pending.ListPending(groupCtx)
		return err
	})
	group.Go(func() error {
		var err error
		addresses, err = j.Reviewers.SuperAdminEmails(groupCtx)
		return err
	})
	if err := group.Wait(); err != nil {
		return tracker.End(fmt.Errorf("jobs: requests digest: %w", err))
	}

	if len(pending) == 0 || len(addresses) == 0 {
		if j.Logger != nil {
			j.Logger.Info("requests digest skipped",
				slog.Int("pending", len(pending)),
				slog.Int("recipients", len(addresses)))
		}
		return tracker.End(nil)
	}

	subject := fmt.Sprintf("%d permission request(s) awaiting review", len(pending))
	body := j.renderBody(pending)
	for _, to := range addresses {
		if _, err := j.Enqueuer.EnqueueSendEmail(ctx, SendEmailPayload{
			To:      to,
			Subject: subject,
			Body:    body,
			Kind:    "requests_digest",
		}); err != nil {
			return tracker.End(fmt.Errorf("jobs: requests digest: enqueue for %s: %w", to, err))
		}
	}
	if j.Logger != nil {
		j.Logger.Info("requests digest enqueued",
			slog.Int("pending", len(pending)),
			slog.Int("recipients", len(addresses)))
	}
	return tracker.End(nil)
}

func (j *RequestsDigestJob) renderBody(pending []requests.PermissionRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pending permission requests as of %s:\n\n", j.now().Format("2006-01-02"))
	for _, req := range pending {
		fmt.Fprintf(&b, "- %s requested %s on %s\n",
			req.UserEmail, req.Permission, req.CreatedAt.UTC().Format("2006-01-02"))
	}
	b.WriteString("\nReview them in the admin panel.\n")
	return b.String()
}

func (j *RequestsDigestJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/unimaster/unimaster/internal/authz"
	"github.com/unimaster/unimaster/internal/requests"
)

type stubPending struct {
	items []requests.PermissionRequest
	err   error
}

func (s stubPending) ListPending(ctx context.Context) ([]requests.PermissionRequest, error) {
	return s.items, s.err
}

type stubReviewers struct {
	addrs []string
	err   error
}

func (s stubReviewers) SuperAdminEmails(ctx context.Context) ([]string, error) {
	return s.addrs, s.err
}

type capturingEnqueuer struct {
	mu       sync.Mutex
	payloads []SendEmailPayload
	err      error
}

func (c *capturingEnqueuer) EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	c.payloads = append(c.payloads, payload)
	return &asynq.TaskInfo{}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequestsDigestEnqueuesPerReviewer(t *testing.T) {
	created := time.Date(2026, time.March, 2, 9, 30, 0, 0, time.UTC)
	pending := stubPending{items: []requests.PermissionRequest{
		{UserEmail: "ada@uni.edu", Permission: authz.PermCreateMaterial, CreatedAt: created},
		{UserEmail: "grace@uni.edu", Permission: authz.PermDeleteMaterial, CreatedAt: created.Add(time.Hour)},
	}}
	reviewers := stubReviewers{addrs: []string{"root@uni.edu", "dean@uni.edu"}}
	enq := &capturingEnqueuer{}

	job := NewRequestsDigestJob(pending, reviewers, enq, discardLogger(), nil)
	job.clock = func() time.Time { return created.Add(24 * time.Hour) }

	require.NoError(t, job.Handle(context.Background(), NewRequestsDigestTask()))
	require.Len(t, enq.payloads, 2)
	require.Equal(t, "2 permission request(s) awaiting review", enq.payloads[0].Subject)
	require.Equal(t, "root@uni.edu", enq.payloads[0].To)
	require.Equal(t, "dean@uni.edu", enq.payloads[1].To)
	require.Contains(t, enq.payloads[0].Body, "ada@uni.edu requested create_material on 2026-03-02")
	require.Contains(t, enq.payloads[0].Body, "Pending permission requests as of 2026-03-03")
	require.Equal(t, "requests_digest", enq.payloads[0].Kind)
}

func TestRequestsDigestSkipsWhenQuiet(t *testing.T) {
	cases := map[string]struct {
		pending   stubPending
		reviewers stubReviewers
	}{
		"no pending requests": {
			pending:   stubPending{},
			reviewers: stubReviewers{addrs: []string{"root@uni.edu"}},
		},
		"no reviewers": {
			pending: stubPending{items: []requests.PermissionRequest{
				{UserEmail: "ada@uni.edu", Permission: authz.PermCreateMaterial},
			}},
			reviewers: stubReviewers{},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			enq := &capturingEnqueuer{}
			job := NewRequestsDigestJob(tc.pending, tc.reviewers, enq, discardLogger(), nil)
			require.NoError(t, job.Handle(context.Background(), NewRequestsDigestTask()))
			require.Empty(t, enq.payloads)
		})
	}
}

func TestRequestsDigestPropagatesFetchErrors(t *testing.T) {
	boom := errors.New("ledger down")
	job := NewRequestsDigestJob(stubPending{err: boom}, stubReviewers{addrs: []string{"root@uni.edu"}}, &capturingEnqueuer{}, discardLogger(), nil)
	err := job.Handle(context.Background(), NewRequestsDigestTask())
	require.ErrorIs(t, err, boom)
}

type stubPurger struct {
	removed int64
	err     error
	gotNow  time.Time
}

func (s *stubPurger) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.gotNow = now
	return s.removed, s.err
}

func TestSessionsCleanupSweeps(t *testing.T) {
	now := time.Date(2026, time.March, 2, 3, 0, 0, 0, time.UTC)
	purger := &stubPurger{removed: 7}
	job := NewSessionsCleanupJob(purger, discardLogger(), nil)
	job.clock = func() time.Time { return now }

	require.NoError(t, job.Handle(context.Background(), NewSessionsCleanupTask()))
	require.Equal(t, now, purger.gotNow)

	purger.err = errors.New("pg unavailable")
	require.Error(t, job.Handle(context.Background(), NewSessionsCleanupTask()))
}

type recordingMailer struct {
	to, subject, body string
	err               error
}

func (m *recordingMailer) Send(ctx context.Context, to, subject, body string) error {
	m.to, m.subject, m.body = to, subject, body
	return m.err
}

func TestSendEmailJobDelivers(t *testing.T) {
	mailer := &recordingMailer{}
	job := NewSendEmailJob(mailer, discardLogger(), nil)

	task, err := NewSendEmailTask(SendEmailPayload{To: "ada@uni.edu", Subject: "hi", Body: "welcome"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, "ada@uni.edu", mailer.to)
	require.Equal(t, "hi", mailer.subject)
}

func TestSendEmailJobSkipsBadPayloads(t *testing.T) {
	job := NewSendEmailJob(&recordingMailer{}, discardLogger(), nil)

	garbled := asynq.NewTask(TaskTypeSendEmail, []byte("{not json"))
	require.ErrorIs(t, job.Handle(context.Background(), garbled), asynq.SkipRetry)

	blank, err := NewSendEmailTask(SendEmailPayload{Subject: "no recipient"})
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), blank), asynq.SkipRetry)
}

func TestReviewNotifierEnqueuesOutcome(t *testing.T) {
	var nilNotifier *ReviewNotifier
	require.NoError(t, nilNotifier.RequestReviewed(context.Background(), "ada@uni.edu", authz.PermCreateMaterial, true))

	notifier := NewReviewNotifier(nil)
	require.NoError(t, notifier.RequestReviewed(context.Background(), "ada@uni.edu", authz.PermCreateMaterial, false))
}

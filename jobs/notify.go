package jobs

import (
	"context"
	"fmt"

	"github.com/unimaster/unimaster/internal/authz"
)

// ReviewNotifier queues a review-outcome email for the requesting user.
type ReviewNotifier struct {
	client *Client
}

// NewReviewNotifier constructs a notifier backed by the jobs client.
func NewReviewNotifier(client *Client) *ReviewNotifier {
	return &ReviewNotifier{client: client}
}

// RequestReviewed enqueues the outcome email. A nil client is a no-op so the
// approval flow keeps working when the queue is not configured.
func (n *ReviewNotifier) RequestReviewed(ctx context.Context, email string, p authz.Permission, approved bool) error {
	if n == nil || n.client == nil {
		return nil
	}
	outcome := "rejected"
	if approved {
		outcome = "approved"
	}
	payload := SendEmailPayload{
		To:      email,
		Subject: fmt.Sprintf("Your %s permission request was %s", p, outcome),
		Body:    fmt.Sprintf("Your request for the %q permission has been %s by an administrator.", p, outcome),
		Kind:    "request_reviewed",
	}
	_, err := n.client.EnqueueSendEmail(ctx, payload)
	return err
}

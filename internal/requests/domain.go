package requests

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/unimaster/unimaster/internal/authz"
)

// Status is the request lifecycle state. PENDING is the only initial
// state; APPROVED and REJECTED are terminal.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// ReviewAction is the decision a super admin takes on a pending request.
type ReviewAction string

const (
	ActionApprove ReviewAction = "APPROVE"
	ActionReject  ReviewAction = "REJECT"
)

// ParseReviewAction validates a raw action value at the boundary.
func ParseReviewAction(raw string) (ReviewAction, error) {
	switch ReviewAction(raw) {
	case ActionApprove, ActionReject:
		return ReviewAction(raw), nil
	}
	return "", fmt.Errorf("requests: unknown review action %q", raw)
}

// PermissionRequest is one ledger entry. UserEmail is a denormalized
// snapshot taken at creation so the review feed stays readable after
// account changes. Entries are never deleted.
type PermissionRequest struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	UserEmail  string
	Permission authz.Permission
	Status     Status
	CreatedAt  time.Time
	ReviewedAt *time.Time
	ReviewedBy *uuid.UUID
}

package requests

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/unimaster/unimaster/internal/authz"
	"github.com/unimaster/unimaster/internal/shared"
)

// RepositoryPort describes ledger operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (PermissionRequest, error)
	ListPending(ctx context.Context) ([]PermissionRequest, error)
	List(ctx context.Context) ([]PermissionRequest, error)
	FindPending(ctx context.Context, userID uuid.UUID, p authz.Permission) (PermissionRequest, error)
	HasPending(ctx context.Context, userID uuid.UUID, p authz.Permission) (bool, error)
}

// UserDirectory is the slice of the user store the approval workflow
// mutates.
type UserDirectory interface {
	GrantPermission(ctx context.Context, userID uuid.UUID, p authz.Permission) error
}

// AuditPort records ledger mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Notifier delivers review outcomes to requesters, typically by
// enqueueing a background email. Best effort.
type Notifier interface {
	RequestReviewed(ctx context.Context, email string, p authz.Permission, approved bool) error
}

// Service orchestrates the request ledger and the approval workflow.
type Service struct {
	repo     RepositoryPort
	users    UserDirectory
	audit    AuditPort
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, users UserDirectory, audit AuditPort, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, users: users, audit: audit, notifier: notifier, logger: logger, now: time.Now}
}

// Create appends a PENDING entry for the acting caller, or returns the
// existing one: re-submitting while a request for the same permission is
// pending is the documented idempotent no-op, not an error. Super admins
// hold every permission implicitly and have nothing to request.
func (s *Service) Create(ctx context.Context, actor *authz.Actor, p authz.Permission) (PermissionRequest, error) {
	if actor == nil {
		return PermissionRequest{}, fmt.Errorf("requests: create: %w", shared.ErrUnauthenticated)
	}
	if authz.IsSuperAdmin(actor) {
		return PermissionRequest{}, fmt.Errorf("requests: super admins hold all permissions: %w", shared.ErrInvalidOperation)
	}
	if existing, err := s.repo.FindPending(ctx, actor.ID, p); err == nil {
		return existing, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return PermissionRequest{}, err
	}

	req := PermissionRequest{
		ID:         uuid.New(),
		UserID:     actor.ID,
		UserEmail:  actor.Email,
		Permission: p,
		Status:     StatusPending,
		CreatedAt:  s.now().UTC(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Insert(ctx, req)
	})
	if err != nil {
		// Lost a concurrent double-submit race against the partial
		// unique index; surface the surviving entry instead.
		if errors.Is(err, shared.ErrConflict) {
			return s.repo.FindPending(ctx, actor.ID, p)
		}
		return PermissionRequest{}, fmt.Errorf("requests: create: %w", err)
	}
	s.recordAudit(ctx, actor.ID, "REQUEST_CREATE", req.ID, map[string]any{"permission": string(p)})
	return req, nil
}

// HasPending reports whether the acting caller already has a pending
// request for the permission. The UI uses this to collapse duplicate
// submit affordances.
func (s *Service) HasPending(ctx context.Context, actor *authz.Actor, p authz.Permission) (bool, error) {
	if actor == nil {
		return false, fmt.Errorf("requests: has pending: %w", shared.ErrUnauthenticated)
	}
	return s.repo.HasPending(ctx, actor.ID, p)
}

// ListPending returns the review feed, oldest first.
func (s *Service) ListPending(ctx context.Context, actor *authz.Actor) ([]PermissionRequest, error) {
	if !authz.IsSuperAdmin(actor) {
		return nil, fmt.Errorf("requests: list pending: %w", shared.ErrPermissionDenied)
	}
	return s.repo.ListPending(ctx)
}

// List returns the full ledger for the history view, newest first.
func (s *Service) List(ctx context.Context, actor *authz.Actor) ([]PermissionRequest, error) {
	if !authz.IsSuperAdmin(actor) {
		return nil, fmt.Errorf("requests: list: %w", shared.ErrPermissionDenied)
	}
	return s.repo.List(ctx)
}

// Review settles a pending request. The route is already gated, but the
// super-admin check is repeated here so the mutation is protected even
// when the service is reached through another path.
//
// The status flip commits first and is durable regardless of what
// happens to the requester afterwards; on approval the permission grant
// is a best-effort dependent step that is skipped without error when the
// user was deleted in the interim.
func (s *Service) Review(ctx context.Context, actor *authz.Actor, requestID uuid.UUID, action ReviewAction) (PermissionRequest, error) {
	if !authz.IsSuperAdmin(actor) {
		return PermissionRequest{}, fmt.Errorf("requests: review: %w", shared.ErrPermissionDenied)
	}
	target := StatusRejected
	if action == ActionApprove {
		target = StatusApproved
	}

	var reviewed PermissionRequest
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.Get(ctx, requestID)
		if err != nil {
			return fmt.Errorf("requests: review: %w", err)
		}
		if req.Status != StatusPending {
			return fmt.Errorf("requests: %s is terminal: %w", req.Status, shared.ErrInvalidOperation)
		}
		now := s.now().UTC()
		ok, err := tx.MarkReviewed(ctx, requestID, target, actor.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			// Another reviewer settled it between the read and the
			// conditional update.
			return fmt.Errorf("requests: already reviewed: %w", shared.ErrInvalidOperation)
		}
		reviewed = req
		reviewed.Status = target
		reviewed.ReviewedAt = &now
		reviewedBy := actor.ID
		reviewed.ReviewedBy = &reviewedBy
		return nil
	})
	if err != nil {
		return PermissionRequest{}, err
	}

	if target == StatusApproved {
		if err := s.users.GrantPermission(ctx, reviewed.UserID, reviewed.Permission); err != nil {
			if !errors.Is(err, shared.ErrNotFound) {
				return PermissionRequest{}, fmt.Errorf("requests: grant after approval: %w", err)
			}
			s.logger.Warn("approved request for deleted user",
				slog.String("request_id", requestID.String()),
				slog.String("user_id", reviewed.UserID.String()))
		}
	}

	s.recordAudit(ctx, actor.ID, "REQUEST_"+string(action), requestID, map[string]any{
		"permission": string(reviewed.Permission),
		"user_email": reviewed.UserEmail,
	})
	if s.notifier != nil {
		if err := s.notifier.RequestReviewed(ctx, reviewed.UserEmail, reviewed.Permission, target == StatusApproved); err != nil {
			s.logger.Warn("notify requester", slog.Any("error", err))
		}
	}
	return reviewed, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID uuid.UUID, action string, entityID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "permission_request",
		EntityID: entityID.String(),
		Meta:     meta,
	})
}

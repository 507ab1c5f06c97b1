package users

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/unimaster/unimaster/internal/authz"
	"github.com/unimaster/unimaster/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	List(ctx context.Context) ([]User, error)
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	Insert(ctx context.Context, u User) error
	Delete(ctx context.Context, id uuid.UUID) error
	GrantPermission(ctx context.Context, id uuid.UUID, p authz.Permission) error
	Activate(ctx context.Context, id uuid.UUID, passwordHash, name string, dob *time.Time, profession Profession, otherProfession string) error
	Count(ctx context.Context) (int, error)
	SuperAdminEmails(ctx context.Context) ([]string, error)
}

// AuditPort records administrative mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles account management business logic. Every mutating
// operation takes the acting caller explicitly; there is no ambient
// current-user state below the HTTP layer.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateInput describes an account created by a super admin.
type CreateInput struct {
	Email                string
	Role                 authz.Role
	Permissions          []authz.Permission
	AssignedUniversityID *uuid.UUID
}

// Create adds a new account. Reserved to super admins. The permission
// list is discarded for any non-admin role: super admins never consult
// theirs and students must never hold one. AssignedUniversityID is kept
// only for admins. The account starts inactive until the invitee sets a
// password through activation.
func (s *Service) Create(ctx context.Context, actor *authz.Actor, input CreateInput) (User, error) {
	if !authz.IsSuperAdmin(actor) {
		return User{}, fmt.Errorf("users: create: %w", shared.ErrPermissionDenied)
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return User{}, fmt.Errorf("users: email required: %w", shared.ErrValidation)
	}
	if _, err := authz.ParseRole(string(input.Role)); err != nil {
		return User{}, fmt.Errorf("users: %v: %w", err, shared.ErrValidation)
	}

	user := User{
		ID:         uuid.New(),
		Email:      email,
		Role:       input.Role,
		Profession: ProfessionOther,
		IsActive:   false,
	}
	if input.Role == authz.RoleAdmin {
		user.Permissions = dedupe(input.Permissions)
		user.AssignedUniversityID = input.AssignedUniversityID
	}
	if err := s.repo.Insert(ctx, user); err != nil {
		return User{}, fmt.Errorf("users: create: %w", err)
	}
	s.recordAudit(ctx, actor, "USER_CREATE", user.ID, map[string]any{"email": user.Email, "role": string(user.Role)})
	return user, nil
}

// Delete removes an account. Reserved to super admins; self-deletion is
// structurally forbidden.
func (s *Service) Delete(ctx context.Context, actor *authz.Actor, id uuid.UUID) error {
	if !authz.IsSuperAdmin(actor) {
		return fmt.Errorf("users: delete: %w", shared.ErrPermissionDenied)
	}
	if actor.ID == id {
		return fmt.Errorf("users: self deletion: %w", shared.ErrInvalidOperation)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("users: delete: %w", err)
	}
	s.recordAudit(ctx, actor, "USER_DELETE", id, nil)
	return nil
}

// List returns all accounts for the management view.
func (s *Service) List(ctx context.Context, actor *authz.Actor) ([]User, error) {
	if !authz.HasPermission(actor, authz.PermManageUsers) {
		return nil, fmt.Errorf("users: list: %w", shared.ErrPermissionDenied)
	}
	return s.repo.List(ctx)
}

// Get fetches one account for the management view.
func (s *Service) Get(ctx context.Context, actor *authz.Actor, id uuid.UUID) (User, error) {
	if !authz.HasPermission(actor, authz.PermManageUsers) {
		return User{}, fmt.Errorf("users: get: %w", shared.ErrPermissionDenied)
	}
	return s.repo.GetByID(ctx, id)
}

// GrantPermission unions the permission into the user's set. Invoked by
// the approval workflow after a request flips to APPROVED; idempotent.
func (s *Service) GrantPermission(ctx context.Context, userID uuid.UUID, p authz.Permission) error {
	return s.repo.GrantPermission(ctx, userID, p)
}

// ActorByID resolves the identity for the session middleware. Reads the
// stored permission set fresh so approvals apply to in-flight sessions.
func (s *Service) ActorByID(ctx context.Context, id uuid.UUID) (*authz.Actor, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return user.Actor(), nil
}

func (s *Service) recordAudit(ctx context.Context, actor *authz.Actor, action string, entityID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "user",
		EntityID: entityID.String(),
		Meta:     meta,
	})
}

func dedupe(perms []authz.Permission) []authz.Permission {
	seen := make(map[authz.Permission]struct{}, len(perms))
	out := make([]authz.Permission, 0, len(perms))
	for _, p := range perms {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

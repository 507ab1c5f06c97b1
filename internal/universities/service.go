package universities

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/unimaster/unimaster/internal/authz"
	"github.com/unimaster/unimaster/internal/shared"
)

// RepositoryPort describes persistence operations used by Service.
type RepositoryPort interface {
	List(ctx context.Context) ([]University, error)
	GetByID(ctx context.Context, id uuid.UUID) (University, error)
	Insert(ctx context.Context, u University) error
	Rename(ctx context.Context, id uuid.UUID, name string) error
	DeleteCascade(ctx context.Context, id uuid.UUID) error
}

// AuditPort records catalog mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles the university catalog. Reads are open to everyone;
// mutations require manage_universities.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	collator *collate.Collator
}

// NewService constructs the catalog service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{
		repo:     repo,
		audit:    audit,
		collator: collate.New(language.English, collate.IgnoreCase),
	}
}

// List returns all universities in locale-aware name order, so accented
// names sort where readers expect them rather than after 'z'.
func (s *Service) List(ctx context.Context) ([]University, error) {
	out, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return s.collator.CompareString(out[i].Name, out[j].Name) < 0
	})
	return out, nil
}

// Get fetches one university.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (University, error) {
	return s.repo.GetByID(ctx, id)
}

// Create adds a university.
func (s *Service) Create(ctx context.Context, actor *authz.Actor, name string) (University, error) {
	if !authz.HasPermission(actor, authz.PermManageUniversities) {
		return University{}, fmt.Errorf("universities: create: %w", shared.ErrPermissionDenied)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return University{}, fmt.Errorf("universities: name required: %w", shared.ErrValidation)
	}
	u := University{ID: uuid.New(), Name: name}
	if err := s.repo.Insert(ctx, u); err != nil {
		return University{}, fmt.Errorf("universities: create: %w", err)
	}
	s.recordAudit(ctx, actor, "UNIVERSITY_CREATE", u.ID, map[string]any{"name": name})
	return u, nil
}

// Rename changes a university's name.
func (s *Service) Rename(ctx context.Context, actor *authz.Actor, id uuid.UUID, name string) (University, error) {
	if !authz.HasPermission(actor, authz.PermManageUniversities) {
		return University{}, fmt.Errorf("universities: rename: %w", shared.ErrPermissionDenied)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return University{}, fmt.Errorf("universities: name required: %w", shared.ErrValidation)
	}
	if err := s.repo.Rename(ctx, id, name); err != nil {
		return University{}, fmt.Errorf("universities: rename: %w", err)
	}
	s.recordAudit(ctx, actor, "UNIVERSITY_RENAME", id, map[string]any{"name": name})
	return s.repo.GetByID(ctx, id)
}

// Delete removes a university and everything under it.
func (s *Service) Delete(ctx context.Context, actor *authz.Actor, id uuid.UUID) error {
	if !authz.HasPermission(actor, authz.PermManageUniversities) {
		return fmt.Errorf("universities: delete: %w", shared.ErrPermissionDenied)
	}
	if err := s.repo.DeleteCascade(ctx, id); err != nil {
		return fmt.Errorf("universities: delete: %w", err)
	}
	s.recordAudit(ctx, actor, "UNIVERSITY_DELETE", id, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actor *authz.Actor, action string, entityID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "university",
		EntityID: entityID.String(),
		Meta:     meta,
	})
}

package materials

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/unimaster/unimaster/internal/authz"
	"github.com/unimaster/unimaster/internal/shared"
)

// RepositoryPort describes persistence operations used by Service.
type RepositoryPort interface {
	ListByYear(ctx context.Context, yearID uuid.UUID) ([]Material, error)
	GetByID(ctx context.Context, id uuid.UUID) (Material, error)
	Insert(ctx context.Context, m Material) error
	Update(ctx context.Context, m Material) error
	Delete(ctx context.Context, id uuid.UUID) error
	UniversityForYear(ctx context.Context, yearID uuid.UUID) (uuid.UUID, error)
}

// AuditPort records material mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles study materials. Listings are cached per year;
// concurrent cold reads for the same year collapse into one query.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	audit  AuditPort
	logger *slog.Logger
	group  singleflight.Group
}

// NewService constructs the material service.
func NewService(repo RepositoryPort, cache *Cache, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, audit: audit, logger: logger}
}

// ListByYear returns the year's materials, newest first.
func (s *Service) ListByYear(ctx context.Context, yearID uuid.UUID) ([]Material, error) {
	if cached, ok := s.cache.Get(ctx, yearID); ok {
		return cached, nil
	}
	resultChan := s.group.DoChan(yearID.String(), func() (interface{}, error) {
		entries, err := s.repo.ListByYear(ctx, yearID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, yearID, entries); err != nil {
			s.logger.Warn("cache materials", slog.Any("error", err))
		}
		return entries, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]Material), nil
	}
}

// Get fetches one material.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Material, error) {
	return s.repo.GetByID(ctx, id)
}

// CreateInput carries a new material's fields.
type CreateInput struct {
	YearID      uuid.UUID
	Title       string
	Category    Category
	FileURL     string
	Description string
}

// Create stores a new material.
func (s *Service) Create(ctx context.Context, actor *authz.Actor, input CreateInput) (Material, error) {
	if !authz.HasPermission(actor, authz.PermCreateMaterial) {
		return Material{}, fmt.Errorf("materials: create: %w", shared.ErrPermissionDenied)
	}
	if err := s.checkUniversityScope(ctx, actor, input.YearID); err != nil {
		return Material{}, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return Material{}, fmt.Errorf("materials: title required: %w", shared.ErrValidation)
	}
	m := Material{
		ID:          uuid.New(),
		YearID:      input.YearID,
		Title:       title,
		Category:    input.Category,
		FileURL:     strings.TrimSpace(input.FileURL),
		Description: strings.TrimSpace(input.Description),
		UploadedBy:  actor.ID,
	}
	if err := s.repo.Insert(ctx, m); err != nil {
		return Material{}, fmt.Errorf("materials: create: %w", err)
	}
	s.invalidate(ctx, m.YearID)
	s.recordAudit(ctx, actor, "MATERIAL_CREATE", m.ID, map[string]any{"title": title, "year_id": m.YearID.String()})
	return m, nil
}

// UpdateInput carries the editable fields. Empty strings keep the
// stored value; Category updates when non-empty.
type UpdateInput struct {
	Title       string
	Category    Category
	FileURL     string
	Description string
}

// Update edits an existing material.
func (s *Service) Update(ctx context.Context, actor *authz.Actor, id uuid.UUID, input UpdateInput) (Material, error) {
	if !authz.HasPermission(actor, authz.PermEditMaterial) {
		return Material{}, fmt.Errorf("materials: update: %w", shared.ErrPermissionDenied)
	}
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Material{}, fmt.Errorf("materials: update: %w", err)
	}
	if err := s.checkUniversityScope(ctx, actor, m.YearID); err != nil {
		return Material{}, err
	}
	if title := strings.TrimSpace(input.Title); title != "" {
		m.Title = title
	}
	if input.Category != "" {
		m.Category = input.Category
	}
	if fileURL := strings.TrimSpace(input.FileURL); fileURL != "" {
		m.FileURL = fileURL
	}
	if description := strings.TrimSpace(input.Description); description != "" {
		m.Description = description
	}
	if err := s.repo.Update(ctx, m); err != nil {
		return Material{}, fmt.Errorf("materials: update: %w", err)
	}
	s.invalidate(ctx, m.YearID)
	s.recordAudit(ctx, actor, "MATERIAL_UPDATE", id, map[string]any{"title": m.Title})
	return m, nil
}

// Delete removes a material.
func (s *Service) Delete(ctx context.Context, actor *authz.Actor, id uuid.UUID) error {
	if !authz.HasPermission(actor, authz.PermDeleteMaterial) {
		return fmt.Errorf("materials: delete: %w", shared.ErrPermissionDenied)
	}
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("materials: delete: %w", err)
	}
	if err := s.checkUniversityScope(ctx, actor, m.YearID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("materials: delete: %w", err)
	}
	s.invalidate(ctx, m.YearID)
	s.recordAudit(ctx, actor, "MATERIAL_DELETE", id, map[string]any{"title": m.Title})
	return nil
}

// checkUniversityScope confines assigned admins to their own
// university's content unless they hold view_all_content.
func (s *Service) checkUniversityScope(ctx context.Context, actor *authz.Actor, yearID uuid.UUID) error {
	if actor == nil || actor.AssignedUniversityID == nil {
		return nil
	}
	if authz.HasPermission(actor, authz.PermViewAllContent) {
		return nil
	}
	universityID, err := s.repo.UniversityForYear(ctx, yearID)
	if err != nil {
		return fmt.Errorf("materials: resolve year: %w", err)
	}
	if universityID != *actor.AssignedUniversityID {
		return fmt.Errorf("materials: outside assigned university: %w", shared.ErrPermissionDenied)
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, yearID uuid.UUID) {
	if err := s.cache.Invalidate(ctx, yearID); err != nil {
		s.logger.Warn("invalidate materials cache", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actor *authz.Actor, action string, entityID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "material",
		EntityID: entityID.String(),
		Meta:     meta,
	})
}

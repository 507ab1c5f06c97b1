package courses

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/unimaster/unimaster/internal/authz"
	"github.com/unimaster/unimaster/internal/shared"
)

// RepositoryPort describes persistence operations used by Service.
type RepositoryPort interface {
	ListByUniversity(ctx context.Context, universityID uuid.UUID) ([]Course, error)
	GetByID(ctx context.Context, id uuid.UUID) (Course, error)
	Insert(ctx context.Context, c Course) error
	Rename(ctx context.Context, id uuid.UUID, name string) error
	DeleteCascade(ctx context.Context, id uuid.UUID) error
	Years(ctx context.Context, courseID uuid.UUID) ([]Year, error)
	GetYear(ctx context.Context, id uuid.UUID) (Year, error)
	SeedYears(ctx context.Context, courseID uuid.UUID, years []Year) error
}

// AuditPort records catalog mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles courses and their study years. Reads are open;
// mutations require manage_courses.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs the course service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// ListByUniversity returns a university's courses.
func (s *Service) ListByUniversity(ctx context.Context, universityID uuid.UUID) ([]Course, error) {
	return s.repo.ListByUniversity(ctx, universityID)
}

// Get fetches one course.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Course, error) {
	return s.repo.GetByID(ctx, id)
}

// Create adds a course and seeds its default study years, so every
// course is immediately usable for material uploads.
func (s *Service) Create(ctx context.Context, actor *authz.Actor, universityID uuid.UUID, name string) (Course, error) {
	if !authz.HasPermission(actor, authz.PermManageCourses) {
		return Course{}, fmt.Errorf("courses: create: %w", shared.ErrPermissionDenied)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Course{}, fmt.Errorf("courses: name required: %w", shared.ErrValidation)
	}
	c := Course{ID: uuid.New(), UniversityID: universityID, Name: name}
	if err := s.repo.Insert(ctx, c); err != nil {
		return Course{}, fmt.Errorf("courses: create: %w", err)
	}
	if err := s.repo.SeedYears(ctx, c.ID, defaultYears(c.ID)); err != nil {
		return Course{}, fmt.Errorf("courses: seed years: %w", err)
	}
	s.recordAudit(ctx, actor, "COURSE_CREATE", c.ID, map[string]any{"name": name, "university_id": universityID.String()})
	return c, nil
}

// Rename changes a course's name.
func (s *Service) Rename(ctx context.Context, actor *authz.Actor, id uuid.UUID, name string) (Course, error) {
	if !authz.HasPermission(actor, authz.PermManageCourses) {
		return Course{}, fmt.Errorf("courses: rename: %w", shared.ErrPermissionDenied)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Course{}, fmt.Errorf("courses: name required: %w", shared.ErrValidation)
	}
	if err := s.repo.Rename(ctx, id, name); err != nil {
		return Course{}, fmt.Errorf("courses: rename: %w", err)
	}
	s.recordAudit(ctx, actor, "COURSE_RENAME", id, map[string]any{"name": name})
	return s.repo.GetByID(ctx, id)
}

// Delete removes a course with its years and materials.
func (s *Service) Delete(ctx context.Context, actor *authz.Actor, id uuid.UUID) error {
	if !authz.HasPermission(actor, authz.PermManageCourses) {
		return fmt.Errorf("courses: delete: %w", shared.ErrPermissionDenied)
	}
	if err := s.repo.DeleteCascade(ctx, id); err != nil {
		return fmt.Errorf("courses: delete: %w", err)
	}
	s.recordAudit(ctx, actor, "COURSE_DELETE", id, nil)
	return nil
}

// Years lists a course's study years.
func (s *Service) Years(ctx context.Context, courseID uuid.UUID) ([]Year, error) {
	return s.repo.Years(ctx, courseID)
}

// GetYear fetches one study year.
func (s *Service) GetYear(ctx context.Context, id uuid.UUID) (Year, error) {
	return s.repo.GetYear(ctx, id)
}

// EnsureYears backfills the default study years for courses created
// before the seed existed. Idempotent.
func (s *Service) EnsureYears(ctx context.Context, actor *authz.Actor, courseID uuid.UUID) ([]Year, error) {
	if !authz.HasPermission(actor, authz.PermManageCourses) {
		return nil, fmt.Errorf("courses: ensure years: %w", shared.ErrPermissionDenied)
	}
	if _, err := s.repo.GetByID(ctx, courseID); err != nil {
		return nil, fmt.Errorf("courses: ensure years: %w", err)
	}
	if err := s.repo.SeedYears(ctx, courseID, defaultYears(courseID)); err != nil {
		return nil, fmt.Errorf("courses: ensure years: %w", err)
	}
	return s.repo.Years(ctx, courseID)
}

func defaultYears(courseID uuid.UUID) []Year {
	out := make([]Year, 0, DefaultYearCount)
	for n := 1; n <= DefaultYearCount; n++ {
		out = append(out, Year{ID: uuid.New(), CourseID: courseID, YearNumber: n})
	}
	return out
}

func (s *Service) recordAudit(ctx context.Context, actor *authz.Actor, action string, entityID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "course",
		EntityID: entityID.String(),
		Meta:     meta,
	})
}

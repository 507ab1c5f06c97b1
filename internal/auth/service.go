package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/unimaster/unimaster/internal/authz"
	"github.com/unimaster/unimaster/internal/shared"
	"github.com/unimaster/unimaster/internal/users"
)

// UserStore is the slice of the account store the auth flows touch.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (users.User, error)
	GetByEmail(ctx context.Context, email string) (users.User, error)
	Insert(ctx context.Context, u users.User) error
	Activate(ctx context.Context, id uuid.UUID, passwordHash, name string, dob *time.Time, profession users.Profession, otherProfession string) error
}

// Service wraps authentication business rules.
type Service struct {
	users    UserStore
	sessions SessionRepository
}

// NewService constructs a new Service.
func NewService(userStore UserStore, sessions SessionRepository) *Service {
	return &Service{users: userStore, sessions: sessions}
}

// Authenticate validates email/password credentials. Every failure mode
// collapses into shared.ErrInvalidCredentials so responses never reveal
// whether an address is registered.
func (s *Service) Authenticate(ctx context.Context, email, password string) (users.User, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}

// RegisterInput carries the public student signup form.
type RegisterInput struct {
	Email                string
	Password             string
	Name                 string
	DOB                  *time.Time
	Profession           users.Profession
	OtherProfession      string
	EnrolledUniversityID *uuid.UUID
	EnrolledCourseID     *uuid.UUID
}

// Register creates a student account. Students start with an empty
// permission set regardless of input; grants only ever arrive through the
// request ledger.
func (s *Service) Register(ctx context.Context, input RegisterInput) (users.User, error) {
	email := normalizeEmail(input.Email)
	if email == "" {
		return users.User{}, fmt.Errorf("auth: email required: %w", shared.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return users.User{}, fmt.Errorf("auth: hash password: %w", err)
	}
	user := users.User{
		ID:                   uuid.New(),
		Email:                email,
		Role:                 authz.RoleStudent,
		Name:                 strings.TrimSpace(input.Name),
		DOB:                  input.DOB,
		Profession:           input.Profession,
		OtherProfession:      strings.TrimSpace(input.OtherProfession),
		EnrolledUniversityID: input.EnrolledUniversityID,
		EnrolledCourseID:     input.EnrolledCourseID,
		PasswordHash:         string(hash),
		IsActive:             true,
	}
	if err := s.users.Insert(ctx, user); err != nil {
		return users.User{}, fmt.Errorf("auth: register: %w", err)
	}
	return user, nil
}

// EmailStatus describes how the frontend should route an address: signup,
// login, or invited-admin activation.
type EmailStatus struct {
	Exists bool
	Role   authz.Role
	Active bool
}

// LookupEmail reports account existence and state for an address.
func (s *Service) LookupEmail(ctx context.Context, email string) (EmailStatus, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return EmailStatus{}, nil
		}
		return EmailStatus{}, err
	}
	return EmailStatus{Exists: true, Role: user.Role, Active: user.IsActive}, nil
}

// ActivateInput carries the invited-admin activation form.
type ActivateInput struct {
	Email           string
	Password        string
	Name            string
	DOB             *time.Time
	Profession      users.Profession
	OtherProfession string
}

// Activate finishes an invited account: the super admin created it without
// credentials, the invitee sets password and profile here. Already active
// accounts are closed to this flow.
func (s *Service) Activate(ctx context.Context, input ActivateInput) (users.User, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(input.Email))
	if err != nil {
		return users.User{}, fmt.Errorf("auth: activate: %w", err)
	}
	if user.IsActive {
		return users.User{}, fmt.Errorf("auth: account already active: %w", shared.ErrInvalidOperation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return users.User{}, fmt.Errorf("auth: hash password: %w", err)
	}
	name := strings.TrimSpace(input.Name)
	if err := s.users.Activate(ctx, user.ID, string(hash), name, input.DOB, input.Profession, strings.TrimSpace(input.OtherProfession)); err != nil {
		return users.User{}, fmt.Errorf("auth: activate: %w", err)
	}
	return s.users.GetByID(ctx, user.ID)
}

// Profile loads the full account behind the current actor.
func (s *Service) Profile(ctx context.Context, id uuid.UUID) (users.User, error) {
	return s.users.GetByID(ctx, id)
}

// RegisterSession mirrors the session metadata into postgres for audit.
func (s *Service) RegisterSession(ctx context.Context, id string, userID uuid.UUID, expiresAt time.Time, ip, ua string) error {
	return s.sessions.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.sessions.DeleteSession(ctx, id)
}

// PurgeExpiredSessions deletes stale session rows. The worker runs this
// on a daily schedule.
func (s *Service) PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return s.sessions.DeleteExpired(ctx, now)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

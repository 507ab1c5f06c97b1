package users

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/unimaster/unimaster/internal/authz"
)

// Profession is the closed profile variant collected at signup. Free-form
// input is only carried through OtherProfession when the variant is Other.
type Profession string

const (
	ProfessionStudent Profession = "student"
	ProfessionTeacher Profession = "teacher"
	ProfessionOther   Profession = "other"
)

// ParseProfession validates a raw profession value at the boundary.
func ParseProfession(raw string) (Profession, error) {
	switch Profession(raw) {
	case ProfessionStudent, ProfessionTeacher, ProfessionOther:
		return Profession(raw), nil
	case "":
		return ProfessionOther, nil
	}
	return "", fmt.Errorf("users: unknown profession %q", raw)
}

// User represents a portal account.
//
// Permissions are meaningful only for admins: students never hold any and
// a super admin's stored set is ignored by the authorization check.
// AssignedUniversityID scopes which university an admin manages by
// default; Enrolled* fields belong to students.
type User struct {
	ID                   uuid.UUID
	Email                string
	Role                 authz.Role
	Permissions          []authz.Permission
	AssignedUniversityID *uuid.UUID
	EnrolledUniversityID *uuid.UUID
	EnrolledCourseID     *uuid.UUID
	Name                 string
	DOB                  *time.Time
	Profession           Profession
	OtherProfession      string
	PasswordHash         string
	IsActive             bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Actor projects the user into the shape the authorization check consumes.
func (u User) Actor() *authz.Actor {
	return &authz.Actor{
		ID:                   u.ID,
		Email:                u.Email,
		Role:                 u.Role,
		Permissions:          append([]authz.Permission(nil), u.Permissions...),
		AssignedUniversityID: u.AssignedUniversityID,
	}
}

// HoldsPermission reports membership in the stored set without any role
// shortcut. The authorization check itself lives in package authz.
func (u User) HoldsPermission(p authz.Permission) bool {
	for _, held := range u.Permissions {
		if held == p {
			return true
		}
	}
	return false
}

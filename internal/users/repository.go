package users

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unimaster/unimaster/internal/authz"
	"github.com/unimaster/unimaster/internal/shared"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, password_hash, role, permissions, assigned_university_id,
enrolled_university_id, enrolled_course_id, name, dob, profession, other_profession,
is_active, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	var role, profession string
	var perms []string
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &perms, &u.AssignedUniversityID,
		&u.EnrolledUniversityID, &u.EnrolledCourseID, &u.Name, &u.DOB, &profession, &u.OtherProfession,
		&u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	u.Role = authz.Role(role)
	u.Profession = Profession(profession)
	u.Permissions = make([]authz.Permission, 0, len(perms))
	for _, p := range perms {
		u.Permissions = append(u.Permissions, authz.Permission(p))
	}
	return u, nil
}

// List returns all users ordered by creation time.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// GetByID fetches a single user.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// GetByEmail fetches a single user by unique email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// Insert stores a new user. A duplicate email surfaces as shared.ErrConflict.
func (r *Repository) Insert(ctx context.Context, u User) error {
	perms := make([]string, 0, len(u.Permissions))
	for _, p := range u.Permissions {
		perms = append(perms, string(p))
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO users
(id, email, password_hash, role, permissions, assigned_university_id,
 enrolled_university_id, enrolled_course_id, name, dob, profession, other_profession,
 is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())`,
		u.ID, u.Email, u.PasswordHash, string(u.Role), perms, u.AssignedUniversityID,
		u.EnrolledUniversityID, u.EnrolledCourseID, u.Name, u.DOB, string(u.Profession), u.OtherProfession,
		u.IsActive)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return shared.ErrConflict
		}
		return err
	}
	return nil
}

// Delete removes a user. Returns shared.ErrNotFound when no row matched.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// GrantPermission adds the permission to the user's set with set-union
// semantics: re-granting a held permission is a no-op, a missing user
// reports shared.ErrNotFound.
func (r *Repository) GrantPermission(ctx context.Context, id uuid.UUID, p authz.Permission) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users
SET permissions = array_append(permissions, $2), updated_at = NOW()
WHERE id = $1 AND NOT ($2 = ANY(permissions))`, id, string(p))
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return shared.ErrNotFound
	}
	return nil
}

// Activate sets credentials and profile on an invited account.
func (r *Repository) Activate(ctx context.Context, id uuid.UUID, passwordHash, name string, dob *time.Time, profession Profession, otherProfession string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users
SET password_hash = $2, name = $3, dob = $4, profession = $5, other_profession = $6,
    is_active = TRUE, updated_at = NOW()
WHERE id = $1`, id, passwordHash, name, dob, string(profession), otherProfession)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Count returns the total number of accounts.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// SuperAdminEmails lists addresses for the pending-request digest.
func (r *Repository) SuperAdminEmails(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT email FROM users WHERE role = $1 AND is_active ORDER BY email`, string(authz.RoleSuperAdmin))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)

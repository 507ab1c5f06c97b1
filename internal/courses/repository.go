package courses

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unimaster/unimaster/internal/platform/db"
	"github.com/unimaster/unimaster/internal/shared"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Repository provides PostgreSQL backed persistence for courses and
// their study years.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const courseColumns = `id, university_id, name, created_at, updated_at`

func scanCourse(row pgx.Row) (Course, error) {
	var c Course
	if err := row.Scan(&c.ID, &c.UniversityID, &c.Name, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Course{}, err
	}
	return c, nil
}

// ListByUniversity returns the university's courses in name order.
func (r *Repository) ListByUniversity(ctx context.Context, universityID uuid.UUID) ([]Course, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE university_id = $1 ORDER BY name, id`, universityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetByID fetches one course.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Course, error) {
	c, err := scanCourse(r.pool.QueryRow(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Course{}, shared.ErrNotFound
		}
		return Course{}, err
	}
	return c, nil
}

// Insert stores a new course. A duplicate name within the university is
// shared.ErrConflict; a missing university is shared.ErrNotFound.
func (r *Repository) Insert(ctx context.Context, c Course) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO courses (id, university_id, name, created_at, updated_at) VALUES ($1, $2, $3, NOW(), NOW())`,
		c.ID, c.UniversityID, c.Name)
	return mapConstraintErr(err)
}

// Rename updates the course name.
func (r *Repository) Rename(ctx context.Context, id uuid.UUID, name string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE courses SET name = $2, updated_at = NOW() WHERE id = $1`, id, name)
	if err != nil {
		return mapConstraintErr(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteCascade removes the course with its years and materials in one
// transaction.
func (r *Repository) DeleteCascade(ctx context.Context, id uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM materials WHERE year_id IN (SELECT id FROM years WHERE course_id = $1)`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM years WHERE course_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM courses WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// Years returns the course's study years in ascending year order.
func (r *Repository) Years(ctx context.Context, courseID uuid.UUID) ([]Year, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, course_id, year_number, created_at FROM years WHERE course_id = $1 ORDER BY year_number`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Year
	for rows.Next() {
		var y Year
		if err := rows.Scan(&y.ID, &y.CourseID, &y.YearNumber, &y.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, y)
	}
	return out, rows.Err()
}

// GetYear fetches one study year.
func (r *Repository) GetYear(ctx context.Context, id uuid.UUID) (Year, error) {
	var y Year
	err := r.pool.QueryRow(ctx,
		`SELECT id, course_id, year_number, created_at FROM years WHERE id = $1`, id).
		Scan(&y.ID, &y.CourseID, &y.YearNumber, &y.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Year{}, shared.ErrNotFound
		}
		return Year{}, err
	}
	return y, nil
}

// SeedYears inserts years 1..n for the course, skipping numbers that
// already exist. The (course_id, year_number) unique index makes the
// seed idempotent under concurrent calls.
func (r *Repository) SeedYears(ctx context.Context, courseID uuid.UUID, years []Year) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, y := range years {
			if _, err := tx.Exec(ctx, `INSERT INTO years (id, course_id, year_number, created_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (course_id, year_number) DO NOTHING`, y.ID, courseID, y.YearNumber); err != nil {
				return mapConstraintErr(err)
			}
		}
		return nil
	})
}

func mapConstraintErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return shared.ErrConflict
		case foreignKeyViolation:
			return shared.ErrNotFound
		}
	}
	return err
}

var _ RepositoryPort = (*Repository)(nil)

package universities

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

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const universityColumns = `id, name, created_at, updated_at`

func scanUniversity(row pgx.Row) (University, error) {
	var u University
	if err := row.Scan(&u.ID, &u.Name, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return University{}, err
	}
	return u, nil
}

// List returns every university. Presentation order is decided by the
// service's collator, not here.
func (r *Repository) List(ctx context.Context) ([]University, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+universityColumns+` FROM universities`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []University
	for rows.Next() {
		u, err := scanUniversity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// GetByID fetches one university.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (University, error) {
	u, err := scanUniversity(r.pool.QueryRow(ctx, `SELECT `+universityColumns+` FROM universities WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return University{}, shared.ErrNotFound
		}
		return University{}, err
	}
	return u, nil
}

// Insert stores a new university. A duplicate name surfaces as
// shared.ErrConflict.
func (r *Repository) Insert(ctx context.Context, u University) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO universities (id, name, created_at, updated_at) VALUES ($1, $2, NOW(), NOW())`,
		u.ID, u.Name)
	return mapUniqueViolation(err)
}

// Rename updates the name, keeping uniqueness.
func (r *Repository) Rename(ctx context.Context, id uuid.UUID, name string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE universities SET name = $2, updated_at = NOW() WHERE id = $1`, id, name)
	if err != nil {
		return mapUniqueViolation(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteCascade removes the university and its courses, years and
// materials in one transaction.
func (r *Repository) DeleteCascade(ctx context.Context, id uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM materials WHERE year_id IN (
 SELECT y.id FROM years y JOIN courses c ON y.course_id = c.id WHERE c.university_id = $1)`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM years WHERE course_id IN (
 SELECT id FROM courses WHERE university_id = $1)`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM courses WHERE university_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM universities WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

func mapUniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return shared.ErrConflict
	}
	return err
}

var _ RepositoryPort = (*Repository)(nil)

package materials

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unimaster/unimaster/internal/shared"
)

const foreignKeyViolation = "23503"

// Repository provides PostgreSQL backed persistence for materials.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const materialColumns = `id, year_id, title, category, file_url, description, uploaded_by, uploaded_at`

func scanMaterial(row pgx.Row) (Material, error) {
	var m Material
	var category string
	if err := row.Scan(&m.ID, &m.YearID, &m.Title, &category, &m.FileURL, &m.Description, &m.UploadedBy, &m.UploadedAt); err != nil {
		return Material{}, err
	}
	m.Category = Category(category)
	return m, nil
}

// ListByYear returns the year's materials newest first.
func (r *Repository) ListByYear(ctx context.Context, yearID uuid.UUID) ([]Material, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+materialColumns+` FROM materials WHERE year_id = $1 ORDER BY uploaded_at DESC, id`, yearID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetByID fetches one material.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Material, error) {
	m, err := scanMaterial(r.pool.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Material{}, shared.ErrNotFound
		}
		return Material{}, err
	}
	return m, nil
}

// Insert stores a new material. A missing year surfaces as
// shared.ErrNotFound via the foreign key.
func (r *Repository) Insert(ctx context.Context, m Material) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO materials
(id, year_id, title, category, file_url, description, uploaded_by, uploaded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		m.ID, m.YearID, m.Title, string(m.Category), m.FileURL, m.Description, m.UploadedBy)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return shared.ErrNotFound
		}
		return err
	}
	return nil
}

// Update replaces the editable fields.
func (r *Repository) Update(ctx context.Context, m Material) error {
	tag, err := r.pool.Exec(ctx, `UPDATE materials
SET title = $2, category = $3, file_url = $4, description = $5
WHERE id = $1`,
		m.ID, m.Title, string(m.Category), m.FileURL, m.Description)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a material.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM materials WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UniversityForYear resolves which university a year belongs to.
func (r *Repository) UniversityForYear(ctx context.Context, yearID uuid.UUID) (uuid.UUID, error) {
	var universityID uuid.UUID
	err := r.pool.QueryRow(ctx,
		`SELECT c.university_id FROM years y JOIN courses c ON y.course_id = c.id WHERE y.id = $1`,
		yearID).Scan(&universityID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, shared.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, err
	}
	return universityID, nil
}

var _ RepositoryPort = (*Repository)(nil)

package requests

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

// Repository provides PostgreSQL backed persistence for the ledger.
//
// The permission_requests table carries a partial unique index on
// (user_id, permission) WHERE status = 'PENDING': the database is the
// final arbiter of the single-pending invariant under concurrent
// double-submission.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const requestColumns = `id, user_id, user_email, permission, status, created_at, reviewed_at, reviewed_by`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (PermissionRequest, error) {
	var req PermissionRequest
	var permission, status string
	if err := row.Scan(&req.ID, &req.UserID, &req.UserEmail, &permission, &status, &req.CreatedAt, &req.ReviewedAt, &req.ReviewedBy); err != nil {
		return PermissionRequest{}, err
	}
	req.Permission = authz.Permission(permission)
	req.Status = Status(status)
	return req, nil
}

// WithTx runs fn inside a RepeatableRead transaction exposing the
// transactional subset of operations.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Get fetches one ledger entry.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (PermissionRequest, error) {
	return getRequest(ctx, r.pool, id)
}

// ListPending returns pending entries oldest first, the order the
// review feed presents them in.
func (r *Repository) ListPending(ctx context.Context) ([]PermissionRequest, error) {
	return listRequests(ctx, r.pool, `SELECT `+requestColumns+` FROM permission_requests WHERE status = $1 ORDER BY created_at, id`, string(StatusPending))
}

// List returns the full ledger newest first for the history view.
func (r *Repository) List(ctx context.Context) ([]PermissionRequest, error) {
	return listRequests(ctx, r.pool, `SELECT `+requestColumns+` FROM permission_requests ORDER BY created_at DESC, id`)
}

// FindPending returns the pending entry for the exact (user, permission)
// pair, or shared.ErrNotFound.
func (r *Repository) FindPending(ctx context.Context, userID uuid.UUID, p authz.Permission) (PermissionRequest, error) {
	req, err := scanRequest(r.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM permission_requests WHERE user_id = $1 AND permission = $2 AND status = $3`,
		userID, string(p), string(StatusPending)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PermissionRequest{}, shared.ErrNotFound
		}
		return PermissionRequest{}, err
	}
	return req, nil
}

// HasPending reports whether a pending entry matches exactly.
func (r *Repository) HasPending(ctx context.Context, userID uuid.UUID, p authz.Permission) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM permission_requests WHERE user_id = $1 AND permission = $2 AND status = $3)`,
		userID, string(p), string(StatusPending)).Scan(&exists)
	return exists, err
}

// TxRepository is the transactional slice of the ledger used by the
// service's read-modify-write sequences.
type TxRepository interface {
	Get(ctx context.Context, id uuid.UUID) (PermissionRequest, error)
	Insert(ctx context.Context, req PermissionRequest) error
	MarkReviewed(ctx context.Context, id uuid.UUID, status Status, reviewer uuid.UUID, at time.Time) (bool, error)
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Get(ctx context.Context, id uuid.UUID) (PermissionRequest, error) {
	return getRequest(ctx, r.tx, id)
}

// Insert appends a PENDING entry. A concurrent duplicate hits the
// partial unique index and surfaces as shared.ErrConflict.
func (r *txRepository) Insert(ctx context.Context, req PermissionRequest) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO permission_requests
(id, user_id, user_email, permission, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		req.ID, req.UserID, req.UserEmail, string(req.Permission), string(req.Status), req.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return shared.ErrConflict
		}
		return err
	}
	return nil
}

// MarkReviewed flips a PENDING entry to a terminal status. The WHERE
// clause makes the transition conditional: losing a concurrent review
// race yields false instead of a double apply.
func (r *txRepository) MarkReviewed(ctx context.Context, id uuid.UUID, status Status, reviewer uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE permission_requests
SET status = $2, reviewed_at = $3, reviewed_by = $4
WHERE id = $1 AND status = $5`,
		id, string(status), at, reviewer, string(StatusPending))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getRequest(ctx context.Context, q queryer, id uuid.UUID) (PermissionRequest, error) {
	req, err := scanRequest(q.QueryRow(ctx, `SELECT `+requestColumns+` FROM permission_requests WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PermissionRequest{}, shared.ErrNotFound
		}
		return PermissionRequest{}, err
	}
	return req, nil
}

func listRequests(ctx context.Context, q queryer, sql string, args ...any) ([]PermissionRequest, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PermissionRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)

package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/unimaster/unimaster/internal/platform/httpx"
)

// OverviewHandler serves the admin dashboard counters.
type OverviewHandler struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewOverviewHandler constructs the overview endpoint.
func NewOverviewHandler(pool *pgxpool.Pool, logger *slog.Logger) *OverviewHandler {
	return &OverviewHandler{pool: pool, logger: logger}
}

type overviewResponse struct {
	Users           int64 `json:"users"`
	Universities    int64 `json:"universities"`
	Courses         int64 `json:"courses"`
	Materials       int64 `json:"materials"`
	PendingRequests int64 `json:"pendingRequests"`
}

func (h *OverviewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var out overviewResponse
	group, ctx := errgroup.WithContext(r.Context())
	group.Go(h.count(ctx, `SELECT COUNT(*) FROM users`, &out.Users))
	group.Go(h.count(ctx, `SELECT COUNT(*) FROM universities`, &out.Universities))
	group.Go(h.count(ctx, `SELECT COUNT(*) FROM courses`, &out.Courses))
	group.Go(h.count(ctx, `SELECT COUNT(*) FROM materials`, &out.Materials))
	group.Go(h.count(ctx, `SELECT COUNT(*) FROM permission_requests WHERE status = 'PENDING'`, &out.PendingRequests))
	if err := group.Wait(); err != nil {
		h.logger.Error("overview counters", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *OverviewHandler) count(ctx context.Context, query string, dst *int64) func() error {
	return func() error {
		return h.pool.QueryRow(ctx, query).Scan(dst)
	}
}

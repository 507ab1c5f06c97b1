package requests

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/unimaster/unimaster/internal/authz"
	"github.com/unimaster/unimaster/internal/platform/httpx"
	"github.com/unimaster/unimaster/internal/shared"
)

const (
	reviewRateLimit = 30
	exportRateLimit = 10
	rateLimitWindow = time.Minute
)

// Handler wires the ledger endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	exporter  CSVExporter
	authz     authz.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authzMW authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: authzMW, validator: validator.New()}
}

// MountSelfRoutes registers the endpoints any authenticated user calls
// about their own requests.
func (h *Handler) MountSelfRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAuthenticated())
		r.Post("/", h.create)
		r.Get("/pending/{permission}", h.hasPending)
	})
}

// MountAdminRoutes registers the super-admin review surface.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireSuperAdmin())
		r.Get("/", h.list)
		r.Get("/pending", h.listPending)
		r.Group(func(r chi.Router) {
			r.Use(httprate.Limit(reviewRateLimit, rateLimitWindow, httprate.WithKeyFuncs(rateLimitKey)))
			r.Post("/{id}/review", h.review)
		})
		r.Group(func(r chi.Router) {
			r.Use(httprate.Limit(exportRateLimit, rateLimitWindow, httprate.WithKeyFuncs(rateLimitKey)))
			r.Get("/export.csv", h.exportCSV)
		})
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if user := strings.TrimSpace(sess.User()); user != "" {
			return "user:" + user, nil
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr, nil
	}
	return "ip:" + host, nil
}

// RequestResponse is the wire shape of a ledger entry.
type RequestResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"userId"`
	UserEmail  string `json:"userEmail"`
	Permission string `json:"requestedPermission"`
	Status     string `json:"status"`
	Timestamp  int64  `json:"timestamp"`
	ReviewedAt string `json:"reviewedAt,omitempty"`
}

func toResponse(req PermissionRequest) RequestResponse {
	resp := RequestResponse{
		ID:         req.ID.String(),
		UserID:     req.UserID.String(),
		UserEmail:  req.UserEmail,
		Permission: string(req.Permission),
		Status:     string(req.Status),
		Timestamp:  req.CreatedAt.UnixMilli(),
	}
	if req.ReviewedAt != nil {
		resp.ReviewedAt = req.ReviewedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func toResponses(entries []PermissionRequest) []RequestResponse {
	out := make([]RequestResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toResponse(entry))
	}
	return out
}

type createRequest struct {
	Permission string `json:"permission" validate:"required"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	permission, err := authz.ParsePermission(req.Permission)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), actor, permission)
	if err != nil {
		h.logger.Error("create permission request", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) hasPending(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())
	permission, err := authz.ParsePermission(chi.URLParam(r, "permission"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	pending, err := h.service.HasPending(r.Context(), actor, permission)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"pending": pending})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())
	entries, err := h.service.List(r.Context(), actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requests": toResponses(entries)})
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())
	entries, err := h.service.ListPending(r.Context(), actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requests": toResponses(entries)})
}

type reviewRequest struct {
	Action string `json:"action" validate:"required"`
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	var req reviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	action, err := ParseReviewAction(req.Action)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	reviewed, err := h.service.Review(r.Context(), actor, id, action)
	if err != nil {
		h.logger.Error("review permission request",
			slog.Any("error", err),
			slog.String("request_id", id.String()))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(reviewed))
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())
	entries, err := h.service.List(r.Context(), actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	data, err := h.exporter.WriteCSV(entries)
	if err != nil {
		h.logger.Error("encode ledger csv", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="permission-requests.csv"`)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

package materials

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/unimaster/unimaster/internal/authz"
	"github.com/unimaster/unimaster/internal/platform/httpx"
	"github.com/unimaster/unimaster/internal/shared"
)

// Handler wires material endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authz     authz.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authzMW authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: authzMW, validator: validator.New()}
}

// MountRoutes registers material mutation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}", h.get)
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(authz.PermCreateMaterial))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(authz.PermEditMaterial))
		r.Put("/{id}", h.update)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(authz.PermDeleteMaterial))
		r.Delete("/{id}", h.remove)
	})
}

// MountYearRoutes registers the per-year listing on the years subtree.
func (h *Handler) MountYearRoutes(r chi.Router) {
	r.Get("/{id}/materials", h.listByYear)
}

// MaterialResponse is the wire shape of a material.
type MaterialResponse struct {
	ID          string `json:"id"`
	YearID      string `json:"yearId"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	FileURL     string `json:"fileUrl,omitempty"`
	Description string `json:"description,omitempty"`
	UploadedBy  string `json:"uploadedBy"`
	UploadedAt  string `json:"uploadedAt"`
}

func toResponse(m Material) MaterialResponse {
	return MaterialResponse{
		ID:          m.ID.String(),
		YearID:      m.YearID.String(),
		Title:       m.Title,
		Category:    string(m.Category),
		FileURL:     m.FileURL,
		Description: m.Description,
		UploadedBy:  m.UploadedBy.String(),
		UploadedAt:  m.UploadedAt.UTC().Format(time.RFC3339),
	}
}

func toResponses(entries []Material) []MaterialResponse {
	out := make([]MaterialResponse, 0, len(entries))
	for _, m := range entries {
		out = append(out, toResponse(m))
	}
	return out
}

type createRequest struct {
	YearID      string `json:"yearId" validate:"required,uuid"`
	Title       string `json:"title" validate:"required"`
	Category    string `json:"category,omitempty"`
	FileURL     string `json:"fileUrl,omitempty" validate:"omitempty,url"`
	Description string `json:"description,omitempty"`
}

type updateRequest struct {
	Title       string `json:"title,omitempty"`
	Category    string `json:"category,omitempty"`
	FileURL     string `json:"fileUrl,omitempty" validate:"omitempty,url"`
	Description string `json:"description,omitempty"`
}

func (h *Handler) listByYear(w http.ResponseWriter, r *http.Request) {
	yearID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	entries, err := h.service.ListByYear(r.Context(), yearID)
	if err != nil {
		h.logger.Error("list materials", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"materials": toResponses(entries)})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	m, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(m))
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
	category, err := ParseCategory(req.Category)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	yearID, err := uuid.Parse(req.YearID)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	m, err := h.service.Create(r.Context(), actor, CreateInput{
		YearID:      yearID,
		Title:       req.Title,
		Category:    category,
		FileURL:     req.FileURL,
		Description: req.Description,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(m))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	category := Category("")
	if req.Category != "" {
		category, err = ParseCategory(req.Category)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
	}
	m, err := h.service.Update(r.Context(), actor, id, UpdateInput{
		Title:       req.Title,
		Category:    category,
		FileURL:     req.FileURL,
		Description: req.Description,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(m))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

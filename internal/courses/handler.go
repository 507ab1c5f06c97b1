package courses

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/unimaster/unimaster/internal/authz"
	"github.com/unimaster/unimaster/internal/platform/httpx"
	"github.com/unimaster/unimaster/internal/shared"
)

// Handler wires course and year endpoints.
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

// MountRoutes registers course routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}", h.get)
	r.Get("/{id}/years", h.years)
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(authz.PermManageCourses))
		r.Post("/", h.create)
		r.Put("/{id}", h.rename)
		r.Delete("/{id}", h.remove)
		r.Post("/{id}/years/ensure", h.ensureYears)
	})
}

// MountUniversityCourses registers the per-university course listing on
// the universities subtree.
func (h *Handler) MountUniversityCourses(r chi.Router) {
	r.Get("/{id}/courses", h.listByUniversity)
}

// CourseResponse is the wire shape of a course.
type CourseResponse struct {
	ID           string `json:"id"`
	UniversityID string `json:"universityId"`
	Name         string `json:"name"`
}

func toCourseResponse(c Course) CourseResponse {
	return CourseResponse{ID: c.ID.String(), UniversityID: c.UniversityID.String(), Name: c.Name}
}

// YearResponse is the wire shape of a study year.
type YearResponse struct {
	ID         string `json:"id"`
	CourseID   string `json:"courseId"`
	YearNumber int    `json:"yearNumber"`
}

func toYearResponses(years []Year) []YearResponse {
	out := make([]YearResponse, 0, len(years))
	for _, y := range years {
		out = append(out, YearResponse{ID: y.ID.String(), CourseID: y.CourseID.String(), YearNumber: y.YearNumber})
	}
	return out
}

type createCourseRequest struct {
	UniversityID string `json:"universityId" validate:"required,uuid"`
	Name         string `json:"name" validate:"required"`
}

type renameCourseRequest struct {
	Name string `json:"name" validate:"required"`
}

func (h *Handler) listByUniversity(w http.ResponseWriter, r *http.Request) {
	universityID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	entries, err := h.service.ListByUniversity(r.Context(), universityID)
	if err != nil {
		h.logger.Error("list courses", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]CourseResponse, 0, len(entries))
	for _, c := range entries {
		out = append(out, toCourseResponse(c))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"courses": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCourseResponse(c))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())
	var req createCourseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	universityID, err := uuid.Parse(req.UniversityID)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	c, err := h.service.Create(r.Context(), actor, universityID, req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toCourseResponse(c))
}

func (h *Handler) rename(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	var req renameCourseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	c, err := h.service.Rename(r.Context(), actor, id, req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCourseResponse(c))
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

func (h *Handler) years(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	years, err := h.service.Years(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"years": toYearResponses(years)})
}

func (h *Handler) ensureYears(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	years, err := h.service.EnsureYears(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"years": toYearResponses(years)})
}

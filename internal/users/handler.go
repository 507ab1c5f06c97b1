package users

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/unimaster/unimaster/internal/authz"
	"github.com/unimaster/unimaster/internal/platform/httpx"
	"github.com/unimaster/unimaster/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authz     authz.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authzMW authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: authzMW, validator: validator.New()}
}

// MountRoutes registers user management routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(authz.PermManageUsers))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireSuperAdmin())
		r.Post("/", h.create)
		r.Delete("/{id}", h.delete)
	})
}

// UserResponse is the wire shape of an account; credentials never leave
// the server.
type UserResponse struct {
	ID                   string   `json:"id"`
	Email                string   `json:"email"`
	Role                 string   `json:"role"`
	Permissions          []string `json:"permissions"`
	AssignedUniversityID *string  `json:"assignedUniversityId,omitempty"`
	EnrolledUniversityID *string  `json:"enrolledUniversityId,omitempty"`
	EnrolledCourseID     *string  `json:"enrolledCourseId,omitempty"`
	Name                 string   `json:"name,omitempty"`
	DOB                  string   `json:"dob,omitempty"`
	Profession           string   `json:"profession,omitempty"`
	OtherProfession      string   `json:"otherProfession,omitempty"`
	IsActive             bool     `json:"isActive"`
}

// ToResponse converts a domain user into its wire shape.
func ToResponse(u User) UserResponse {
	perms := make([]string, 0, len(u.Permissions))
	for _, p := range u.Permissions {
		perms = append(perms, string(p))
	}
	resp := UserResponse{
		ID:              u.ID.String(),
		Email:           u.Email,
		Role:            string(u.Role),
		Permissions:     perms,
		Name:            u.Name,
		Profession:      string(u.Profession),
		OtherProfession: u.OtherProfession,
		IsActive:        u.IsActive,
	}
	if u.DOB != nil {
		resp.DOB = u.DOB.Format("2006-01-02")
	}
	resp.AssignedUniversityID = uuidString(u.AssignedUniversityID)
	resp.EnrolledUniversityID = uuidString(u.EnrolledUniversityID)
	resp.EnrolledCourseID = uuidString(u.EnrolledCourseID)
	return resp
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

type paginationResponse struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())
	accounts, err := h.service.List(r.Context(), actor)
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
	p := shared.NewPagination(page, perPage, len(accounts))

	from := (p.Page - 1) * p.PerPage
	if from > len(accounts) {
		from = len(accounts)
	}
	to := from + p.PerPage
	if to > len(accounts) {
		to = len(accounts)
	}

	out := make([]UserResponse, 0, to-from)
	for _, u := range accounts[from:to] {
		out = append(out, ToResponse(u))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"users": out,
		"pagination": paginationResponse{
			Page:       p.Page,
			PerPage:    p.PerPage,
			Total:      p.Total,
			TotalPages: p.TotalPages,
		},
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	user, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToResponse(user))
}

type createUserRequest struct {
	Email                string   `json:"email" validate:"required,email"`
	Role                 string   `json:"role" validate:"required"`
	Permissions          []string `json:"permissions" validate:"dive,required"`
	AssignedUniversityID *string  `json:"assignedUniversityId" validate:"omitempty,uuid"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := authz.ParseRole(req.Role)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	perms := make([]authz.Permission, 0, len(req.Permissions))
	for _, raw := range req.Permissions {
		p, err := authz.ParsePermission(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		perms = append(perms, p)
	}
	input := CreateInput{Email: req.Email, Role: role, Permissions: perms}
	if req.AssignedUniversityID != nil {
		uniID, err := uuid.Parse(*req.AssignedUniversityID)
		if err != nil {
			httpx.RespondError(w, shared.ErrValidation)
			return
		}
		input.AssignedUniversityID = &uniID
	}

	user, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		h.logger.Error("create user", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ToResponse(user))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		h.logger.Error("delete user", slog.Any("error", err), slog.String("user_id", id.String()))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package auth

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
	"github.com/unimaster/unimaster/internal/users"
)

const dobLayout = "2006-01-02"

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
	r.Post("/register", h.register)
	r.Post("/activate", h.activate)
	r.Get("/me", h.me)
	r.Get("/email-status", h.emailStatus)
}

type sessionResponse struct {
	User      users.UserResponse `json:"user"`
	CSRFToken string             `json:"csrfToken,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.establishSession(w, r, user, http.StatusOK)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

type registerRequest struct {
	Email                string `json:"email" validate:"required,email"`
	Password             string `json:"password" validate:"required,min=8"`
	Name                 string `json:"name" validate:"required"`
	DOB                  string `json:"dob,omitempty"`
	Profession           string `json:"profession,omitempty"`
	OtherProfession      string `json:"otherProfession,omitempty"`
	EnrolledUniversityID string `json:"enrolledUniversityId,omitempty"`
	EnrolledCourseID     string `json:"enrolledCourseId,omitempty"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	profession, err := users.ParseProfession(req.Profession)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	dob, err := parseDOB(req.DOB)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	enrolledUniversity, err := parseOptionalID(req.EnrolledUniversityID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	enrolledCourse, err := parseOptionalID(req.EnrolledCourseID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.Register(r.Context(), RegisterInput{
		Email:                req.Email,
		Password:             req.Password,
		Name:                 req.Name,
		DOB:                  dob,
		Profession:           profession,
		OtherProfession:      req.OtherProfession,
		EnrolledUniversityID: enrolledUniversity,
		EnrolledCourseID:     enrolledCourse,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.establishSession(w, r, user, http.StatusCreated)
}

type activateRequest struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	Name            string `json:"name" validate:"required"`
	DOB             string `json:"dob,omitempty"`
	Profession      string `json:"profession,omitempty"`
	OtherProfession string `json:"otherProfession,omitempty"`
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	profession, err := users.ParseProfession(req.Profession)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	dob, err := parseDOB(req.DOB)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.Activate(r.Context(), ActivateInput{
		Email:           req.Email,
		Password:        req.Password,
		Name:            req.Name,
		DOB:             dob,
		Profession:      profession,
		OtherProfession: req.OtherProfession,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.establishSession(w, r, user, http.StatusOK)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())
	if actor == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	user, err := h.service.Profile(r.Context(), actor.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	httpx.JSON(w, http.StatusOK, sessionResponse{User: users.ToResponse(user), CSRFToken: csrfToken})
}

type emailStatusResponse struct {
	Exists bool   `json:"exists"`
	Role   string `json:"role,omitempty"`
	Active bool   `json:"active"`
}

func (h *Handler) emailStatus(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "email query parameter required")
		return
	}
	status, err := h.service.LookupEmail(r.Context(), email)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, emailStatusResponse{
		Exists: status.Exists,
		Role:   string(status.Role),
		Active: status.Active,
	})
}

// establishSession binds the session to the user, mirrors it to postgres
// and responds with the profile plus a CSRF token for the frontend.
func (h *Handler) establishSession(w http.ResponseWriter, r *http.Request, user users.User, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken := ""
	if sess != nil {
		sess.SetUser(user.ID.String())
		csrfToken, _ = h.csrfManager.EnsureToken(r.Context(), sess)
		expiresAt := time.Now().Add(h.sessionManager.TTL())
		if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
			h.logger.Warn("register session", slog.Any("error", err))
		}
	} else {
		h.logger.Error("session missing during login")
	}
	httpx.JSON(w, status, sessionResponse{User: users.ToResponse(user), CSRFToken: csrfToken})
}

func parseDOB(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dobLayout, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseOptionalID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

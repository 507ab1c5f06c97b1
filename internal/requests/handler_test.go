package requests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/unimaster/unimaster/internal/authz"
)

func newTestRouter(t *testing.T) (*chi.Mux, *Service, *stubDirectory) {
	t.Helper()
	svc, _, dir, _ := newRequestService(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, svc, authz.Middleware{Logger: logger})

	router := chi.NewRouter()
	router.Route("/requests", handler.MountSelfRoutes)
	router.Route("/admin/requests", handler.MountAdminRoutes)
	return router, svc, dir
}

func doJSON(t *testing.T, router http.Handler, actor *authz.Actor, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != nil {
		req = req.WithContext(authz.ContextWithActor(req.Context(), actor))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)
	actor := studentActor()

	rec := doJSON(t, router, actor, http.MethodPost, "/requests/", map[string]string{"permission": "create_material"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp RequestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, actor.ID.String(), resp.UserID)
	require.Equal(t, "create_material", resp.Permission)
	require.Equal(t, string(StatusPending), resp.Status)
	require.NotZero(t, resp.Timestamp)

	// The duplicate submit returns the surviving entry.
	rec = doJSON(t, router, actor, http.MethodPost, "/requests/", map[string]string{"permission": "create_material"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var dup RequestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dup))
	require.Equal(t, resp.ID, dup.ID)
}

func TestCreateEndpointValidation(t *testing.T) {
	router, _, _ := newTestRouter(t)
	actor := studentActor()

	rec := doJSON(t, router, actor, http.MethodPost, "/requests/", map[string]string{"permission": "launch_rockets"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	rec = doJSON(t, router, actor, http.MethodPost, "/requests/", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, nil, http.MethodPost, "/requests/", map[string]string{"permission": "create_material"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHasPendingEndpoint(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	actor := studentActor()

	rec := doJSON(t, router, actor, http.MethodGet, "/requests/pending/edit_material", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"pending": false}`, rec.Body.String())

	_, err := svc.Create(context.Background(), actor, authz.PermEditMaterial)
	require.NoError(t, err)

	rec = doJSON(t, router, actor, http.MethodGet, "/requests/pending/edit_material", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"pending": true}`, rec.Body.String())
}

func TestReviewEndpoint(t *testing.T) {
	router, svc, dir := newTestRouter(t)
	requester := studentActor()
	reviewer := superActor()

	created, err := svc.Create(context.Background(), requester, authz.PermCreateMaterial)
	require.NoError(t, err)

	target := fmt.Sprintf("/admin/requests/%s/review", created.ID)
	rec := doJSON(t, router, reviewer, http.MethodPost, target, map[string]string{"action": "APPROVE"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RequestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, string(StatusApproved), resp.Status)
	require.NotEmpty(t, resp.ReviewedAt)
	require.Equal(t, []authz.Permission{authz.PermCreateMaterial}, dir.grants[requester.ID])

	// Terminal now; a second review is rejected.
	rec = doJSON(t, router, reviewer, http.MethodPost, target, map[string]string{"action": "REJECT"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestReviewEndpointGuards(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	requester := studentActor()

	created, err := svc.Create(context.Background(), requester, authz.PermCreateMaterial)
	require.NoError(t, err)
	target := fmt.Sprintf("/admin/requests/%s/review", created.ID)

	admin := &authz.Actor{ID: uuid.New(), Role: authz.RoleAdmin, Permissions: authz.AllPermissions()}
	rec := doJSON(t, router, admin, http.MethodPost, target, map[string]string{"action": "APPROVE"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, superActor(), http.MethodPost, target, map[string]string{"action": "ESCALATE"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, superActor(), http.MethodPost, "/admin/requests/not-a-uuid/review", map[string]string{"action": "APPROVE"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, superActor(), http.MethodPost, fmt.Sprintf("/admin/requests/%s/review", uuid.New()), map[string]string{"action": "APPROVE"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListEndpoints(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	reviewer := superActor()

	first, err := svc.Create(context.Background(), studentActor(), authz.PermCreateMaterial)
	require.NoError(t, err)
	_, err = svc.Review(context.Background(), reviewer, first.ID, ActionReject)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), studentActor(), authz.PermManageCourses)
	require.NoError(t, err)

	rec := doJSON(t, router, reviewer, http.MethodGet, "/admin/requests/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pending struct {
		Requests []RequestResponse `json:"requests"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	require.Len(t, pending.Requests, 1)
	require.Equal(t, "manage_courses", pending.Requests[0].Permission)

	rec = doJSON(t, router, reviewer, http.MethodGet, "/admin/requests/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all struct {
		Requests []RequestResponse `json:"requests"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all.Requests, 2)

	rec = doJSON(t, router, studentActor(), http.MethodGet, "/admin/requests/", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestExportEndpoint(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	reviewer := superActor()

	created, err := svc.Create(context.Background(), studentActor(), authz.PermCreateMaterial)
	require.NoError(t, err)
	_, err = svc.Review(context.Background(), reviewer, created.ID, ActionApprove)
	require.NoError(t, err)

	rec := doJSON(t, router, reviewer, http.MethodGet, "/admin/requests/export.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	require.Contains(t, rec.Header().Get("Content-Disposition"), "permission-requests.csv")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\r\n")
	require.Len(t, lines, 2)
	require.Equal(t, "id,user_id,user_email,permission,status,created_at,reviewed_at,reviewed_by", lines[0])
	require.Contains(t, lines[1], created.ID.String())
	require.Contains(t, lines[1], string(StatusApproved))
}

func TestExportCSVEscapes(t *testing.T) {
	now := time.Now().UTC()
	entry := PermissionRequest{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		UserEmail:  `"tricky, user"@example.edu`,
		Permission: authz.PermCreateMaterial,
		Status:     StatusPending,
		CreatedAt:  now,
	}
	data, err := CSVExporter{}.WriteCSV([]PermissionRequest{entry})
	require.NoError(t, err)
	require.Contains(t, string(data), `"""tricky, user""@example.edu"`)
}

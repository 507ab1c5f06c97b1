package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/unimaster/unimaster/internal/auth"
	"github.com/unimaster/unimaster/internal/authz"
	"github.com/unimaster/unimaster/internal/shared"
	"github.com/unimaster/unimaster/internal/users"
	_ "github.com/unimaster/unimaster/testing"
)

type memoryUsers struct {
	mu   sync.Mutex
	byID map[uuid.UUID]users.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byID: make(map[uuid.UUID]users.User)}
}

func (s *memoryUsers) GetByID(_ context.Context, id uuid.UUID) (users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return users.User{}, shared.ErrNotFound
	}
	return u, nil
}

func (s *memoryUsers) GetByEmail(_ context.Context, email string) (users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return users.User{}, shared.ErrNotFound
}

func (s *memoryUsers) Insert(_ context.Context, u users.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byID {
		if existing.Email == u.Email {
			return shared.ErrConflict
		}
	}
	s.byID[u.ID] = u
	return nil
}

func (s *memoryUsers) Activate(_ context.Context, id uuid.UUID, passwordHash, name string, dob *time.Time, profession users.Profession, otherProfession string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.Name = name
	u.DOB = dob
	u.Profession = profession
	u.OtherProfession = otherProfession
	u.IsActive = true
	s.byID[id] = u
	return nil
}

type noopSessions struct{}

func (noopSessions) CreateSession(context.Context, string, uuid.UUID, time.Time, string, string) error {
	return nil
}
func (noopSessions) DeleteSession(context.Context, string) error { return nil }
func (noopSessions) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type authEnv struct {
	router  http.Handler
	store   *memoryUsers
	manager *shared.SessionManager
}

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	store := newMemoryUsers()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	service := auth.NewService(store, noopSessions{})
	handler := auth.NewHandler(logger, service, sessionManager, csrfManager)

	authzMW := authz.Middleware{Source: actorSource{store}, Logger: logger}
	router := chi.NewRouter()
	router.Use(sessionMiddleware(sessionManager))
	router.Use(authzMW.WithActor)
	router.Route("/auth", handler.MountRoutes)
	return &authEnv{router: router, store: store, manager: sessionManager}
}

type actorSource struct {
	store *memoryUsers
}

func (s actorSource) ActorByID(ctx context.Context, id uuid.UUID) (*authz.Actor, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.Actor(), nil
}

type commitWriter struct {
	http.ResponseWriter
	manager       *shared.SessionManager
	sess          *shared.Session
	ctx           context.Context
	req           *http.Request
	headerWritten bool
}

func (w *commitWriter) WriteHeader(statusCode int) {
	if !w.headerWritten {
		w.headerWritten = true
		_ = w.manager.Commit(w.ctx, w.ResponseWriter, w.req, w.sess)
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *commitWriter) Write(data []byte) (int, error) {
	if !w.headerWritten {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(data)
}

func sessionMiddleware(manager *shared.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := manager.Load(r.Context(), r)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			ctx := shared.ContextWithSession(r.Context(), sess)
			wrapped := &commitWriter{ResponseWriter: w, manager: manager, sess: sess, ctx: ctx, req: r.WithContext(ctx)}
			next.ServeHTTP(wrapped, r.WithContext(ctx))
		})
	}
}

func (e *authEnv) seed(t *testing.T, email, password string, role authz.Role, active bool) users.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u := users.User{ID: uuid.New(), Email: email, Role: role, PasswordHash: string(hash), IsActive: active}
	require.NoError(t, e.store.Insert(context.Background(), u))
	return u
}

func (e *authEnv) do(t *testing.T, method, target string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
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
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, manager *shared.SessionManager, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == manager.CookieName() && c.Value != "" {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func TestLoginFlow(t *testing.T) {
	env := newAuthEnv(t)
	seeded := env.seed(t, "user@example.edu", "correct-horse", authz.RoleStudent, true)

	rec := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "user@example.edu",
		"password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		User      users.UserResponse `json:"user"`
		CSRFToken string             `json:"csrfToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, seeded.ID.String(), resp.User.ID)
	require.NotEmpty(t, resp.CSRFToken)

	cookie := sessionCookie(t, env.manager, rec)

	// The session now resolves the actor on /auth/me.
	rec = env.do(t, http.MethodGet, "/auth/me", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, seeded.ID.String(), resp.User.ID)

	// Logout destroys the session.
	rec = env.do(t, http.MethodPost, "/auth/logout", nil, cookie)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/auth/me", nil, cookie)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newAuthEnv(t)
	env.seed(t, "user@example.edu", "correct-horse", authz.RoleStudent, true)

	rec := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "user@example.edu",
		"password": "wrong-horse",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "user@example.edu",
		"password": "short",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterEndpoint(t *testing.T) {
	env := newAuthEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", map[string]string{
		"email":      "fresh@example.edu",
		"password":   "supersecret",
		"name":       "Fresh Student",
		"dob":        "2001-09-11",
		"profession": "student",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		User users.UserResponse `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "student", resp.User.Role)
	require.Equal(t, "2001-09-11", resp.User.DOB)
	require.Empty(t, resp.User.Permissions)

	// Signup logs the student in.
	cookie := sessionCookie(t, env.manager, rec)
	rec = env.do(t, http.MethodGet, "/auth/me", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	// Duplicate email conflicts.
	rec = env.do(t, http.MethodPost, "/auth/register", map[string]string{
		"email":    "fresh@example.edu",
		"password": "supersecret",
		"name":     "Other",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	// Malformed date is a validation failure.
	rec = env.do(t, http.MethodPost, "/auth/register", map[string]string{
		"email":    "another@example.edu",
		"password": "supersecret",
		"name":     "Another",
		"dob":      "11/09/2001",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActivateEndpoint(t *testing.T) {
	env := newAuthEnv(t)
	invited := users.User{ID: uuid.New(), Email: "invited@example.edu", Role: authz.RoleAdmin}
	require.NoError(t, env.store.Insert(context.Background(), invited))

	rec := env.do(t, http.MethodPost, "/auth/activate", map[string]string{
		"email":    "invited@example.edu",
		"password": "chosen-password",
		"name":     "Invited Admin",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		User users.UserResponse `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.User.IsActive)

	// Activation is one-shot.
	rec = env.do(t, http.MethodPost, "/auth/activate", map[string]string{
		"email":    "invited@example.edu",
		"password": "another-password",
		"name":     "Invited Admin",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPost, "/auth/activate", map[string]string{
		"email":    "ghost@example.edu",
		"password": "whatever1",
		"name":     "Ghost",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEmailStatusEndpoint(t *testing.T) {
	env := newAuthEnv(t)
	env.seed(t, "admin@example.edu", "supersecret", authz.RoleAdmin, false)

	rec := env.do(t, http.MethodGet, "/auth/email-status?email=admin@example.edu", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"exists": true, "role": "admin", "active": false}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/auth/email-status?email=nobody@example.edu", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"exists": false, "active": false}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/auth/email-status", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

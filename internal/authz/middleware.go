package authz

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/unimaster/unimaster/internal/platform/httpx"
	"github.com/unimaster/unimaster/internal/shared"
)

type actorContextKey struct{}

// ContextWithActor stores the resolved actor in context.
func ContextWithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor placed by the identity middleware.
// Returns nil for unauthenticated requests.
func ActorFromContext(ctx context.Context) *Actor {
	actor, _ := ctx.Value(actorContextKey{}).(*Actor)
	return actor
}

// ActorSource resolves an actor from durable storage. The permission set
// is re-read per request so grants take effect without re-login.
type ActorSource interface {
	ActorByID(ctx context.Context, id uuid.UUID) (*Actor, error)
}

// Middleware wires authorization helpers for HTTP handlers.
type Middleware struct {
	Source ActorSource
	Logger *slog.Logger
}

// WithActor resolves the session user into an Actor and stores it in
// context. Requests without a session pass through unauthenticated.
func (m Middleware) WithActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil {
			next.ServeHTTP(w, r)
			return
		}
		raw := strings.TrimSpace(sess.User())
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("authz parse user id", slog.String("value", raw))
			}
			next.ServeHTTP(w, r)
			return
		}
		actor, err := m.Source.ActorByID(r.Context(), id)
		if err != nil {
			// Stale session referencing a deleted user: treat as anonymous.
			if m.Logger != nil {
				m.Logger.Warn("authz resolve actor", slog.Any("error", err))
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
	})
}

// Require ensures the current actor holds the permission.
func (m Middleware) Require(p Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ActorFromContext(r.Context())
			if actor == nil {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			if !HasPermission(actor, p) {
				httpx.RespondError(w, shared.ErrPermissionDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSuperAdmin restricts a route to super admins.
func (m Middleware) RequireSuperAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ActorFromContext(r.Context())
			if actor == nil {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			if !IsSuperAdmin(actor) {
				httpx.RespondError(w, shared.ErrPermissionDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuthenticated only demands a resolved actor, any role.
func (m Middleware) RequireAuthenticated() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ActorFromContext(r.Context()) == nil {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

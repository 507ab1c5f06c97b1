package requests

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/unimaster/unimaster/internal/authz"
	"github.com/unimaster/unimaster/internal/shared"
)

type memoryLedger struct {
	mu       sync.Mutex
	requests map[uuid.UUID]PermissionRequest
	order    []uuid.UUID
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{requests: make(map[uuid.UUID]PermissionRequest)}
}

func (m *memoryLedger) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, (*memoryTx)(m))
}

func (m *memoryLedger) Get(ctx context.Context, id uuid.UUID) (PermissionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (*memoryTx)(m).Get(ctx, id)
}

func (m *memoryLedger) ListPending(context.Context) ([]PermissionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PermissionRequest
	for _, id := range m.order {
		if req := m.requests[id]; req.Status == StatusPending {
			out = append(out, req)
		}
	}
	return out, nil
}

func (m *memoryLedger) List(context.Context) ([]PermissionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PermissionRequest
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, m.requests[m.order[i]])
	}
	return out, nil
}

func (m *memoryLedger) FindPending(_ context.Context, userID uuid.UUID, p authz.Permission) (PermissionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		req := m.requests[id]
		if req.UserID == userID && req.Permission == p && req.Status == StatusPending {
			return req, nil
		}
	}
	return PermissionRequest{}, shared.ErrNotFound
}

func (m *memoryLedger) HasPending(ctx context.Context, userID uuid.UUID, p authz.Permission) (bool, error) {
	_, err := m.FindPending(ctx, userID, p)
	if err == nil {
		return true, nil
	}
	return false, nil
}

// memoryTx mirrors the partial unique index: a second PENDING entry for
// the same (user, permission) pair is a conflict.
type memoryTx memoryLedger

func (m *memoryTx) Get(_ context.Context, id uuid.UUID) (PermissionRequest, error) {
	req, ok := m.requests[id]
	if !ok {
		return PermissionRequest{}, shared.ErrNotFound
	}
	return req, nil
}

func (m *memoryTx) Insert(_ context.Context, req PermissionRequest) error {
	for _, id := range m.order {
		existing := m.requests[id]
		if existing.UserID == req.UserID && existing.Permission == req.Permission && existing.Status == StatusPending {
			return shared.ErrConflict
		}
	}
	m.requests[req.ID] = req
	m.order = append(m.order, req.ID)
	return nil
}

func (m *memoryTx) MarkReviewed(_ context.Context, id uuid.UUID, status Status, reviewer uuid.UUID, at time.Time) (bool, error) {
	req, ok := m.requests[id]
	if !ok || req.Status != StatusPending {
		return false, nil
	}
	req.Status = status
	req.ReviewedAt = &at
	req.ReviewedBy = &reviewer
	m.requests[id] = req
	return true, nil
}

type stubDirectory struct {
	mu      sync.Mutex
	grants  map[uuid.UUID][]authz.Permission
	missing map[uuid.UUID]bool
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{grants: make(map[uuid.UUID][]authz.Permission), missing: make(map[uuid.UUID]bool)}
}

func (d *stubDirectory) GrantPermission(_ context.Context, userID uuid.UUID, p authz.Permission) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.missing[userID] {
		return shared.ErrNotFound
	}
	for _, held := range d.grants[userID] {
		if held == p {
			return nil
		}
	}
	d.grants[userID] = append(d.grants[userID], p)
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []string
	fail  bool
	calls int
}

func (n *recordingNotifier) RequestReviewed(_ context.Context, email string, _ authz.Permission, _ bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.fail {
		return context.DeadlineExceeded
	}
	n.sent = append(n.sent, email)
	return nil
}

func newRequestService(t *testing.T) (*Service, *memoryLedger, *stubDirectory, *recordingNotifier) {
	t.Helper()
	ledger := newMemoryLedger()
	dir := newStubDirectory()
	notifier := &recordingNotifier{}
	svc := NewService(ledger, dir, nil, notifier, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, ledger, dir, notifier
}

func studentActor() *authz.Actor {
	return &authz.Actor{ID: uuid.New(), Email: "student@example.edu", Role: authz.RoleStudent}
}

func superActor() *authz.Actor {
	return &authz.Actor{ID: uuid.New(), Email: "root@example.edu", Role: authz.RoleSuperAdmin}
}

func TestCreateIsIdempotentWhilePending(t *testing.T) {
	svc, ledger, _, _ := newRequestService(t)
	actor := studentActor()
	ctx := context.Background()

	first, err := svc.Create(ctx, actor, authz.PermCreateMaterial)
	require.NoError(t, err)
	require.Equal(t, StatusPending, first.Status)
	require.Equal(t, actor.Email, first.UserEmail)

	second, err := svc.Create(ctx, actor, authz.PermCreateMaterial)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	all, err := ledger.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	// A different permission from the same user is a separate entry.
	_, err = svc.Create(ctx, actor, authz.PermEditMaterial)
	require.NoError(t, err)
	all, err = ledger.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestCreateRejectsAnonymousAndSuperAdmin(t *testing.T) {
	svc, _, _, _ := newRequestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, nil, authz.PermCreateMaterial)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)

	_, err = svc.Create(ctx, superActor(), authz.PermCreateMaterial)
	require.ErrorIs(t, err, shared.ErrInvalidOperation)
}

func TestCreateSurvivesDoubleSubmitRace(t *testing.T) {
	svc, ledger, _, _ := newRequestService(t)
	actor := studentActor()
	ctx := context.Background()

	// Pre-insert past the FindPending short circuit so Create hits the
	// unique index, the shape a concurrent double submit leaves behind.
	raced := PermissionRequest{
		ID:         uuid.New(),
		UserID:     actor.ID,
		UserEmail:  actor.Email,
		Permission: authz.PermCreateMaterial,
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	findCalls := 0
	svc.repo = &racingLedger{memoryLedger: ledger, preInsert: raced, findCalls: &findCalls}

	got, err := svc.Create(ctx, actor, authz.PermCreateMaterial)
	require.NoError(t, err)
	require.Equal(t, raced.ID, got.ID)

	all, err := ledger.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

// racingLedger reports no pending entry on the first lookup, then slips
// a competing insert in before the caller's own transaction runs.
type racingLedger struct {
	*memoryLedger
	preInsert PermissionRequest
	findCalls *int
}

func (r *racingLedger) FindPending(ctx context.Context, userID uuid.UUID, p authz.Permission) (PermissionRequest, error) {
	*r.findCalls++
	if *r.findCalls == 1 {
		return PermissionRequest{}, shared.ErrNotFound
	}
	return r.memoryLedger.FindPending(ctx, userID, p)
}

func (r *racingLedger) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r.preInsert.ID != uuid.Nil {
		err := r.memoryLedger.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.Insert(ctx, r.preInsert)
		})
		if err != nil {
			return err
		}
		r.preInsert = PermissionRequest{}
	}
	return r.memoryLedger.WithTx(ctx, fn)
}

func TestHasPendingTracksLifecycle(t *testing.T) {
	svc, _, _, _ := newRequestService(t)
	actor := studentActor()
	ctx := context.Background()

	pending, err := svc.HasPending(ctx, actor, authz.PermCreateMaterial)
	require.NoError(t, err)
	require.False(t, pending)

	req, err := svc.Create(ctx, actor, authz.PermCreateMaterial)
	require.NoError(t, err)

	pending, err = svc.HasPending(ctx, actor, authz.PermCreateMaterial)
	require.NoError(t, err)
	require.True(t, pending)

	_, err = svc.Review(ctx, superActor(), req.ID, ActionReject)
	require.NoError(t, err)

	pending, err = svc.HasPending(ctx, actor, authz.PermCreateMaterial)
	require.NoError(t, err)
	require.False(t, pending)
}

func TestReviewApproveGrantsExactlyOnce(t *testing.T) {
	svc, _, dir, notifier := newRequestService(t)
	actor := studentActor()
	reviewer := superActor()
	ctx := context.Background()

	req, err := svc.Create(ctx, actor, authz.PermCreateMaterial)
	require.NoError(t, err)

	// The user already holds the permission through some earlier grant;
	// approval must not duplicate it.
	require.NoError(t, dir.GrantPermission(ctx, actor.ID, authz.PermCreateMaterial))

	reviewed, err := svc.Review(ctx, reviewer, req.ID, ActionApprove)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, reviewed.Status)
	require.NotNil(t, reviewed.ReviewedAt)
	require.NotNil(t, reviewed.ReviewedBy)
	require.Equal(t, reviewer.ID, *reviewed.ReviewedBy)
	require.Equal(t, []authz.Permission{authz.PermCreateMaterial}, dir.grants[actor.ID])
	require.Equal(t, []string{actor.Email}, notifier.sent)
}

func TestReviewRejectDoesNotGrant(t *testing.T) {
	svc, _, dir, _ := newRequestService(t)
	actor := studentActor()
	ctx := context.Background()

	req, err := svc.Create(ctx, actor, authz.PermDeleteMaterial)
	require.NoError(t, err)

	reviewed, err := svc.Review(ctx, superActor(), req.ID, ActionReject)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, reviewed.Status)
	require.Empty(t, dir.grants[actor.ID])
}

func TestReviewTerminalStatesAreClosed(t *testing.T) {
	svc, _, _, _ := newRequestService(t)
	actor := studentActor()
	reviewer := superActor()
	ctx := context.Background()

	req, err := svc.Create(ctx, actor, authz.PermCreateMaterial)
	require.NoError(t, err)
	_, err = svc.Review(ctx, reviewer, req.ID, ActionApprove)
	require.NoError(t, err)

	for _, action := range []ReviewAction{ActionApprove, ActionReject} {
		_, err = svc.Review(ctx, reviewer, req.ID, action)
		require.ErrorIs(t, err, shared.ErrInvalidOperation)
	}
}

func TestReviewRequiresSuperAdmin(t *testing.T) {
	svc, _, _, _ := newRequestService(t)
	actor := studentActor()
	ctx := context.Background()

	req, err := svc.Create(ctx, actor, authz.PermCreateMaterial)
	require.NoError(t, err)

	admin := &authz.Actor{ID: uuid.New(), Role: authz.RoleAdmin, Permissions: authz.AllPermissions()}
	_, err = svc.Review(ctx, admin, req.ID, ActionApprove)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	_, err = svc.Review(ctx, nil, req.ID, ActionApprove)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestReviewUnknownRequest(t *testing.T) {
	svc, _, _, _ := newRequestService(t)
	_, err := svc.Review(context.Background(), superActor(), uuid.New(), ActionApprove)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReviewApproveSkipsDeletedUser(t *testing.T) {
	svc, _, dir, _ := newRequestService(t)
	actor := studentActor()
	ctx := context.Background()

	req, err := svc.Create(ctx, actor, authz.PermCreateMaterial)
	require.NoError(t, err)
	dir.missing[actor.ID] = true

	reviewed, err := svc.Review(ctx, superActor(), req.ID, ActionApprove)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, reviewed.Status)
	require.Empty(t, dir.grants[actor.ID])
}

func TestReviewNotifierFailureIsNotFatal(t *testing.T) {
	svc, _, _, notifier := newRequestService(t)
	notifier.fail = true
	actor := studentActor()
	ctx := context.Background()

	req, err := svc.Create(ctx, actor, authz.PermCreateMaterial)
	require.NoError(t, err)

	_, err = svc.Review(ctx, superActor(), req.ID, ActionApprove)
	require.NoError(t, err)
	require.Equal(t, 1, notifier.calls)
}

func TestListOrdering(t *testing.T) {
	svc, _, _, _ := newRequestService(t)
	reviewer := superActor()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	first, err := svc.Create(ctx, studentActor(), authz.PermCreateMaterial)
	require.NoError(t, err)
	second, err := svc.Create(ctx, studentActor(), authz.PermManageCourses)
	require.NoError(t, err)

	pending, err := svc.ListPending(ctx, reviewer)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, first.ID, pending[0].ID)
	require.Equal(t, second.ID, pending[1].ID)

	all, err := svc.List(ctx, reviewer)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, second.ID, all[0].ID)

	_, err = svc.ListPending(ctx, studentActor())
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
}

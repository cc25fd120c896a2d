package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/ebuddy/internal/identity"
	"github.com/hitoshi/ebuddy/internal/identity/local"
	"github.com/hitoshi/ebuddy/internal/model"
	"github.com/hitoshi/ebuddy/internal/store"
)

// flakyBackend はリフレッシュだけを失敗させるためにlocal.Backendを包む。
type flakyBackend struct {
	*local.Backend
	refreshErr error
}

func (f *flakyBackend) Refresh(ctx context.Context, refreshToken string) (*identity.Tokens, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.Backend.Refresh(ctx, refreshToken)
}

func newLocalBackend(t *testing.T) *local.Backend {
	t.Helper()
	b, err := local.New(local.Config{SigningKey: "test-key", BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	return b
}

type transitionLog struct {
	mu    sync.Mutex
	steps []string
}

func (l *transitionLog) record(from, to State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, from.String()+"->"+to.String())
}

func (l *transitionLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.steps...)
}

func waitState(t *testing.T, s *Synchronizer, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want },
		2*time.Second, 5*time.Millisecond, "synchronizer never reached %s (now %s)", want, s.State())
}

func TestSynchronizer_AnonymousStart(t *testing.T) {
	auth := identity.NewAuth(newLocalBackend(t))
	st := store.New()
	log := &transitionLog{}
	s := NewSynchronizer(auth, st, WithTransitionFunc(log.record))

	assert.Equal(t, Uninitialized, s.State())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	waitState(t, s, SyncedAnon)
	assert.Equal(t, []string{"uninitialized->syncing", "syncing->synced_anon"}, log.snapshot())
	assert.False(t, st.Session().IsAuthenticated)
}

func TestSynchronizer_SignInThenSignOut(t *testing.T) {
	ctx := context.Background()
	backend := newLocalBackend(t)
	_, err := backend.SignUp(ctx, "user@example.com", "secret1")
	require.NoError(t, err)

	auth := identity.NewAuth(backend)
	st := store.New()
	s := NewSynchronizer(auth, st)
	require.NoError(t, s.Start(ctx))
	defer s.Stop()
	waitState(t, s, SyncedAnon)

	u, err := auth.SignInWithEmailAndPassword(ctx, "user@example.com", "secret1")
	require.NoError(t, err)

	waitState(t, s, SyncedAuth)
	require.Eventually(t, func() bool { return st.Session().IsAuthenticated }, time.Second, 5*time.Millisecond)
	assert.Equal(t, u.UID, st.Session().UserID)

	st.Dispatch(store.FetchUserSuccess{Profile: &model.UserProfile{ID: u.UID, Name: "Alice"}})
	require.NoError(t, auth.SignOut(ctx))
	waitState(t, s, SyncedAnon)
	require.Eventually(t, func() bool { return !st.Session().IsAuthenticated }, time.Second, 5*time.Millisecond)
	assert.Nil(t, st.Snapshot().User.Profile)
}

func TestSynchronizer_ProviderErrorMovesToFailed(t *testing.T) {
	ctx := context.Background()
	inner := newLocalBackend(t)
	backend := &flakyBackend{Backend: inner}
	_, err := inner.SignUp(ctx, "user@example.com", "secret1")
	require.NoError(t, err)

	auth := identity.NewAuth(backend)
	_, err = auth.SignInWithEmailAndPassword(ctx, "user@example.com", "secret1")
	require.NoError(t, err)

	st := store.New()
	st.Dispatch(store.LoginPending{})
	s := NewSynchronizer(auth, st)
	require.NoError(t, s.Start(ctx))
	defer s.Stop()
	waitState(t, s, SyncedAuth)

	backend.refreshErr = identity.NetworkError(errors.New("connection reset"))
	_, err = auth.IDToken(ctx, true)
	require.Error(t, err)

	waitState(t, s, Failed)
	<-s.Done()
	assert.NotEmpty(t, s.LastError())
	snap := st.Snapshot()
	assert.False(t, snap.Auth.Login.Pending)
	assert.NotEmpty(t, snap.Auth.Error)
	assert.Equal(t, 0, auth.SubscriberCount(), "subscription must be terminated after an error")

	// 以降の通知では遷移しない
	require.NoError(t, auth.SignOut(ctx))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, Failed, s.State())
}

func TestSynchronizer_StopPreventsFurtherTransitions(t *testing.T) {
	ctx := context.Background()
	backend := newLocalBackend(t)
	_, err := backend.SignUp(ctx, "user@example.com", "secret1")
	require.NoError(t, err)

	auth := identity.NewAuth(backend)
	st := store.New()
	s := NewSynchronizer(auth, st)
	require.NoError(t, s.Start(ctx))
	waitState(t, s, SyncedAnon)

	s.Stop()
	assert.Equal(t, 0, auth.SubscriberCount())

	_, err = auth.SignInWithEmailAndPassword(ctx, "user@example.com", "secret1")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, SyncedAnon, s.State())
	assert.False(t, st.Session().IsAuthenticated)

	assert.ErrorIs(t, s.Start(ctx), ErrAlreadyStarted)
}

func TestSynchronizer_ContextCancelStops(t *testing.T) {
	auth := identity.NewAuth(newLocalBackend(t))
	s := NewSynchronizer(auth, store.New())
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	waitState(t, s, SyncedAnon)

	cancel()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("synchronizer did not stop on context cancel")
	}
	assert.Equal(t, 0, auth.SubscriberCount())
}

func TestSynchronizer_EventsAppliedInOrder(t *testing.T) {
	ctx := context.Background()
	backend := newLocalBackend(t)
	_, err := backend.SignUp(ctx, "user@example.com", "secret1")
	require.NoError(t, err)

	auth := identity.NewAuth(backend)
	st := store.New()
	log := &transitionLog{}
	s := NewSynchronizer(auth, st, WithTransitionFunc(log.record))
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	for i := 0; i < 3; i++ {
		_, err := auth.SignInWithEmailAndPassword(ctx, "user@example.com", "secret1")
		require.NoError(t, err)
		require.NoError(t, auth.SignOut(ctx))
	}

	require.Eventually(t, func() bool { return len(log.snapshot()) == 8 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{
		"uninitialized->syncing",
		"syncing->synced_anon",
		"synced_anon->synced_auth",
		"synced_auth->synced_anon",
		"synced_anon->synced_auth",
		"synced_auth->synced_anon",
		"synced_anon->synced_auth",
		"synced_auth->synced_anon",
	}, log.snapshot())
	assert.False(t, st.Session().IsAuthenticated)
}

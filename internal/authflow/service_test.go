package authflow_test

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/oauth2-proxy/mockoidc"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisstore "go.pilab.hu/authgate/cache/redis"
	"go.pilab.hu/authgate/domain"
	"go.pilab.hu/authgate/internal/authflow"
	"go.pilab.hu/authgate/internal/oidcflow"
	"go.pilab.hu/authgate/internal/reconcile"
)

// fakeUserRepo is an in-memory domain.UserRepository with the same unique
// username guarantee the MongoDB repository gets from its index.
type fakeUserRepo struct {
	mu        sync.Mutex
	users     map[string]*domain.User
	unbounded bool // a call arrived on a context with no deadline
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*domain.User)}
}

func (f *fakeUserRepo) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noteDeadline(ctx)
	u, ok := f.users[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

// noteDeadline must be called with the mutex held.
func (f *fakeUserRepo) noteDeadline(ctx context.Context) {
	if _, ok := ctx.Deadline(); !ok {
		f.unbounded = true
	}
}

func (f *fakeUserRepo) sawUnboundedCall() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unbounded
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, user *domain.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noteDeadline(ctx)
	if _, ok := f.users[user.Username]; ok {
		return domain.ErrUsernameTaken
	}
	user.ID = "user-" + user.Username
	user.CreatedDate = time.Now().UTC()
	user.ModifiedDate = user.CreatedDate
	cp := *user
	f.users[user.Username] = &cp
	return nil
}

type flowFixture struct {
	svc      *authflow.Service
	sessions *redisstore.SessionStore
	redis    *miniredis.Miniredis
	provider *mockoidc.MockOIDC
	users    *fakeUserRepo
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()

	m, err := mockoidc.Run()
	require.NoError(t, err)
	t.Cleanup(func() { m.Shutdown() })

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	sessions := redisstore.NewSessionStore(client, "authgate", 0)

	flows := oidcflow.NewFlowStore(10 * time.Minute)
	t.Cleanup(flows.Stop)

	users := newFakeUserRepo()

	svc, err := authflow.NewService(context.Background(), authflow.Config{
		Issuer:       m.Issuer(),
		ClientID:     m.Config().ClientID,
		ClientSecret: m.Config().ClientSecret,
		RedirectURL:  "http://gateway.local/auth/openid/return",
		StoreTimeout: 2 * time.Second,
	}, flows, reconcile.NewReconciler(users), sessions)
	require.NoError(t, err)

	return &flowFixture{svc: svc, sessions: sessions, redis: mr, provider: m, users: users}
}

// authorize drives the provider's authorization endpoint the way a browser
// would and returns the state and code posted back to the gateway.
func (f *flowFixture) authorize(t *testing.T, authURL string) (state, code string) {
	t.Helper()

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Get(authURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	return loc.Query().Get("state"), loc.Query().Get("code")
}

func (f *flowFixture) login(t *testing.T, user *mockoidc.MockUser) (*domain.SessionPayload, error) {
	t.Helper()

	f.provider.QueueUser(user)
	authURL, err := f.svc.BeginLogin(context.Background())
	require.NoError(t, err)

	state, code := f.authorize(t, authURL)
	return f.svc.CompleteCallback(context.Background(), authflow.CallbackRequest{State: state, Code: code})
}

func TestCompleteCallback_FreshLoginEstablishesSession(t *testing.T) {
	f := newFlowFixture(t)

	payload, err := f.login(t, &mockoidc.MockUser{Subject: "abc-1", PreferredUsername: "alice01"})
	require.NoError(t, err)

	assert.Equal(t, "abc-1", payload.OID)
	assert.Equal(t, "alice01", payload.Username)
	assert.NotEmpty(t, payload.UserID)

	// The session must already be readable: the commit happened before
	// CompleteCallback returned.
	stored, err := f.sessions.Get(context.Background(), "abc-1")
	require.NoError(t, err)
	assert.Equal(t, payload, stored)

	assert.Equal(t, 1, f.users.count())
}

func TestCompleteCallback_UserStoreCallsAreBounded(t *testing.T) {
	f := newFlowFixture(t)

	_, err := f.login(t, &mockoidc.MockUser{Subject: "abc-1", PreferredUsername: "alice01"})
	require.NoError(t, err)

	// Every user-store round trip on the callback path must carry a
	// deadline; a hung document database has to resolve the login instead
	// of leaving the browser waiting forever.
	assert.False(t, f.users.sawUnboundedCall(), "user store was called without a deadline")
}

func TestCompleteCallback_ReLoginOverwritesSession(t *testing.T) {
	f := newFlowFixture(t)

	first, err := f.login(t, &mockoidc.MockUser{Subject: "abc-1", PreferredUsername: "alice01"})
	require.NoError(t, err)

	second, err := f.login(t, &mockoidc.MockUser{Subject: "abc-1", PreferredUsername: "alice01"})
	require.NoError(t, err)

	// Same user record both times, last write wins in the store.
	assert.Equal(t, first.UserID, second.UserID)
	assert.Equal(t, 1, f.users.count())
	stored, err := f.sessions.Get(context.Background(), "abc-1")
	require.NoError(t, err)
	assert.Equal(t, second, stored)
}

func TestCompleteCallback_ProviderErrorIsDenied(t *testing.T) {
	f := newFlowFixture(t)

	_, err := f.svc.CompleteCallback(context.Background(), authflow.CallbackRequest{
		ProviderError:    "access_denied",
		ErrorDescription: "user cancelled",
	})
	assert.ErrorIs(t, err, authflow.ErrProviderDenied)
}

func TestCompleteCallback_UnknownStateIsDenied(t *testing.T) {
	f := newFlowFixture(t)

	_, err := f.svc.CompleteCallback(context.Background(), authflow.CallbackRequest{
		State: "forged-state",
		Code:  "whatever",
	})
	assert.ErrorIs(t, err, authflow.ErrProviderDenied)
}

func TestCompleteCallback_StateCannotBeReplayed(t *testing.T) {
	f := newFlowFixture(t)

	f.provider.QueueUser(&mockoidc.MockUser{Subject: "abc-1", PreferredUsername: "alice01"})
	authURL, err := f.svc.BeginLogin(context.Background())
	require.NoError(t, err)
	state, code := f.authorize(t, authURL)

	_, err = f.svc.CompleteCallback(context.Background(), authflow.CallbackRequest{State: state, Code: code})
	require.NoError(t, err)

	_, err = f.svc.CompleteCallback(context.Background(), authflow.CallbackRequest{State: state, Code: code})
	assert.ErrorIs(t, err, authflow.ErrProviderDenied)
}

func TestCompleteCallback_PersistStoreDownLeavesNoSession(t *testing.T) {
	f := newFlowFixture(t)

	f.provider.QueueUser(&mockoidc.MockUser{Subject: "abc-1", PreferredUsername: "alice01"})
	authURL, err := f.svc.BeginLogin(context.Background())
	require.NoError(t, err)
	state, code := f.authorize(t, authURL)

	f.redis.Close()

	_, err = f.svc.CompleteCallback(context.Background(), authflow.CallbackRequest{State: state, Code: code})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestCompleteCallback_DeniedFlowPersistsNothing(t *testing.T) {
	f := newFlowFixture(t)

	_, err := f.svc.CompleteCallback(context.Background(), authflow.CallbackRequest{
		State:         "some-state",
		ProviderError: "access_denied",
	})
	require.Error(t, err)

	// No session entry may exist for any key after a denied callback.
	assert.Empty(t, f.redis.Keys())
}

func TestLogout_IsIdempotent(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	payload, err := f.login(t, &mockoidc.MockUser{Subject: "abc-1", PreferredUsername: "alice01"})
	require.NoError(t, err)

	f.svc.Logout(ctx, payload.OID)
	_, err = f.sessions.Get(ctx, payload.OID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	// Logging out again, or with no session at all, must not blow up.
	f.svc.Logout(ctx, payload.OID)
	f.svc.Logout(ctx, "")
}

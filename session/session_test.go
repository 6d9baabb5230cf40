package session_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/talentgate/talentgate-go/session"
	"github.com/talentgate/talentgate-go/session/sessionfakes"
	"github.com/talentgate/talentgate-go/storage"
	"github.com/talentgate/talentgate-go/users"
)

const (
	testUsername = "jane.doe@example.com"
	testPassword = "password123"
	testUserID   = "user-1"
)

// testConfig satisfies config.SessionConfig with a long interval so the
// ticker never fires on its own; the immediate on-arm check still runs.
type testConfig struct {
	interval time.Duration
}

func (c testConfig) GetRefreshInterval() time.Duration { return c.interval }
func (testConfig) GetStoreSecret() string              { return "" }

// testFixture holds all test dependencies
type testFixture struct {
	identity  *sessionfakes.FakeAuthenticator
	directory *sessionfakes.FakeDirectory
	store     *sessionfakes.RecordingStore
	manager   *session.Manager
}

func setupTestFixture(t *testing.T) *testFixture {
	return setupTestFixtureWithInterval(t, time.Hour)
}

func setupTestFixtureWithInterval(t *testing.T, interval time.Duration) *testFixture {
	t.Helper()

	identity := sessionfakes.NewFakeAuthenticator()
	directory := sessionfakes.NewFakeDirectory()
	store := sessionfakes.NewRecordingStore(storage.NewInMemoryStore())

	manager, err := session.New(session.Deps{
		Identity:  identity,
		Directory: directory,
		Store:     store,
	}, testConfig{interval: interval})
	require.NoError(t, err)
	t.Cleanup(manager.Close)

	return &testFixture{
		identity:  identity,
		directory: directory,
		store:     store,
		manager:   manager,
	}
}

// signedAccessToken builds a JWT access token carrying the given realm roles.
func signedAccessToken(t *testing.T, id string, roles []string, expiresAt time.Time) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub": testUserID,
		"jti": id,
		"realm_access": map[string]any{
			"roles": roles,
		},
	}
	if !expiresAt.IsZero() {
		claims["exp"] = expiresAt.Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	return token
}

func testCredential(t *testing.T, id string, roles []string, refreshToken string) *session.Credential {
	t.Helper()

	return &session.Credential{
		AccessToken:  signedAccessToken(t, id, roles, time.Now().Add(5*time.Minute)),
		ExpiresIn:    300,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ObtainedAt:   time.Now(),
	}
}

func (f *testFixture) scriptLogin(cred *session.Credential) {
	f.identity.LoginFn = func(realm, username, password string) (*session.Credential, error) {
		return cred, nil
	}
}

func (f *testFixture) scriptTenantProfile(profile *users.Profile) {
	f.directory.TenantProfileFn = func(cred *session.Credential) (*users.Profile, error) {
		return profile, nil
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func TestNewRequiresDependencies(t *testing.T) {
	identity := sessionfakes.NewFakeAuthenticator()
	directory := sessionfakes.NewFakeDirectory()
	store := storage.NewInMemoryStore()

	_, err := session.New(session.Deps{Directory: directory, Store: store}, testConfig{interval: time.Hour})
	require.Error(t, err)

	_, err = session.New(session.Deps{Identity: identity, Store: store}, testConfig{interval: time.Hour})
	require.Error(t, err)

	_, err = session.New(session.Deps{Identity: identity, Directory: directory}, testConfig{interval: time.Hour})
	require.Error(t, err)

	_, err = session.New(session.Deps{Identity: identity, Directory: directory, Store: store}, nil)
	require.Error(t, err)
}

func TestLoginInstallsCredentialAndResolvesProfile(t *testing.T) {
	f := setupTestFixture(t)

	cred := testCredential(t, "cred-1", nil, "rt-1")
	f.scriptLogin(cred)
	f.scriptTenantProfile(&users.Profile{UserID: testUserID, Role: users.RoleTenantAdmin})
	f.directory.FirstTimeLoginFn = func(_ *session.Credential, realm string) (bool, error) {
		return true, nil
	}

	require.NoError(t, f.manager.Login(context.Background(), session.RealmTenant, testUsername, testPassword))

	require.True(t, f.manager.IsAuthenticated())
	require.Equal(t, session.RealmTenant, f.manager.Realm())
	require.Equal(t, cred.AccessToken, f.manager.Token().AccessToken)

	eventually(t, func() bool {
		profile := f.manager.Profile()
		return profile != nil && profile.UserID == testUserID
	}, "profile should resolve")
	eventually(t, func() bool { return f.manager.FirstLogin() }, "first-login flag should be stored")
	require.Equal(t, session.StateAuthenticated, f.manager.State())

	// The persisted mirror matches the in-memory session.
	rawToken, err := f.store.Get(storage.KeyToken)
	require.NoError(t, err)
	var persisted session.Credential
	require.NoError(t, json.Unmarshal([]byte(rawToken), &persisted))
	require.Equal(t, cred.AccessToken, persisted.AccessToken)

	refreshToken, err := f.store.Get(storage.KeyRefreshToken)
	require.NoError(t, err)
	require.Equal(t, "rt-1", refreshToken)

	realm, err := f.store.Get(storage.KeyRealm)
	require.NoError(t, err)
	require.Equal(t, session.RealmTenant, realm)
}

func TestLoginRejectionLeavesSessionUntouched(t *testing.T) {
	f := setupTestFixture(t)

	f.identity.LoginFn = func(realm, username, password string) (*session.Credential, error) {
		return nil, errors.New("invalid credentials")
	}

	err := f.manager.Login(context.Background(), session.RealmTenant, testUsername, "wrong")
	require.Error(t, err)

	require.False(t, f.manager.IsAuthenticated())
	require.Nil(t, f.manager.Token())
	require.Empty(t, f.manager.Realm())
	require.Nil(t, f.manager.Profile())
	require.Equal(t, session.StateUnauthenticated, f.manager.State())

	_, err = f.store.Get(storage.KeyToken)
	require.ErrorIs(t, err, storage.NotFoundErr)

	tenant, partner, candidate := f.directory.Counts()
	require.Zero(t, tenant+partner+candidate)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := setupTestFixture(t)

	// Logging out with no prior login is a no-op.
	f.manager.Logout()
	require.False(t, f.manager.IsAuthenticated())

	cred := testCredential(t, "cred-1", nil, "rt-1")
	f.scriptLogin(cred)
	f.scriptTenantProfile(&users.Profile{UserID: testUserID})

	require.NoError(t, f.manager.Login(context.Background(), session.RealmTenant, testUsername, testPassword))
	eventually(t, func() bool { return f.manager.Profile() != nil }, "profile should resolve")

	f.manager.Logout()
	f.manager.Logout()

	require.False(t, f.manager.IsAuthenticated())
	require.Nil(t, f.manager.Token())
	require.Empty(t, f.manager.Realm())
	require.Nil(t, f.manager.Profile())
	require.False(t, f.manager.FirstLogin())
	require.False(t, f.manager.Loading())

	for _, key := range []string{storage.KeyToken, storage.KeyRefreshToken, storage.KeyRealm} {
		_, err := f.store.Get(key)
		require.ErrorIs(t, err, storage.NotFoundErr)
	}
}

func TestCheckFirstTimeLogin(t *testing.T) {
	f := setupTestFixture(t)

	// Without a resolved session the check answers false with no call.
	require.False(t, f.manager.CheckFirstTimeLogin(context.Background()))
	require.Zero(t, f.directory.FirstLoginCalls)

	cred := testCredential(t, "cred-1", nil, "rt-1")
	f.scriptLogin(cred)
	f.scriptTenantProfile(&users.Profile{UserID: testUserID})
	f.directory.FirstTimeLoginFn = func(_ *session.Credential, realm string) (bool, error) {
		return realm == session.RealmTenant, nil
	}

	require.NoError(t, f.manager.Login(context.Background(), session.RealmTenant, testUsername, testPassword))
	eventually(t, func() bool { return f.manager.Profile() != nil }, "profile should resolve")

	require.True(t, f.manager.CheckFirstTimeLogin(context.Background()))
	require.True(t, f.manager.FirstLogin())
}

// Package session owns the process-wide authentication state of the client:
// the current credential and its realm, the resolved user profile, and the
// recurring refresh schedule that keeps the credential from expiring.
//
// The manager guarantees a single collapse path: any failure while resolving
// a profile or renewing a credential funnels through Logout, so the session
// is always either cleanly authenticated or cleanly logged out.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/talentgate/talentgate-go/internal/config"
	"github.com/talentgate/talentgate-go/internal/metrics"
	"github.com/talentgate/talentgate-go/storage"
	"github.com/talentgate/talentgate-go/users"
)

// Realm identifiers recognized by the resolver. Any other value, including
// the empty string, resolves as a candidate session.
const (
	RealmTenant  = "tenant-realm"
	RealmPartner = "partner-realm"
)

// Role claims that select realm membership even when the credential was
// issued under a different realm.
const (
	roleTenant  = "tenant"
	rolePartner = "partner"
)

// Authenticator is the identity-provider collaborator.
type Authenticator interface {
	// Login exchanges user credentials for a token in the given realm.
	Login(ctx context.Context, realm, username, password string) (*Credential, error)
	// Refresh renews a credential from its refresh token.
	Refresh(ctx context.Context, realm, refreshToken string) (*Credential, error)
	// ExpiringSoon reports whether the credential is close enough to its
	// expiry that it should be renewed.
	ExpiringSoon(cred *Credential) bool
}

// Directory is the platform API collaborator that maps a credential to a
// user profile and answers the onboarding check.
type Directory interface {
	TenantProfile(ctx context.Context, cred *Credential) (*users.Profile, error)
	PartnerProfile(ctx context.Context, cred *Credential) (*users.Profile, error)
	CandidateProfile(ctx context.Context, cred *Credential) (*users.Profile, error)
	FirstTimeLogin(ctx context.Context, cred *Credential, realm string) (bool, error)
}

// Deps holds all collaborator dependencies for the Manager.
type Deps struct {
	Identity  Authenticator
	Directory Directory
	Store     storage.Store
}

// State is the externally visible lifecycle state of the session.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateResolving       State = "resolving"
	StateAuthenticated   State = "authenticated"
)

// Manager is the single session instance of a running client. Construct one
// at application start, Start it, and Close it on the way out.
type Manager struct {
	deps    Deps
	cfg     config.SessionConfig
	log     zerolog.Logger
	metrics *metrics.Metrics
	nowTime func() time.Time

	mu            sync.Mutex
	token         *Credential
	realm         string
	user          *users.Profile
	firstLogin    bool
	loading       bool
	closed        bool
	refreshCancel context.CancelFunc

	resolves sync.WaitGroup
}

// Option defines a function type to modify the Manager instance.
type Option func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = logger
	}
}

// WithMetrics enables lifecycle counters.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mx
	}
}

// New initializes a new Manager with required dependencies. Optional
// configuration can be provided via options (e.g., WithNowTime for testing).
func New(deps Deps, cfg config.SessionConfig, options ...Option) (*Manager, error) {
	if deps.Identity == nil {
		return nil, errors.New("[session.New] Identity authenticator is required")
	}
	if deps.Directory == nil {
		return nil, errors.New("[session.New] Directory is required")
	}
	if deps.Store == nil {
		return nil, errors.New("[session.New] Store is required")
	}
	if cfg == nil {
		return nil, errors.New("[session.New] session config is required")
	}

	m := &Manager{
		deps:    deps,
		cfg:     cfg,
		log:     zerolog.Nop(),
		nowTime: time.Now,
		loading: true,
	}

	for _, opt := range options {
		opt(m)
	}

	return m, nil
}

// Start rehydrates any persisted session and begins the refresh schedule.
// A persisted credential that does not parse is treated as absent: the
// manager starts unauthenticated rather than failing.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred := m.rehydratedCredentialLocked()
	if cred == nil {
		m.loading = false
		return
	}

	realm, err := m.deps.Store.Get(storage.KeyRealm)
	if err != nil {
		realm = ""
	}

	m.token = cred
	m.realm = realm
	// The resolver pass starts before the schedule is armed, mirroring the
	// order the reactive client ran in. If arming collapses the session
	// (refresh secret gone), the pass's result is discarded as stale.
	m.startResolveLocked(cred, realm)
	m.armLocked()
}

func (m *Manager) rehydratedCredentialLocked() *Credential {
	raw, err := m.deps.Store.Get(storage.KeyToken)
	if err != nil || raw == "" {
		return nil
	}

	var cred Credential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		m.log.Warn().Err(err).Msg("discarding unparsable persisted credential")
		return nil
	}
	if cred.AccessToken == "" {
		return nil
	}
	return &cred
}

// Login authenticates against the identity provider under the given realm
// (empty selects the candidate default) and installs the returned credential.
// On rejection nothing is mutated and the error propagates to the caller.
// Profile resolution runs asynchronously after Login returns; a resolution
// failure collapses the session via Logout rather than surfacing here.
func (m *Manager) Login(ctx context.Context, realm, username, password string) error {
	cred, err := m.deps.Identity.Login(ctx, realm, username, password)
	if err != nil {
		m.metrics.IncrementLogin(realmLabel(realm), "rejected")
		return errors.Wrap(err, "[Manager.Login] identity provider login")
	}

	if cred.ObtainedAt.IsZero() {
		cred.ObtainedAt = m.nowTime()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ClosedErr
	}

	// Persist before mutating memory so a storage failure leaves the
	// in-memory session untouched.
	if err := m.persistCredentialLocked(cred); err != nil {
		m.clearStoreLocked()
		return errors.Wrap(err, "[Manager.Login] persisting credential")
	}
	if err := m.deps.Store.Set(storage.KeyRealm, realm); err != nil {
		m.clearStoreLocked()
		return errors.Wrap(err, "[Manager.Login] persisting realm")
	}

	m.token = cred
	m.realm = realm
	m.user = nil
	m.firstLogin = false
	m.metrics.IncrementLogin(realmLabel(realm), "ok")
	m.log.Info().Str("realm", realmLabel(realm)).Msg("logged in")

	m.startResolveLocked(cred, realm)
	m.armLocked()
	return nil
}

// Logout unconditionally clears the credential, realm, profile, first-login
// flag, and the persisted mirror, and stops the refresh schedule. It is
// idempotent and is the single cleanup path every failure handler uses.
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logoutLocked()
}

func (m *Manager) logoutLocked() {
	if m.refreshCancel != nil {
		m.refreshCancel()
		m.refreshCancel = nil
	}
	if m.token != nil {
		m.metrics.IncrementLogout()
		m.log.Info().Msg("logged out")
	}
	m.token = nil
	m.realm = ""
	m.user = nil
	m.firstLogin = false
	m.loading = false
	m.clearStoreLocked()
}

func (m *Manager) clearStoreLocked() {
	for _, key := range []string{storage.KeyToken, storage.KeyRefreshToken, storage.KeyRealm} {
		if err := m.deps.Store.Delete(key); err != nil {
			m.log.Warn().Err(err).Str("key", key).Msg("failed to clear persisted session key")
		}
	}
}

// persistCredentialLocked mirrors the credential and its refresh secret to
// durable storage.
func (m *Manager) persistCredentialLocked(cred *Credential) error {
	raw, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	if err := m.deps.Store.Set(storage.KeyToken, string(raw)); err != nil {
		return err
	}
	return m.deps.Store.Set(storage.KeyRefreshToken, cred.RefreshToken)
}

// Close tears the manager down: the refresh timer is cancelled and in-flight
// resolver passes are drained. The persisted session is left intact so a
// later Start can rehydrate it.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	if m.refreshCancel != nil {
		m.refreshCancel()
		m.refreshCancel = nil
	}
	m.mu.Unlock()
	m.resolves.Wait()
}

// Token returns the current credential, or nil when unauthenticated.
func (m *Manager) Token() *Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Realm returns the realm the current credential was issued under.
func (m *Manager) Realm() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.realm
}

// Profile returns the resolved user profile, or nil while unresolved.
func (m *Manager) Profile() *users.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// IsAuthenticated reports whether a credential is present.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token != nil
}

// FirstLogin reports the last stored first-time-login check result.
func (m *Manager) FirstLogin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.firstLogin
}

// Loading reports whether the initial profile resolution is still pending.
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// State derives the lifecycle state from the credential and profile.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.token == nil:
		return StateUnauthenticated
	case m.user == nil:
		return StateResolving
	default:
		return StateAuthenticated
	}
}

// currentLocked reports whether cred is still the credential that owns the
// session state. Async work keyed to an older credential must discard its
// results once this stops holding.
func (m *Manager) currentLocked(cred *Credential) bool {
	return m.token != nil && cred != nil && m.token.AccessToken == cred.AccessToken
}

func realmLabel(realm string) string {
	if realm == "" {
		return "candidate"
	}
	return realm
}

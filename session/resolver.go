package session

import (
	"context"

	"github.com/talentgate/talentgate-go/users"
)

// Resolver branches, in precedence order. Realm match and role-claim match
// are each sufficient on their own; the first branch that matches wins.
const (
	branchTenant    = "tenant"
	branchPartner   = "partner"
	branchCandidate = "candidate"
)

// startResolveLocked launches a resolver pass for the credential that was
// just installed. The pass is keyed to that credential: once the session has
// moved to a different credential, the pass discards its result.
func (m *Manager) startResolveLocked(cred *Credential, realm string) {
	m.resolves.Add(1)
	go func() {
		defer m.resolves.Done()
		m.resolve(cred, realm)
	}()
}

func (m *Manager) resolve(cred *Credential, realm string) {
	// The loading flag clears whichever way the pass ends, unless a newer
	// credential has taken over the session in the meantime.
	defer func() {
		m.mu.Lock()
		if m.currentLocked(cred) {
			m.loading = false
		}
		m.mu.Unlock()
	}()

	roles := cred.Roles()

	var (
		branch  string
		profile *users.Profile
		err     error
	)
	ctx := context.Background()
	switch {
	case realm == RealmTenant || hasRole(roles, roleTenant):
		branch = branchTenant
		profile, err = m.deps.Directory.TenantProfile(ctx, cred)
	case realm == RealmPartner || hasRole(roles, rolePartner):
		branch = branchPartner
		profile, err = m.deps.Directory.PartnerProfile(ctx, cred)
	default:
		branch = branchCandidate
		profile, err = m.deps.Directory.CandidateProfile(ctx, cred)
	}

	if err != nil {
		m.metrics.IncrementResolve(branch, "error")
		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.currentLocked(cred) {
			return
		}
		m.log.Error().Err(err).Str("branch", branch).Msg("failed to fetch user profile, logging out")
		m.logoutLocked()
		return
	}

	firstLogin := false
	if profile != nil && profile.UserID != "" {
		firstLogin = m.firstTimeLogin(ctx, cred, realm)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.currentLocked(cred) {
		return
	}
	m.user = profile
	m.firstLogin = firstLogin
	m.metrics.IncrementResolve(branch, "ok")
}

// firstTimeLogin runs the advisory onboarding check. It requires a credential
// and a realm, reports false otherwise without a network call, and swallows
// collaborator failures: this check never collapses the session.
func (m *Manager) firstTimeLogin(ctx context.Context, cred *Credential, realm string) bool {
	if cred == nil || cred.AccessToken == "" || realm == "" {
		return false
	}
	first, err := m.deps.Directory.FirstTimeLogin(ctx, cred, realm)
	if err != nil {
		m.log.Warn().Err(err).Msg("first-time login check failed")
		return false
	}
	return first
}

// CheckFirstTimeLogin re-runs the onboarding check for the resolved profile
// and stores the result. It requires a resolved profile identifier, a
// credential, and a realm; otherwise it reports false without a network call.
func (m *Manager) CheckFirstTimeLogin(ctx context.Context) bool {
	m.mu.Lock()
	cred, realm, user := m.token, m.realm, m.user
	m.mu.Unlock()

	if user == nil || user.UserID == "" || cred == nil || realm == "" {
		return false
	}

	first := m.firstTimeLogin(ctx, cred, realm)
	m.mu.Lock()
	if m.currentLocked(cred) {
		m.firstLogin = first
	}
	m.mu.Unlock()
	return first
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

package session

import (
	"context"
	"time"

	"github.com/talentgate/talentgate-go/storage"
)

// armLocked (re)starts the refresh schedule against the current credential,
// realm, and persisted refresh secret. A session missing any of the three is
// not renewable and is logged out, even while its access token is still live.
func (m *Manager) armLocked() {
	if m.refreshCancel != nil {
		m.refreshCancel()
		m.refreshCancel = nil
	}
	if m.closed || m.token == nil {
		return
	}

	refreshToken, err := m.deps.Store.Get(storage.KeyRefreshToken)
	if err != nil || refreshToken == "" || m.realm == "" {
		m.log.Warn().Msg("session is missing refresh prerequisites, logging out")
		m.logoutLocked()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.refreshCancel = cancel
	go m.refreshLoop(ctx, m.token, m.realm, refreshToken)
}

// refreshLoop checks credential freshness once immediately on arming and
// then on a fixed interval. It exits when its context is cancelled (re-arm,
// logout, Close) or when the credential it was armed against is replaced;
// a tick that fires after logout is a no-op.
func (m *Manager) refreshLoop(ctx context.Context, cred *Credential, realm, refreshToken string) {
	if !m.maybeRefresh(ctx, cred, realm, refreshToken) {
		return
	}

	ticker := time.NewTicker(m.cfg.GetRefreshInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.maybeRefresh(ctx, cred, realm, refreshToken) {
				return
			}
		}
	}
}

// maybeRefresh renews the credential when it is close to expiry. It reports
// whether this loop should keep running.
func (m *Manager) maybeRefresh(ctx context.Context, cred *Credential, realm, refreshToken string) bool {
	if !m.deps.Identity.ExpiringSoon(cred) {
		return true
	}

	renewed, err := m.deps.Identity.Refresh(ctx, realm, refreshToken)
	if err != nil {
		if ctx.Err() != nil {
			// Superseded or shut down mid-call; not a session failure.
			return false
		}
		m.metrics.IncrementRefresh("error")
		m.log.Error().Err(err).Msg("credential refresh failed, logging out")
		m.Logout()
		return false
	}
	m.metrics.IncrementRefresh("ok")
	if renewed.ObtainedAt.IsZero() {
		renewed.ObtainedAt = m.nowTime()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.currentLocked(cred) {
		return false
	}
	if err := m.persistCredentialLocked(renewed); err != nil {
		m.log.Error().Err(err).Msg("persisting refreshed credential failed, logging out")
		m.logoutLocked()
		return false
	}

	// Realm is deliberately untouched: refresh replaces the credential only.
	m.token = renewed
	m.startResolveLocked(renewed, m.realm)
	m.armLocked()
	return false
}

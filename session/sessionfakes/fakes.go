// Package sessionfakes provides scriptable collaborator fakes for session
// manager tests.
package sessionfakes

import (
	"context"
	"errors"
	"sync"

	"github.com/talentgate/talentgate-go/session"
	"github.com/talentgate/talentgate-go/storage"
	"github.com/talentgate/talentgate-go/users"
)

var _ session.Authenticator = (*FakeAuthenticator)(nil)

// FakeAuthenticator is a scriptable session.Authenticator. Unscripted calls
// fail, so a test only ever exercises the paths it set up.
type FakeAuthenticator struct {
	lock sync.Mutex

	LoginFn        func(realm, username, password string) (*session.Credential, error)
	RefreshFn      func(realm, refreshToken string) (*session.Credential, error)
	ExpiringSoonFn func(cred *session.Credential) bool

	LoginCalls        int
	RefreshCalls      int
	ExpiringSoonCalls int
}

func NewFakeAuthenticator() *FakeAuthenticator {
	return &FakeAuthenticator{}
}

func (f *FakeAuthenticator) Login(_ context.Context, realm, username, password string) (*session.Credential, error) {
	f.lock.Lock()
	f.LoginCalls++
	fn := f.LoginFn
	f.lock.Unlock()

	if fn == nil {
		return nil, errors.New("login not scripted")
	}
	return fn(realm, username, password)
}

func (f *FakeAuthenticator) Refresh(_ context.Context, realm, refreshToken string) (*session.Credential, error) {
	f.lock.Lock()
	f.RefreshCalls++
	fn := f.RefreshFn
	f.lock.Unlock()

	if fn == nil {
		return nil, errors.New("refresh not scripted")
	}
	return fn(realm, refreshToken)
}

func (f *FakeAuthenticator) ExpiringSoon(cred *session.Credential) bool {
	f.lock.Lock()
	f.ExpiringSoonCalls++
	fn := f.ExpiringSoonFn
	f.lock.Unlock()

	if fn == nil {
		return false
	}
	return fn(cred)
}

// Checks returns how often freshness has been evaluated.
func (f *FakeAuthenticator) Checks() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.ExpiringSoonCalls
}

// Refreshes returns how many renewals have been attempted.
func (f *FakeAuthenticator) Refreshes() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.RefreshCalls
}

var _ session.Directory = (*FakeDirectory)(nil)

// FakeDirectory is a scriptable session.Directory. Unscripted profile
// fetches return an empty profile; the unscripted first-login check reports
// false.
type FakeDirectory struct {
	lock sync.Mutex

	TenantProfileFn    func(cred *session.Credential) (*users.Profile, error)
	PartnerProfileFn   func(cred *session.Credential) (*users.Profile, error)
	CandidateProfileFn func(cred *session.Credential) (*users.Profile, error)
	FirstTimeLoginFn   func(cred *session.Credential, realm string) (bool, error)

	TenantCalls     int
	PartnerCalls    int
	CandidateCalls  int
	FirstLoginCalls int
}

func NewFakeDirectory() *FakeDirectory {
	return &FakeDirectory{}
}

func (f *FakeDirectory) TenantProfile(_ context.Context, cred *session.Credential) (*users.Profile, error) {
	f.lock.Lock()
	f.TenantCalls++
	fn := f.TenantProfileFn
	f.lock.Unlock()

	if fn == nil {
		return &users.Profile{}, nil
	}
	return fn(cred)
}

func (f *FakeDirectory) PartnerProfile(_ context.Context, cred *session.Credential) (*users.Profile, error) {
	f.lock.Lock()
	f.PartnerCalls++
	fn := f.PartnerProfileFn
	f.lock.Unlock()

	if fn == nil {
		return &users.Profile{}, nil
	}
	return fn(cred)
}

func (f *FakeDirectory) CandidateProfile(_ context.Context, cred *session.Credential) (*users.Profile, error) {
	f.lock.Lock()
	f.CandidateCalls++
	fn := f.CandidateProfileFn
	f.lock.Unlock()

	if fn == nil {
		return &users.Profile{}, nil
	}
	return fn(cred)
}

func (f *FakeDirectory) FirstTimeLogin(_ context.Context, cred *session.Credential, realm string) (bool, error) {
	f.lock.Lock()
	f.FirstLoginCalls++
	fn := f.FirstTimeLoginFn
	f.lock.Unlock()

	if fn == nil {
		return false, nil
	}
	return fn(cred, realm)
}

// Counts returns the per-branch profile fetch counts.
func (f *FakeDirectory) Counts() (tenant, partner, candidate int) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.TenantCalls, f.PartnerCalls, f.CandidateCalls
}

var _ storage.Store = (*RecordingStore)(nil)

// RecordingStore wraps a Store and counts mutations per key.
type RecordingStore struct {
	inner storage.Store

	lock        sync.Mutex
	SetCalls    map[string]int
	DeleteCalls map[string]int
}

func NewRecordingStore(inner storage.Store) *RecordingStore {
	return &RecordingStore{
		inner:       inner,
		SetCalls:    make(map[string]int),
		DeleteCalls: make(map[string]int),
	}
}

func (r *RecordingStore) Get(key string) (string, error) {
	return r.inner.Get(key)
}

func (r *RecordingStore) Set(key, value string) error {
	r.lock.Lock()
	r.SetCalls[key]++
	r.lock.Unlock()
	return r.inner.Set(key, value)
}

func (r *RecordingStore) Delete(key string) error {
	r.lock.Lock()
	r.DeleteCalls[key]++
	r.lock.Unlock()
	return r.inner.Delete(key)
}

// Deletes returns how many times key has been deleted.
func (r *RecordingStore) Deletes(key string) int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.DeleteCalls[key]
}

// Package session holds the per-client session: who is signed in, their
// profile, and the transitions between signed out, loading and signed in.
package session

import (
	"github.com/frahmantamala/sss-portal/internal/auth"
	"github.com/frahmantamala/sss-portal/internal/profile"
)

// State is a snapshot of one client's session. Identity and Profile are
// either both set or both nil once resolution has finished.
type State struct {
	Identity  *auth.Identity   `json:"identity"`
	Profile   *profile.Profile `json:"profile"`
	Loading   bool             `json:"loading"`
	SigningIn bool             `json:"signing_in"`
	LastError string           `json:"last_error,omitempty"`
}

func (s State) IsLoading() bool {
	return s.Loading
}

func (s State) Authenticated() bool {
	return s.Identity != nil && s.Profile != nil
}

func (s State) IsFirstTimeUser() bool {
	return s.Profile != nil && s.Profile.IsFirstLogin
}

func (s State) IsAdmin() bool {
	return s.Profile.IsAdministrator()
}

func (s State) HasPermission(module, action string) bool {
	return s.Profile.HasPermission(module, action)
}

// Empty reports a resolved session with nobody signed in and nothing to
// tell the user.
func (s State) Empty() bool {
	return !s.Loading && !s.SigningIn && s.Identity == nil && s.LastError == ""
}

func (s State) clone() State {
	cp := s
	if s.Identity != nil {
		id := *s.Identity
		cp.Identity = &id
	}
	cp.Profile = s.Profile.Clone()
	return cp
}

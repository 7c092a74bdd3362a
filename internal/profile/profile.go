package profile

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/frahmantamala/sss-portal/internal/permission"
)

type Role string

const (
	RoleUser          Role = "USER"
	RoleOperator      Role = "OPERATOR"
	RoleAdministrator Role = "ADMINISTRATOR"
)

func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleUser, RoleOperator, RoleAdministrator:
		return r, true
	}
	return "", false
}

type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusActive, StatusDisabled:
		return st, true
	}
	return "", false
}

// Profile is the application-owned record of role, status and grants for
// one identity. It is keyed by the identity uid and never hard-deleted.
type Profile struct {
	UID          string            `json:"uid"`
	Email        string            `json:"email"`
	Role         Role              `json:"role"`
	Status       Status            `json:"status"`
	Permissions  permission.Grants `json:"permissions"`
	IsFirstLogin bool              `json:"is_first_login"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	LastLogin    *time.Time        `json:"last_login,omitempty"`
	LastLogout   *time.Time        `json:"last_logout,omitempty"`
	UpdatedBy    string            `json:"updated_by,omitempty"`
}

// NewDefault synthesizes the profile of an identity seen for the first time.
func NewDefault(uid, email string, now time.Time) *Profile {
	return &Profile{
		UID:          uid,
		Email:        email,
		Role:         RoleUser,
		Status:       StatusActive,
		Permissions:  permission.DefaultGrants(),
		IsFirstLogin: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (p *Profile) IsAdministrator() bool {
	return p != nil && p.Role == RoleAdministrator
}

func (p *Profile) PermissionGrants() permission.Grants {
	if p == nil {
		return nil
	}
	return p.Permissions
}

func (p *Profile) IsActive() bool {
	return p != nil && p.Status == StatusActive
}

func (p *Profile) HasPermission(module, action string) bool {
	return permission.Resolve(p, module, action)
}

func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Permissions = p.Permissions.Clone()
	if p.LastLogin != nil {
		t := *p.LastLogin
		cp.LastLogin = &t
	}
	if p.LastLogout != nil {
		t := *p.LastLogout
		cp.LastLogout = &t
	}
	return &cp
}

// Patch names the fields a merge update writes. Nil fields are left alone.
type Patch struct {
	Email        *string
	Role         *Role
	Status       *Status
	Permissions  permission.Grants
	IsFirstLogin *bool
	LastLogin    *time.Time
	LastLogout   *time.Time
	UpdatedBy    *string
}

func (p Patch) Empty() bool {
	return p.Email == nil && p.Role == nil && p.Status == nil && p.Permissions == nil &&
		p.IsFirstLogin == nil && p.LastLogin == nil && p.LastLogout == nil && p.UpdatedBy == nil
}

// Apply writes the set fields onto dst.
func (p Patch) Apply(dst *Profile) {
	if p.Email != nil {
		dst.Email = *p.Email
	}
	if p.Role != nil {
		dst.Role = *p.Role
	}
	if p.Status != nil {
		dst.Status = *p.Status
	}
	if p.Permissions != nil {
		dst.Permissions = p.Permissions.Clone()
	}
	if p.IsFirstLogin != nil {
		dst.IsFirstLogin = *p.IsFirstLogin
	}
	if p.LastLogin != nil {
		t := *p.LastLogin
		dst.LastLogin = &t
	}
	if p.LastLogout != nil {
		t := *p.LastLogout
		dst.LastLogout = &t
	}
	if p.UpdatedBy != nil {
		dst.UpdatedBy = *p.UpdatedBy
	}
}

type Filter struct {
	Role   Role
	Status Status
	// Search matches a case-insensitive substring of the email.
	Search string
}

func (f Filter) Match(p *Profile) bool {
	if f.Role != "" && p.Role != f.Role {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(p.Email), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

// Store is the profile document collection keyed by uid.
type Store interface {
	Read(ctx context.Context, uid string) (*Profile, error)
	// Create writes p only if no profile exists for p.UID, returning
	// ErrAlreadyExists otherwise.
	Create(ctx context.Context, p *Profile) error
	MergeUpdate(ctx context.Context, uid string, patch Patch) error
	List(ctx context.Context, filter Filter) ([]*Profile, error)
}

var (
	ErrNotFound      = errors.New("profile not found")
	ErrAlreadyExists = errors.New("profile already exists")
)

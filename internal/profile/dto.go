package profile

import (
	"strings"

	errors "github.com/frahmantamala/sss-portal/internal"
	"github.com/frahmantamala/sss-portal/internal/activity"
	"github.com/frahmantamala/sss-portal/internal/core/common/validation"
	"github.com/frahmantamala/sss-portal/internal/permission"
)

// MinPasswordLength is the shortest secret an administrator may assign.
const MinPasswordLength = 6

// CreateUserDTO is the admin dashboard's create-user form.
type CreateUserDTO struct {
	Email           string            `json:"email"`
	Password        string            `json:"password"`
	ConfirmPassword string            `json:"confirm_password"`
	Role            string            `json:"role,omitempty"`
	Status          string            `json:"status,omitempty"`
	Permissions     permission.Grants `json:"permissions,omitempty"`
}

func (dto CreateUserDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("email", dto.Email).Required().Email()
	v.Field("password", dto.Password).Required().MinLength(MinPasswordLength, errors.ErrCodePasswordTooShort)
	v.Field("confirm_password", dto.ConfirmPassword).Equals(dto.Password, "passwords do not match", errors.ErrCodePasswordMismatch)
	if dto.Role != "" {
		v.Field("role", dto.Role).Custom(roleRule("role"))
	}
	if dto.Status != "" {
		v.Field("status", dto.Status).Custom(statusRule("status"))
	}
	if dto.Permissions != nil {
		v.Field("permissions", dto.Permissions).Custom(grantsRule("permissions"))
	}
	return v.Validate()
}

// UpdateUserDTO carries the fields an administrator may change. Omitted
// fields are left untouched.
type UpdateUserDTO struct {
	Role        *string           `json:"role,omitempty"`
	Status      *string           `json:"status,omitempty"`
	Permissions permission.Grants `json:"permissions,omitempty"`
}

func (dto UpdateUserDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Rule("body", dto.Role != nil || dto.Status != nil || dto.Permissions != nil, "nothing to update", errors.ErrCodeValidationFailed)
	if dto.Role != nil {
		v.Field("role", *dto.Role).Custom(roleRule("role"))
	}
	if dto.Status != nil {
		v.Field("status", *dto.Status).Custom(statusRule("status"))
	}
	if dto.Permissions != nil {
		v.Field("permissions", dto.Permissions).Custom(grantsRule("permissions"))
	}
	return v.Validate()
}

func roleRule(field string) validation.ValidatorFunc {
	return func(value any) *errors.AppError {
		if s, _ := value.(string); s != "" {
			if _, ok := ParseRole(s); ok {
				return nil
			}
		}
		return errors.NewValidationFieldError(field, "role must be one of USER, OPERATOR, ADMINISTRATOR", errors.ErrCodeInvalidRole)
	}
}

func statusRule(field string) validation.ValidatorFunc {
	return func(value any) *errors.AppError {
		if s, _ := value.(string); s != "" {
			if _, ok := ParseStatus(s); ok {
				return nil
			}
		}
		return errors.NewValidationFieldError(field, "status must be active or disabled", errors.ErrCodeInvalidStatus)
	}
}

func grantsRule(field string) validation.ValidatorFunc {
	return func(value any) *errors.AppError {
		g, _ := value.(permission.Grants)
		if _, err := g.Canonical(); err != nil {
			return errors.NewValidationFieldError(field, err.Error(), errors.ErrCodeInvalidPermissions)
		}
		return nil
	}
}

type ListUsersQuery struct {
	Role   string `json:"role,omitempty"`
	Status string `json:"status,omitempty"`
	Search string `json:"search,omitempty"`
}

func (q ListUsersQuery) Filter() Filter {
	f := Filter{Search: strings.TrimSpace(q.Search)}
	if r, ok := ParseRole(q.Role); ok {
		f.Role = r
	}
	if s, ok := ParseStatus(q.Status); ok {
		f.Status = s
	}
	return f
}

type UsersResponse struct {
	Users []*Profile `json:"users"`
}

type Stats struct {
	TotalUsers     int `json:"total_users"`
	ActiveUsers    int `json:"active_users"`
	AdminUsers     int `json:"admin_users"`
	RecentActivity int `json:"recent_activity"`
}

type DashboardResponse struct {
	Stats    Stats             `json:"stats"`
	Activity []activity.Record `json:"activity"`
}

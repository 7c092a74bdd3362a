package profile

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/juju/clock"

	errors "github.com/frahmantamala/sss-portal/internal"
	"github.com/frahmantamala/sss-portal/internal/activity"
	"github.com/frahmantamala/sss-portal/internal/auth"
)

// Accounts creates credentials with the auth provider and returns the uid
// of the new identity.
// Accounts holds the credentials behind profiles. DeleteAccount undoes a
// CreateAccount whose profile could not be written.
type Accounts interface {
	CreateAccount(ctx context.Context, email, secret string) (string, error)
	DeleteAccount(ctx context.Context, uid string) error
}

type AuditLog interface {
	Log(ctx context.Context, rec activity.Record)
	Recent(ctx context.Context, limit int) ([]activity.Record, error)
}

type ServiceAPI interface {
	CreateUser(ctx context.Context, actor *Profile, dto CreateUserDTO) (*Profile, error)
	UpdateUser(ctx context.Context, actor *Profile, uid string, dto UpdateUserDTO) (*Profile, error)
	ListUsers(ctx context.Context, actor *Profile, filter Filter) ([]*Profile, error)
	Dashboard(ctx context.Context, actor *Profile) (*DashboardResponse, error)
}

// Service is the administrator's user-management surface.
type Service struct {
	store    Store
	accounts Accounts
	audit    AuditLog
	clock    clock.Clock
	logger   *slog.Logger
}

func NewService(store Store, accounts Accounts, audit AuditLog, clk clock.Clock, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.WallClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		accounts: accounts,
		audit:    audit,
		clock:    clk,
		logger:   logger,
	}
}

func (s *Service) CreateUser(ctx context.Context, actor *Profile, dto CreateUserDTO) (*Profile, error) {
	if !actor.IsAdministrator() {
		return nil, errors.ErrAdminRequired
	}
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	email := strings.TrimSpace(dto.Email)
	uid, err := s.accounts.CreateAccount(ctx, email, dto.Password)
	if err != nil {
		if stderrors.Is(err, auth.ErrAccountExists) {
			return nil, errors.NewConflictError("An account with this email already exists", errors.ErrCodeAccountExists)
		}
		s.logger.ErrorContext(ctx, "failed to create account", "email", email, "error", err)
		return nil, errors.NewInternalError("failed to create account", err)
	}

	now := s.clock.Now()
	p := NewDefault(uid, email, now)
	p.UpdatedBy = actor.Email
	if r, ok := ParseRole(dto.Role); ok {
		p.Role = r
	}
	if st, ok := ParseStatus(dto.Status); ok {
		p.Status = st
	}
	if dto.Permissions != nil {
		grants, err := dto.Permissions.Canonical()
		if err != nil {
			return nil, errors.NewValidationError(err.Error(), errors.ErrCodeInvalidPermissions)
		}
		p.Permissions = grants
	}

	if err := s.store.Create(ctx, p); err != nil {
		if derr := s.accounts.DeleteAccount(ctx, uid); derr != nil {
			s.logger.ErrorContext(ctx, "failed to remove account without profile", "uid", uid, "error", derr)
		}
		if stderrors.Is(err, ErrAlreadyExists) {
			return nil, errors.NewConflictError("A profile for this account already exists", errors.ErrCodeAccountExists)
		}
		s.logger.ErrorContext(ctx, "failed to create profile", "uid", uid, "error", err)
		return nil, errors.NewInternalError("failed to create profile", err)
	}

	s.audit.Log(ctx, activity.Record{
		Type:        activity.TypeUserCreate,
		PerformedBy: actor.Email,
		TargetUser:  email,
		Details:     fmt.Sprintf("Created new user: %s", email),
		Timestamp:   now,
	})
	s.logger.InfoContext(ctx, "user created", "uid", uid, "role", p.Role, "by", actor.Email)
	return p, nil
}

// UpdateUser merges role, status and grants onto the profile. Assigning a
// role or grants ends the first-login confinement.
func (s *Service) UpdateUser(ctx context.Context, actor *Profile, uid string, dto UpdateUserDTO) (*Profile, error) {
	if !actor.IsAdministrator() {
		return nil, errors.ErrAdminRequired
	}
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	if _, err := s.store.Read(ctx, uid); err != nil {
		if stderrors.Is(err, ErrNotFound) {
			return nil, errors.ErrProfileNotFound
		}
		return nil, errors.NewInternalError("failed to read profile", err)
	}

	patch := Patch{UpdatedBy: &actor.Email}
	if dto.Role != nil {
		r, _ := ParseRole(*dto.Role)
		patch.Role = &r
	}
	if dto.Status != nil {
		st, _ := ParseStatus(*dto.Status)
		patch.Status = &st
	}
	if dto.Permissions != nil {
		grants, err := dto.Permissions.Canonical()
		if err != nil {
			return nil, errors.NewValidationError(err.Error(), errors.ErrCodeInvalidPermissions)
		}
		patch.Permissions = grants
	}
	if patch.Role != nil || patch.Permissions != nil {
		cleared := false
		patch.IsFirstLogin = &cleared
	}

	if err := s.store.MergeUpdate(ctx, uid, patch); err != nil {
		s.logger.ErrorContext(ctx, "failed to update profile", "uid", uid, "error", err)
		return nil, errors.NewInternalError("failed to update profile", err)
	}

	updated, err := s.store.Read(ctx, uid)
	if err != nil {
		return nil, errors.NewInternalError("failed to read profile", err)
	}

	s.audit.Log(ctx, activity.Record{
		Type:        activity.TypeUserUpdate,
		PerformedBy: actor.Email,
		TargetUser:  uid,
		Details:     "User details updated",
		Timestamp:   s.clock.Now(),
	})
	return updated, nil
}

func (s *Service) ListUsers(ctx context.Context, actor *Profile, filter Filter) ([]*Profile, error) {
	if !actor.IsAdministrator() {
		return nil, errors.ErrAdminRequired
	}
	users, err := s.store.List(ctx, filter)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list profiles", "error", err)
		return nil, errors.NewInternalError("failed to list users", err)
	}
	return users, nil
}

// Dashboard returns user counts and the most recent activity records.
func (s *Service) Dashboard(ctx context.Context, actor *Profile) (*DashboardResponse, error) {
	users, err := s.ListUsers(ctx, actor, Filter{})
	if err != nil {
		return nil, err
	}

	records, err := s.audit.Recent(ctx, activity.DashboardSize)
	if err != nil {
		// the counts are still useful without the activity feed
		s.logger.WarnContext(ctx, "failed to fetch activity logs", "error", err)
		records = nil
	}

	stats := Stats{TotalUsers: len(users), RecentActivity: len(records)}
	for _, u := range users {
		if u.Status == StatusActive {
			stats.ActiveUsers++
		}
		if u.Role == RoleAdministrator {
			stats.AdminUsers++
		}
	}
	return &DashboardResponse{Stats: stats, Activity: records}, nil
}

package profile_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/sss-portal/internal"
	"github.com/frahmantamala/sss-portal/internal/activity"
	"github.com/frahmantamala/sss-portal/internal/auth"
	"github.com/frahmantamala/sss-portal/internal/permission"
	"github.com/frahmantamala/sss-portal/internal/profile"
)

func TestProfile(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Profile Suite")
}

type memStore struct {
	mu        sync.Mutex
	profiles  map[string]*profile.Profile
	createErr error
}

func newMemStore() *memStore {
	return &memStore{profiles: map[string]*profile.Profile{}}
}

func (m *memStore) Read(_ context.Context, uid string) (*profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[uid]
	if !ok {
		return nil, profile.ErrNotFound
	}
	return p.Clone(), nil
}

func (m *memStore) Create(_ context.Context, p *profile.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.profiles[p.UID]; ok {
		return profile.ErrAlreadyExists
	}
	m.profiles[p.UID] = p.Clone()
	return nil
}

func (m *memStore) MergeUpdate(_ context.Context, uid string, patch profile.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[uid]
	if !ok {
		return profile.ErrNotFound
	}
	patch.Apply(p)
	return nil
}

func (m *memStore) List(_ context.Context, f profile.Filter) ([]*profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*profile.Profile
	for _, p := range m.profiles {
		if f.Match(p) {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

type fakeAccounts struct {
	emails map[string]bool
	err    error
}

func (f *fakeAccounts) CreateAccount(_ context.Context, email, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.emails[email] {
		return "", auth.ErrAccountExists
	}
	f.emails[email] = true
	return "uid-" + email, nil
}

func (f *fakeAccounts) DeleteAccount(_ context.Context, uid string) error {
	delete(f.emails, strings.TrimPrefix(uid, "uid-"))
	return nil
}

type fakeAudit struct {
	records   []activity.Record
	recentErr error
}

func (f *fakeAudit) Log(_ context.Context, rec activity.Record) {
	f.records = append(f.records, rec)
}

func (f *fakeAudit) Recent(_ context.Context, limit int) ([]activity.Record, error) {
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	if limit > len(f.records) {
		limit = len(f.records)
	}
	return f.records[:limit], nil
}

func appCode(err error) apperrors.ErrorCode {
	appErr, ok := apperrors.IsAppError(err)
	Expect(ok).To(BeTrue(), "expected *AppError, got %v", err)
	return appErr.Code
}

func validationCodes(err error) []string {
	appErr, ok := apperrors.IsAppError(err)
	Expect(ok).To(BeTrue())
	details, ok := appErr.Details.(apperrors.ValidationErrors)
	Expect(ok).To(BeTrue())
	var codes []string
	for _, e := range details.Errors {
		codes = append(codes, e.Code)
	}
	return codes
}

var _ = Describe("Service", func() {
	var (
		store    *memStore
		accounts *fakeAccounts
		audit    *fakeAudit
		clk      *testclock.Clock
		svc      *profile.Service
		admin    *profile.Profile
		ctx      context.Context
	)

	BeforeEach(func() {
		store = newMemStore()
		accounts = &fakeAccounts{emails: map[string]bool{}}
		audit = &fakeAudit{}
		clk = testclock.NewClock(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
		svc = profile.NewService(store, accounts, audit, clk, slog.New(slog.NewTextHandler(io.Discard, nil)))
		ctx = context.Background()

		admin = profile.NewDefault("admin-uid", "admin@sss.test", clk.Now())
		admin.Role = profile.RoleAdministrator
		admin.IsFirstLogin = false
		Expect(store.Create(ctx, admin)).To(Succeed())
	})

	Describe("CreateUser", func() {
		It("creates a first-login profile and records the action", func() {
			created, err := svc.CreateUser(ctx, admin, profile.CreateUserDTO{
				Email:           "guard@sss.test",
				Password:        "secret1",
				ConfirmPassword: "secret1",
				Role:            "operator",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(created.UID).To(Equal("uid-guard@sss.test"))
			Expect(created.Role).To(Equal(profile.RoleOperator))
			Expect(created.Status).To(Equal(profile.StatusActive))
			Expect(created.IsFirstLogin).To(BeTrue())
			Expect(created.LastLogin).To(BeNil())
			Expect(created.UpdatedBy).To(Equal("admin@sss.test"))

			stored, err := store.Read(ctx, created.UID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Email).To(Equal("guard@sss.test"))

			Expect(audit.records).To(HaveLen(1))
			Expect(audit.records[0].Type).To(Equal(activity.TypeUserCreate))
			Expect(audit.records[0].PerformedBy).To(Equal("admin@sss.test"))
			Expect(audit.records[0].Details).To(Equal("Created new user: guard@sss.test"))
		})

		It("rejects non-administrators", func() {
			clerk := profile.NewDefault("clerk", "clerk@sss.test", clk.Now())
			_, err := svc.CreateUser(ctx, clerk, profile.CreateUserDTO{})
			Expect(appCode(err)).To(Equal(apperrors.ErrCodeAdminRequired))
		})

		DescribeTable("validates the form",
			func(dto profile.CreateUserDTO, code apperrors.ErrorCode) {
				_, err := svc.CreateUser(ctx, admin, dto)
				Expect(validationCodes(err)).To(ContainElement(string(code)))
				Expect(audit.records).To(BeEmpty())
			},
			Entry("short password", profile.CreateUserDTO{Email: "a@sss.test", Password: "12345", ConfirmPassword: "12345"}, apperrors.ErrCodePasswordTooShort),
			Entry("mismatched confirmation", profile.CreateUserDTO{Email: "a@sss.test", Password: "123456", ConfirmPassword: "654321"}, apperrors.ErrCodePasswordMismatch),
			Entry("bad email", profile.CreateUserDTO{Email: "not-an-email", Password: "123456", ConfirmPassword: "123456"}, apperrors.ErrCodeInvalidEmail),
			Entry("unknown role", profile.CreateUserDTO{Email: "a@sss.test", Password: "123456", ConfirmPassword: "123456", Role: "root"}, apperrors.ErrCodeInvalidRole),
			Entry("unknown module", profile.CreateUserDTO{Email: "a@sss.test", Password: "123456", ConfirmPassword: "123456", Permissions: permission.Grants{"payroll": {"view": true}}}, apperrors.ErrCodeInvalidPermissions),
		)

		It("reports duplicate accounts as conflicts", func() {
			accounts.emails["dup@sss.test"] = true
			_, err := svc.CreateUser(ctx, admin, profile.CreateUserDTO{Email: "dup@sss.test", Password: "123456", ConfirmPassword: "123456"})
			Expect(appCode(err)).To(Equal(apperrors.ErrCodeAccountExists))
		})

		It("removes the account when the profile cannot be written", func() {
			store.createErr = errors.New("connection reset")
			_, err := svc.CreateUser(ctx, admin, profile.CreateUserDTO{Email: "x@sss.test", Password: "123456", ConfirmPassword: "123456"})
			Expect(appCode(err)).To(Equal(apperrors.ErrorCode("INTERNAL_ERROR")))
			Expect(accounts.emails).NotTo(HaveKey("x@sss.test"))
			Expect(audit.records).To(BeEmpty())
		})

		It("hides provider failures behind an internal error", func() {
			accounts.err = errors.New("provider down")
			_, err := svc.CreateUser(ctx, admin, profile.CreateUserDTO{Email: "x@sss.test", Password: "123456", ConfirmPassword: "123456"})
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeInternal))
		})
	})

	Describe("UpdateUser", func() {
		var target *profile.Profile

		BeforeEach(func() {
			target = profile.NewDefault("new-uid", "new@sss.test", clk.Now())
			Expect(store.Create(ctx, target)).To(Succeed())
		})

		It("assigning grants ends the first-login confinement", func() {
			updated, err := svc.UpdateUser(ctx, admin, "new-uid", profile.UpdateUserDTO{
				Permissions: permission.Grants{"Reports": {"view": true}},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.IsFirstLogin).To(BeFalse())
			Expect(updated.HasPermission("reports", "view")).To(BeTrue())
			Expect(updated.HasPermission("reports", "create")).To(BeFalse())
			Expect(updated.UpdatedBy).To(Equal("admin@sss.test"))

			Expect(audit.records).To(HaveLen(1))
			Expect(audit.records[0].Type).To(Equal(activity.TypeUserUpdate))
			Expect(audit.records[0].TargetUser).To(Equal("new-uid"))
		})

		It("a status change alone keeps the confinement", func() {
			disabled := "disabled"
			updated, err := svc.UpdateUser(ctx, admin, "new-uid", profile.UpdateUserDTO{Status: &disabled})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Status).To(Equal(profile.StatusDisabled))
			Expect(updated.IsFirstLogin).To(BeTrue())
		})

		It("returns not found for unknown profiles", func() {
			role := "USER"
			_, err := svc.UpdateUser(ctx, admin, "ghost", profile.UpdateUserDTO{Role: &role})
			Expect(appCode(err)).To(Equal(apperrors.ErrCodeProfileNotFound))
		})

		It("rejects empty updates", func() {
			_, err := svc.UpdateUser(ctx, admin, "new-uid", profile.UpdateUserDTO{})
			Expect(appCode(err)).To(Equal(apperrors.ErrCodeValidationFailed))
		})
	})

	Describe("Dashboard", func() {
		It("counts users and lists recent activity", func() {
			disabled := profile.NewDefault("d", "d@sss.test", clk.Now())
			disabled.Status = profile.StatusDisabled
			Expect(store.Create(ctx, disabled)).To(Succeed())
			audit.Log(ctx, activity.Record{Type: activity.TypeUserCreate, Timestamp: clk.Now()})

			resp, err := svc.Dashboard(ctx, admin)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Stats).To(Equal(profile.Stats{TotalUsers: 2, ActiveUsers: 1, AdminUsers: 1, RecentActivity: 1}))
			Expect(resp.Activity).To(HaveLen(1))
		})

		It("still reports counts when the activity feed fails", func() {
			audit.recentErr = errors.New("timeout")
			resp, err := svc.Dashboard(ctx, admin)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Stats.TotalUsers).To(Equal(1))
			Expect(resp.Activity).To(BeEmpty())
		})
	})
})

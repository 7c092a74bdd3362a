package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/juju/clock/testclock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/sss-portal/internal/activity"
	"github.com/frahmantamala/sss-portal/internal/auth"
	"github.com/frahmantamala/sss-portal/internal/profile"
	"github.com/frahmantamala/sss-portal/internal/session"
)

// directory accepts "secret1" for the seeded accounts.
type directory struct {
	hash string
	uids map[string]string
}

func newDirectory() *directory {
	hash, err := auth.HashPassword("secret1", bcrypt.MinCost)
	Expect(err).NotTo(HaveOccurred())
	return &directory{
		hash: hash,
		uids: map[string]string{
			"user@sss.test":     "uid-user",
			"admin@sss.test":    "uid-admin",
			"disabled@sss.test": "uid-disabled",
		},
	}
}

func (d *directory) Authenticate(_ context.Context, email, secret string) (*auth.Account, error) {
	uid, ok := d.uids[email]
	if !ok || auth.VerifyPassword(d.hash, secret) != nil {
		return nil, auth.ErrInvalidCredentials
	}
	return &auth.Account{UID: uid, Email: email}, nil
}

func (d *directory) CreateAccount(context.Context, string, string) (string, error) {
	return "", auth.ErrAccountExists
}

const idleTimeout = 5 * time.Minute

func newRegistry(clk *testclock.Clock, store *memStore, audit *auditLog) *session.Registry {
	return session.NewRegistry(session.ClientConfig{
		Directory:   newDirectory(),
		Tokens:      auth.NewJWTTokenGenerator("test-secret", time.Hour, clk),
		Store:       store,
		Audit:       audit,
		Clock:       clk,
		Logger:      discard,
		IdleTimeout: idleTimeout,
	})
}

var _ = Describe("Registry", func() {
	var (
		ctx      context.Context
		clk      *testclock.Clock
		store    *memStore
		audit    *auditLog
		registry *session.Registry
	)

	BeforeEach(func() {
		ctx = context.Background()
		clk = testclock.NewClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
		store = newMemStore()
		audit = &auditLog{}
		seedProfiles(store, clk.Now())
		registry = newRegistry(clk, store, audit)
		DeferCleanup(registry.Close)
	})

	It("keeps signed-in clients and drops dormant ones", func() {
		active := registry.Open()
		_, err := active.Manager.SignIn(ctx, "user@sss.test", "secret1")
		Expect(err).NotTo(HaveOccurred())

		dormant := registry.Open()
		Eventually(func() bool { return dormant.Manager.State().Empty() }).Should(BeTrue())

		_, ok := registry.Lookup(active.ID)
		Expect(ok).To(BeTrue())
		_, ok = registry.Lookup(dormant.ID)
		Expect(ok).To(BeFalse())
		Expect(registry.Len()).To(Equal(1))
	})

	It("signs an idle client out and forgets it", func() {
		c := registry.Open()
		_, err := c.Manager.SignIn(ctx, "user@sss.test", "secret1")
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Monitor.Armed()).To(BeTrue())

		clk.Advance(idleTimeout)

		Eventually(registry.Len).Should(BeZero())
		Expect(c.Provider.Current()).To(BeNil())
		Expect(audit.types()).To(ContainElements(activity.TypeSignOut, activity.TypeSessionTimeout))
	})

	It("keeps an active client alive past the threshold", func() {
		c := registry.Open()
		_, err := c.Manager.SignIn(ctx, "user@sss.test", "secret1")
		Expect(err).NotTo(HaveOccurred())

		clk.Advance(idleTimeout - time.Second)
		c.Monitor.Signal("key-press")
		clk.Advance(2 * time.Second)

		Consistently(registry.Len, 50*time.Millisecond).Should(Equal(1))
		Expect(c.Manager.State().Authenticated()).To(BeTrue())
	})

	It("closes a client that stays dormant", func() {
		c := registry.Open()
		Eventually(func() bool { return c.Manager.State().Empty() }).Should(BeTrue())
		Expect(registry.Len()).To(Equal(1))

		Expect(clk.WaitAdvance(session.DefaultDormantTTL, time.Second, 1)).To(Succeed())
		Eventually(registry.Len).Should(BeZero())
	})

	It("re-reads the profile behind each request", func() {
		c := registry.Open()
		_, err := c.Manager.SignIn(ctx, "user@sss.test", "secret1")
		Expect(err).NotTo(HaveOccurred())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/navigation", nil)
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: c.ID})
		p, ok := registry.ProfileFromRequest(req)
		Expect(ok).To(BeTrue())
		Expect(p.UID).To(Equal("uid-user"))

		disabled := profile.StatusDisabled
		Expect(store.MergeUpdate(ctx, "uid-user", profile.Patch{Status: &disabled})).To(Succeed())

		_, ok = registry.ProfileFromRequest(req)
		Expect(ok).To(BeFalse())
		Expect(c.Provider.Current()).To(BeNil())
	})

	It("disarms the monitor on sign-out", func() {
		c := registry.Open()
		_, err := c.Manager.SignIn(ctx, "user@sss.test", "secret1")
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Manager.SignOut(ctx)).To(Succeed())

		Expect(c.Monitor.Armed()).To(BeFalse())
	})
})

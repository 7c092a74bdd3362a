package session_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/juju/clock/testclock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/time/rate"

	"github.com/frahmantamala/sss-portal/internal/auth"
	"github.com/frahmantamala/sss-portal/internal/guard"
	"github.com/frahmantamala/sss-portal/internal/session"
	"github.com/frahmantamala/sss-portal/internal/transport"
)

var _ = Describe("Handler", func() {
	var (
		clk      *testclock.Clock
		store    *memStore
		registry *session.Registry
		handler  *session.Handler
	)

	BeforeEach(func() {
		clk = testclock.NewClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
		store = newMemStore()
		seedProfiles(store, clk.Now())
		registry = newRegistry(clk, store, &auditLog{})
		DeferCleanup(registry.Close)
		handler = session.NewHandler(transport.NewBaseHandler(discard), registry, guard.NewRoutes(), nil)
	})

	do := func(h http.HandlerFunc, method, target, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		if cookie != nil {
			req.AddCookie(cookie)
		}
		rec := httptest.NewRecorder()
		h(rec, req)
		return rec
	}

	sessionCookie := func(rec *httptest.ResponseRecorder) *http.Cookie {
		for _, c := range rec.Result().Cookies() {
			if c.Name == session.CookieName {
				return c
			}
		}
		return nil
	}

	loginWith := func(h *session.Handler, email, password, returnTo string) *httptest.ResponseRecorder {
		body, err := json.Marshal(map[string]string{"email": email, "password": password, "return_to": returnTo})
		Expect(err).NotTo(HaveOccurred())
		return do(h.Login, http.MethodPost, "/api/v1/auth/login", string(body), nil)
	}

	login := func(email, password, returnTo string) *httptest.ResponseRecorder {
		return loginWith(handler, email, password, returnTo)
	}

	It("signs in and redirects to the requested location", func() {
		rec := login("user@sss.test", "secret1", "/reports/shr")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var resp session.Response
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Redirect).To(Equal("/reports/shr"))
		Expect(resp.State.Profile.UID).To(Equal("uid-user"))
		Expect(resp.Menu).NotTo(BeEmpty())
		Expect(sessionCookie(rec)).NotTo(BeNil())
	})

	It("never redirects off-site", func() {
		rec := login("user@sss.test", "secret1", "//evil.example")
		var resp session.Response
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Redirect).To(Equal(guard.LandingPath))
	})

	DescribeTable("maps sign-in failures",
		func(email, password string, status int, code string) {
			rec := login(email, password, "")
			Expect(rec.Code).To(Equal(status))
			Expect(rec.Body.String()).To(ContainSubstring(code))
			Expect(sessionCookie(rec)).To(BeNil())
			Expect(registry.Len()).To(BeZero())
		},
		Entry("bad password", "user@sss.test", "nope", http.StatusUnauthorized, "INVALID_CREDENTIALS"),
		Entry("disabled account", "disabled@sss.test", "secret1", http.StatusForbidden, "ACCOUNT_DISABLED"),
		Entry("missing fields", "", "", http.StatusBadRequest, "VALIDATION_FAILED"),
	)

	It("throttles cookieless sign-in attempts per address and email", func() {
		limited := session.NewRegistry(session.ClientConfig{
			Directory:   newDirectory(),
			Tokens:      auth.NewJWTTokenGenerator("test-secret", time.Hour, clk),
			Store:       store,
			Clock:       clk,
			Logger:      discard,
			IdleTimeout: idleTimeout,
			LoginRate:   rate.Every(time.Hour),
			LoginBurst:  1,
		})
		DeferCleanup(limited.Close)
		h := session.NewHandler(transport.NewBaseHandler(discard), limited, guard.NewRoutes(), nil)

		codes := map[int]int{}
		for i := 0; i < 20; i++ {
			rec := loginWith(h, "user@sss.test", "nope", "")
			codes[rec.Code]++
			Expect(sessionCookie(rec)).To(BeNil())
		}
		Expect(codes).To(Equal(map[int]int{http.StatusUnauthorized: 1, http.StatusTooManyRequests: 19}))
		Expect(limited.Len()).To(BeZero())

		clk.Advance(time.Hour)
		Expect(loginWith(h, "user@sss.test", "secret1", "").Code).To(Equal(http.StatusOK))
		Expect(limited.Len()).To(Equal(1))
	})

	It("guards navigation with the caller's session", func() {
		cookie := sessionCookie(login("user@sss.test", "secret1", ""))

		rec := do(handler.Navigate, http.MethodGet, "/api/v1/navigate?to=/attendance/pending", "", cookie)
		Expect(rec.Code).To(Equal(http.StatusOK))
		var out guard.Outcome
		Expect(json.Unmarshal(rec.Body.Bytes(), &out)).To(Succeed())
		Expect(out).To(Equal(guard.Outcome{Kind: guard.Block, Reason: guard.ReasonDenied}))

		rec = do(handler.Navigate, http.MethodGet, "/api/v1/navigate?to=/dashboard", "", nil)
		Expect(json.Unmarshal(rec.Body.Bytes(), &out)).To(Succeed())
		Expect(out.Kind).To(Equal(guard.Redirect))
		Expect(out.ReturnTo).To(Equal("/dashboard"))
	})

	It("accepts interaction signals from signed-in clients only", func() {
		cookie := sessionCookie(login("user@sss.test", "secret1", ""))

		Expect(do(handler.Activity, http.MethodPost, "/api/v1/activity", `{"signal":"scroll"}`, cookie).Code).
			To(Equal(http.StatusNoContent))
		Expect(do(handler.Activity, http.MethodPost, "/api/v1/activity", `{"signal":"blink"}`, cookie).Body.String()).
			To(ContainSubstring("INVALID_SIGNAL"))
		Expect(do(handler.Activity, http.MethodPost, "/api/v1/activity", `{"signal":"scroll"}`, nil).Code).
			To(Equal(http.StatusUnauthorized))
	})

	It("logs out idempotently", func() {
		cookie := sessionCookie(login("user@sss.test", "secret1", ""))

		Expect(do(handler.Logout, http.MethodPost, "/api/v1/auth/logout", "", cookie).Code).To(Equal(http.StatusNoContent))
		Expect(do(handler.Logout, http.MethodPost, "/api/v1/auth/logout", "", cookie).Code).To(Equal(http.StatusNoContent))
		Expect(registry.Len()).To(BeZero())

		rec := do(handler.Session, http.MethodGet, "/api/v1/session", "", cookie)
		var resp session.Response
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.State.Authenticated()).To(BeFalse())
		Expect(resp.Menu).To(BeEmpty())
	})
})

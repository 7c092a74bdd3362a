package rest_test

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/sss-portal/internal/guard"
	"github.com/frahmantamala/sss-portal/internal/obs"
	"github.com/frahmantamala/sss-portal/internal/session"
	"github.com/frahmantamala/sss-portal/internal/transport"
	"github.com/frahmantamala/sss-portal/internal/transport/rest"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestRest(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "REST Suite")
}

var _ = Describe("Router", func() {
	var (
		mock   sqlmock.Sqlmock
		router *chi.Mux
	)

	BeforeEach(func() {
		db, m, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		Expect(err).NotTo(HaveOccurred())
		mock = m
		DeferCleanup(func() {
			mock.ExpectClose()
			Expect(db.Close()).To(Succeed())
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})

		router = chi.NewRouter()
		rest.RegisterAllRoutes(router, rest.Routes{
			DB:      db,
			Metrics: obs.New(true),
			Logger:  discard,
		})
	})

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	It("answers liveness without touching the database", func() {
		Expect(get("/api/v1/ping").Code).To(Equal(http.StatusOK))
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	It("reports a healthy database", func() {
		mock.ExpectPing()
		rec := get("/api/v1/health")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"status":"healthy"`))
		Expect(rec.Header().Get("X-Trace-ID")).NotTo(BeEmpty())
	})

	It("reports an unreachable database as unavailable", func() {
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))
		rec := get("/api/v1/health")
		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
		Expect(rec.Body.String()).To(ContainSubstring("connection refused"))
	})

	It("exposes metrics when enabled", func() {
		rec := get("/metrics")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("go_goroutines"))
	})
})

var _ = Describe("Session routes", func() {
	var router *chi.Mux

	BeforeEach(func() {
		registry := session.NewRegistry(session.ClientConfig{Logger: discard})
		DeferCleanup(registry.Close)

		router = chi.NewRouter()
		rest.RegisterAllRoutes(router, rest.Routes{
			Sessions:       registry,
			SessionHandler: session.NewHandler(transport.NewBaseHandler(discard), registry, guard.NewRoutes(), nil),
			Logger:         discard,
		})
	})

	DescribeTable("turn anonymous callers away",
		func(method, path string) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(`{"signal":"scroll"}`)))
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(rec.Body.String()).To(ContainSubstring("NOT_AUTHENTICATED"))
		},
		Entry("navigation", http.MethodGet, "/api/v1/navigation"),
		Entry("activity", http.MethodPost, "/api/v1/activity"),
	)

	It("lets anonymous callers read their session", func() {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"menu":[]`))
	})
})

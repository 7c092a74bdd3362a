package rest_test

import (
	"context"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/sss-portal/internal/guard"
	"github.com/frahmantamala/sss-portal/internal/profile"
	"github.com/frahmantamala/sss-portal/internal/session"
	"github.com/frahmantamala/sss-portal/internal/transport"
	"github.com/frahmantamala/sss-portal/internal/transport/rest"
)

const apiPrefix = "/api/v1"

var _ = Describe("OpenAPI document", func() {
	var doc *openapi3.T

	BeforeEach(func() {
		var err error
		doc, err = openapi3.NewLoader().LoadFromFile("../../../api/openapi.yml")
		Expect(err).NotTo(HaveOccurred())
	})

	It("is a valid document", func() {
		Expect(doc.Validate(context.Background())).To(Succeed())
	})

	It("describes every API route the router serves", func() {
		registry := session.NewRegistry(session.ClientConfig{Logger: discard})
		DeferCleanup(registry.Close)
		base := transport.NewBaseHandler(discard)

		router := chi.NewRouter()
		rest.RegisterAllRoutes(router, rest.Routes{
			Sessions:       registry,
			SessionHandler: session.NewHandler(base, registry, guard.NewRoutes(), nil),
			ProfileHandler: profile.NewHandler(base, nil),
			Logger:         discard,
		})

		var missing []string
		err := chi.Walk(router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
			if !strings.HasPrefix(route, apiPrefix) {
				return nil
			}
			path := strings.TrimPrefix(route, apiPrefix)
			if len(path) > 1 {
				path = strings.TrimSuffix(path, "/")
			}
			item := doc.Paths.Find(path)
			if item == nil || item.GetOperation(method) == nil {
				missing = append(missing, method+" "+path)
			}
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(missing).To(BeEmpty())
	})
})

package permission_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/sss-portal/internal/permission"
)

func TestPermission(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Permission Suite")
}

type subject struct {
	admin  bool
	grants permission.Grants
}

func (s *subject) IsAdministrator() bool {
	return s != nil && s.admin
}

func (s *subject) PermissionGrants() permission.Grants {
	if s == nil {
		return nil
	}
	return s.grants
}

var _ = Describe("Normalize", func() {
	It("lower-cases and strips whitespace", func() {
		Expect(permission.Normalize("Stake Holder Request")).To(Equal("stakeholderrequest"))
		Expect(permission.Normalize(" New\tRequest ")).To(Equal("newrequest"))
		Expect(permission.Normalize("backgroundCheck")).To(Equal("backgroundcheck"))
	})

	DescribeTable("maps labels and keys onto catalog modules",
		func(name string, want permission.Module) {
			got, ok := permission.ParseModule(name)
			Expect(ok).To(BeTrue())
			Expect(got).To(Equal(want))
		},
		Entry("storage key", "stakeholder", permission.Stakeholder),
		Entry("navigation label", "Stake Holder Request", permission.Stakeholder),
		Entry("camel case key", "backgroundCheck", permission.BackgroundCheck),
		Entry("lower-cased camel key", "backgroundcheck", permission.BackgroundCheck),
		Entry("spaced label", "Background Check Request", permission.BackgroundCheck),
		Entry("visitors label", "Visitors Management", permission.VisitorsManagement),
		Entry("reports", "REPORTS", permission.Reports),
	)

	It("rejects unknown modules and actions", func() {
		_, ok := permission.ParseModule("payroll")
		Expect(ok).To(BeFalse())
		_, ok = permission.ParseAction("approve")
		Expect(ok).To(BeFalse())
	})

	It("maps navigation sub-items onto actions", func() {
		a, ok := permission.ParseAction("New Request")
		Expect(ok).To(BeTrue())
		Expect(a).To(Equal(permission.Create))
		a, _ = permission.ParseAction("Pending")
		Expect(a).To(Equal(permission.View))
		a, _ = permission.ParseAction("Update")
		Expect(a).To(Equal(permission.Edit))
	})
})

var _ = Describe("Catalog", func() {
	It("limits reports to view and create", func() {
		Expect(permission.Reports.Actions()).To(ConsistOf(permission.View, permission.Create))
		Expect(permission.Reports.Supports(permission.Delete)).To(BeFalse())
		Expect(permission.Attendance.Supports(permission.Delete)).To(BeTrue())
	})

	It("denies every pair by default", func() {
		g := permission.DefaultGrants()
		Expect(g).To(HaveLen(len(permission.Modules())))
		for _, p := range permission.Pairs() {
			Expect(g.Allowed(p.Module, p.Action)).To(BeFalse(), p.String())
		}
		Expect(g.Any()).To(BeFalse())
	})
})

var _ = Describe("Resolve", func() {
	It("allows administrators everything, including unknown names", func() {
		admin := &subject{admin: true}
		for _, p := range permission.Pairs() {
			Expect(permission.Allows(admin, p)).To(BeTrue())
		}
		Expect(permission.Resolve(admin, "payroll", "approve")).To(BeTrue())
		Expect(permission.Resolve(admin, "admin", "view")).To(BeTrue())
	})

	It("returns the stored boolean for non-administrators", func() {
		g := permission.DefaultGrants()
		g.Set(permission.Reports, permission.View, true)
		g.Set(permission.BackgroundCheck, permission.Edit, true)
		user := &subject{grants: g}

		Expect(permission.Resolve(user, "reports", "view")).To(BeTrue())
		Expect(permission.Resolve(user, "Reports", " VIEW ")).To(BeTrue())
		Expect(permission.Resolve(user, "reports", "create")).To(BeFalse())
		Expect(permission.Resolve(user, "Background Check", "edit")).To(BeTrue())
		Expect(permission.Resolve(user, "backgroundcheck", "edit")).To(BeTrue())
	})

	It("matches stored keys whatever their spelling", func() {
		user := &subject{grants: permission.Grants{
			"visitorsmanagement": {"View": true},
		}}
		Expect(permission.Resolve(user, "visitorsManagement", "view")).To(BeTrue())
	})

	It("denies missing keys, unknown names and unsupported pairs", func() {
		user := &subject{grants: permission.Grants{
			"reports": {"delete": true},
			"admin":   {"view": true},
		}}
		Expect(permission.Resolve(user, "attendance", "view")).To(BeFalse())
		Expect(permission.Resolve(user, "reports", "delete")).To(BeFalse())
		Expect(permission.Resolve(user, "admin", "view")).To(BeFalse())
		Expect(permission.Resolve(user, "", "")).To(BeFalse())
	})

	It("denies nil subjects and nil tables without panicking", func() {
		var nobody *subject
		Expect(permission.Resolve(nil, "reports", "view")).To(BeFalse())
		Expect(permission.Resolve(nobody, "reports", "view")).To(BeFalse())
		Expect(permission.Resolve(&subject{}, "reports", "view")).To(BeFalse())
	})
})

var _ = Describe("Grants", func() {
	It("canonicalizes stored keys", func() {
		g, err := permission.Grants{
			"Background Check": {"New Request": true},
			"reports":          {"view": true},
		}.Canonical()
		Expect(err).NotTo(HaveOccurred())
		Expect(g["backgroundCheck"]["create"]).To(BeTrue())
		Expect(g["reports"]["view"]).To(BeTrue())
		Expect(g["attendance"]).To(HaveKeyWithValue("delete", false))
	})

	It("rejects keys outside the catalog", func() {
		_, err := permission.Grants{"payroll": {"view": true}}.Canonical()
		Expect(err).To(MatchError(ContainSubstring("unknown module")))

		_, err = permission.Grants{"reports": {"delete": true}}.Canonical()
		Expect(err).To(MatchError(ContainSubstring("unknown action")))
	})

	It("clones deeply", func() {
		g := permission.DefaultGrants()
		cp := g.Clone()
		cp.Set(permission.Attendance, permission.View, true)
		Expect(g.Allowed(permission.Attendance, permission.View)).To(BeFalse())
	})
})

var _ = Describe("Menu", func() {
	It("shows only the dashboard to an unpermissioned user", func() {
		items := permission.Menu(&subject{grants: permission.DefaultGrants()})
		Expect(items).To(HaveLen(1))
		Expect(items[0].Path).To(Equal("/dashboard"))
	})

	It("filters sub-items by the actions they map to", func() {
		g := permission.DefaultGrants()
		g.Set(permission.Stakeholder, permission.Create, true)
		g.Set(permission.Stakeholder, permission.View, true)
		items := permission.Menu(&subject{grants: g})

		Expect(items).To(HaveLen(2))
		Expect(items[1].Label).To(Equal("Stake Holder Request"))
		Expect(items[1].SubItems).To(Equal([]permission.SubItem{
			{Label: "New Request", Path: "/stakeholder/new-request"},
			{Label: "Pending", Path: "/stakeholder/pending"},
		}))
	})

	It("adds the admin dashboard for administrators", func() {
		items := permission.Menu(&subject{admin: true})
		Expect(items[len(items)-1].Path).To(Equal("/admin"))
		Expect(items).To(HaveLen(len(permission.Modules()) + 2))
	})
})

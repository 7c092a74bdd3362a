package guard

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/sss-portal/internal/permission"
)

// Routes is the portal destination table.
type Routes struct {
	mux          *chi.Mux
	destinations map[string]Destination
}

var adminView = permission.Pair{Module: permission.Module("admin"), Action: permission.View}

// NewRoutes builds the table of every protected portal page. Module pages
// require view on their module; the admin dashboard requires a pair no
// grant table holds, so only administrators pass.
func NewRoutes() *Routes {
	r := &Routes{
		mux:          chi.NewRouter(),
		destinations: map[string]Destination{},
	}
	r.add("/dashboard", "dashboard", nil)
	r.add("/stakeholder/{action}", "stakeholder", &permission.Pair{Module: permission.Stakeholder, Action: permission.View})
	r.add("/background/{action}", "background-check", &permission.Pair{Module: permission.BackgroundCheck, Action: permission.View})
	r.add("/badge/{action}", "badge-request", &permission.Pair{Module: permission.BadgeRequest, Action: permission.View})
	r.add("/access/{action}", "access-request", &permission.Pair{Module: permission.AccessRequest, Action: permission.View})
	r.add("/attendance/{action}", "attendance", &permission.Pair{Module: permission.Attendance, Action: permission.View})
	r.add("/visitors/{action}", "visitors-management", &permission.Pair{Module: permission.VisitorsManagement, Action: permission.View})
	r.add("/reports/{type}", "reports", &permission.Pair{Module: permission.Reports, Action: permission.View})
	r.add(AdminPath, "admin-dashboard", &adminView)
	return r
}

func (r *Routes) add(pattern, name string, required *permission.Pair) {
	r.mux.Get(pattern, func(http.ResponseWriter, *http.Request) {})
	r.destinations[pattern] = Destination{Name: name, Required: required}
}

// Match resolves a concrete path to its destination.
func (r *Routes) Match(path string) (Destination, bool) {
	rctx := chi.NewRouteContext()
	if !r.mux.Match(rctx, http.MethodGet, path) {
		return Destination{}, false
	}
	dest, ok := r.destinations[rctx.RoutePattern()]
	if !ok {
		return Destination{}, false
	}
	dest.Path = path
	return dest, true
}

// Navigate decides the outcome of navigating to rawPath. The root and the
// sign-in page are handled before the table; unknown paths render the
// not-found page without protection.
func (r *Routes) Navigate(s Session, rawPath string) Outcome {
	path := cleanPath(rawPath)
	switch path {
	case "/":
		if s != nil && s.IsLoading() {
			return Outcome{Kind: Render, View: ViewLoading}
		}
		if s != nil && s.Authenticated() {
			return Outcome{Kind: Redirect, Target: LandingPath}
		}
		return Outcome{Kind: Redirect, Target: LoginPath}
	case LoginPath:
		if s != nil && !s.IsLoading() && s.Authenticated() {
			return Outcome{Kind: Redirect, Target: LandingPath}
		}
		return Outcome{Kind: Render, View: ViewLogin}
	}

	dest, ok := r.Match(path)
	if !ok {
		return Outcome{Kind: Render, View: ViewNotFound}
	}
	return Evaluate(s, dest)
}

func cleanPath(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		raw = u.Path
	}
	if raw == "" {
		return "/"
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	if len(raw) > 1 {
		raw = strings.TrimSuffix(raw, "/")
	}
	return raw
}

package middleware

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/sss-portal/internal"
	"github.com/frahmantamala/sss-portal/internal/profile"
	"github.com/frahmantamala/sss-portal/internal/transport"
)

// Authorization gates routes on the profile ClientSession placed on the
// context.
type Authorization struct {
	*transport.BaseHandler
}

func NewAuthorization(logger *slog.Logger) *Authorization {
	return &Authorization{BaseHandler: transport.NewBaseHandler(logger)}
}

// RequireSignedIn rejects anonymous requests.
func (a *Authorization) RequireSignedIn() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := profile.FromContext(r.Context()); !ok {
				a.HandleServiceError(w, internal.ErrNotAuthenticated)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Authorization) RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := profile.FromContext(r.Context())
			if !ok {
				a.HandleServiceError(w, internal.ErrNotAuthenticated)
				return
			}
			if !p.IsAdministrator() {
				a.Logger.WarnContext(r.Context(), "access denied: administrator required",
					"user_id", p.UID,
					"role", p.Role)
				a.HandleServiceError(w, internal.ErrAdminRequired)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import (
	"net/http"

	"github.com/frahmantamala/sss-portal/internal"
	"github.com/frahmantamala/sss-portal/internal/profile"
	"github.com/frahmantamala/sss-portal/pkg/logger"
)

// ProfileResolver finds the signed-in profile behind a request.
type ProfileResolver interface {
	ProfileFromRequest(r *http.Request) (*profile.Profile, bool)
}

// ClientSession puts the caller's profile, if any, on the request context.
// Anonymous requests pass through untouched.
func ClientSession(resolver ProfileResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := resolver.ProfileFromRequest(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx := profile.WithProfile(r.Context(), p)
			ctx = internal.ContextWithUserID(ctx, p.UID)
			ctx = logger.With(ctx, "userID", p.UID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

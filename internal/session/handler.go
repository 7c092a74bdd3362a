package session

import (
	"errors"
	"net/http"
	"strings"

	"github.com/frahmantamala/sss-portal/internal"
	"github.com/frahmantamala/sss-portal/internal/auth"
	"github.com/frahmantamala/sss-portal/internal/guard"
	"github.com/frahmantamala/sss-portal/internal/idle"
	"github.com/frahmantamala/sss-portal/internal/obs"
	"github.com/frahmantamala/sss-portal/internal/permission"
	"github.com/frahmantamala/sss-portal/internal/profile"
	"github.com/frahmantamala/sss-portal/internal/transport"
)

type Response struct {
	State    State                 `json:"state"`
	Menu     []permission.MenuItem `json:"menu"`
	Redirect string                `json:"redirect,omitempty"`
}

type ActivityRequest struct {
	Signal string `json:"signal"`
}

type Handler struct {
	*transport.BaseHandler
	Registry *Registry
	Routes   *guard.Routes
	Metrics  *obs.Metrics
	// SecureCookie marks the session cookie Secure; enable behind TLS.
	SecureCookie bool
}

func NewHandler(baseHandler *transport.BaseHandler, registry *Registry, routes *guard.Routes, metrics *obs.Metrics) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Registry:    registry,
		Routes:      routes,
		Metrics:     metrics,
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto auth.LoginDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	dto.Normalize()
	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	if !h.Registry.AllowSignIn(r.RemoteAddr) {
		h.Metrics.SignIn(string(auth.CodeTooManyAttempts))
		h.HandleServiceError(w, signInError(auth.NewAuthError(auth.CodeTooManyAttempts, nil)))
		return
	}

	c, existing := h.Registry.FromRequest(r)
	if !existing {
		c = h.Registry.Open()
	}

	p, err := c.Manager.SignIn(r.Context(), dto.Email, dto.Password)
	if err != nil {
		if !existing {
			h.Registry.Remove(c.ID)
		}
		h.HandleServiceError(w, signInError(err))
		return
	}
	h.setCookie(w, c.ID)

	st := c.Manager.State()
	h.WriteJSON(w, http.StatusOK, Response{
		State:    st,
		Menu:     permission.Menu(p),
		Redirect: safeReturnTo(dto.ReturnTo),
	})
}

// Logout is idempotent: a request without a live client still succeeds.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, ok := h.Registry.FromRequest(r); ok {
		if err := c.Manager.SignOut(r.Context()); err != nil {
			h.HandleServiceError(w, err)
			return
		}
		h.Registry.Remove(c.ID)
	}
	h.clearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	st := h.state(r)
	resp := Response{State: st, Menu: []permission.MenuItem{}}
	if st.Authenticated() {
		resp.Menu = permission.Menu(st.Profile)
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

// Navigate reports what the guard decides for ?to=.
func (h *Handler) Navigate(w http.ResponseWriter, r *http.Request) {
	to := r.URL.Query().Get("to")
	if to == "" {
		to = "/"
	}
	out := h.Routes.Navigate(h.state(r), to)
	h.Metrics.GuardOutcome(string(out.Kind), out.Reason)
	h.WriteJSON(w, http.StatusOK, out)
}

// Navigation serves the caller's menu. It runs behind ClientSession and
// RequireSignedIn.
func (h *Handler) Navigation(w http.ResponseWriter, r *http.Request) {
	p, ok := profile.FromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrNotAuthenticated)
		return
	}
	h.WriteJSON(w, http.StatusOK, permission.Menu(p))
}

// Activity resets the idle deadline of the caller's session. It runs behind
// ClientSession and RequireSignedIn.
func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	c, ok := h.Registry.FromRequest(r)
	if !ok {
		h.HandleServiceError(w, internal.ErrNotAuthenticated)
		return
	}

	var req ActivityRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}
	signal, err := idle.ParseSignal(req.Signal)
	if err != nil {
		h.HandleServiceError(w, internal.NewValidationError(err.Error(), internal.ErrCodeInvalidSignal))
		return
	}

	c.Monitor.Signal(signal)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) state(r *http.Request) State {
	_, st, _ := h.Registry.Current(r)
	return st
}

func (h *Handler) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// safeReturnTo keeps only local paths, falling back to the landing page.
func safeReturnTo(to string) string {
	if !strings.HasPrefix(to, "/") || strings.HasPrefix(to, "//") || to == guard.LoginPath {
		return guard.LandingPath
	}
	return to
}

// signInError maps sign-in failures to API errors.
func signInError(err error) error {
	var authErr *auth.AuthError
	if !errors.As(err, &authErr) {
		var resolveErr *auth.ProfileResolutionError
		if errors.As(err, &resolveErr) {
			return internal.NewInternalError(profileUnavailableMessage, err)
		}
		return internal.NewInternalError("Sign-in failed", err)
	}

	msg := authErr.Message()
	switch authErr.Code {
	case auth.CodeInvalidCredentials:
		return internal.NewUnauthorizedError(msg, internal.ErrCodeInvalidCredentials)
	case auth.CodeAccountNotFound:
		return internal.NewForbiddenError(msg, internal.ErrCodeAccountNotFound)
	case auth.CodeAccountDisabled:
		return internal.NewForbiddenError(msg, internal.ErrCodeAccountDisabled)
	case auth.CodeSignInInProgress:
		return internal.NewConflictError(msg, internal.ErrCodeSignInInProgress)
	case auth.CodeSessionSuperseded:
		return internal.NewConflictError(msg, internal.ErrCodeSessionSuperseded)
	case auth.CodeTooManyAttempts:
		return internal.NewRateLimitedError(msg, internal.ErrCodeTooManyAttempts)
	case auth.CodeInvalidSession:
		return internal.NewUnauthorizedError(msg, internal.ErrCodeNotAuthenticated)
	}
	return internal.NewUnauthorizedError(msg, internal.ErrCodeInvalidCredentials)
}

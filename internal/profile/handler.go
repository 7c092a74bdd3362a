package profile

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/sss-portal/internal"
	"github.com/frahmantamala/sss-portal/internal/transport"
)

type ctxKey string

const contextProfileKey ctxKey = "profile"

// WithProfile stores the signed-in profile on ctx.
func WithProfile(ctx context.Context, p *Profile) context.Context {
	return context.WithValue(ctx, contextProfileKey, p)
}

func FromContext(ctx context.Context) (*Profile, bool) {
	p, ok := ctx.Value(contextProfileKey).(*Profile)
	return p, ok && p != nil
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := FromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, errors.ErrNotAuthenticated)
		return
	}

	q := ListUsersQuery{
		Role:   r.URL.Query().Get("role"),
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("search"),
	}
	users, err := h.Service.ListUsers(r.Context(), actor, q.Filter())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	if users == nil {
		users = []*Profile{}
	}

	h.WriteJSON(w, http.StatusOK, UsersResponse{Users: users})
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := FromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, errors.ErrNotAuthenticated)
		return
	}

	var dto CreateUserDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	created, err := h.Service.CreateUser(r.Context(), actor, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := FromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, errors.ErrNotAuthenticated)
		return
	}

	uid := chi.URLParam(r, "uid")
	var dto UpdateUserDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	updated, err := h.Service.UpdateUser(r.Context(), actor, uid, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	actor, ok := FromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, errors.ErrNotAuthenticated)
		return
	}

	resp, err := h.Service.Dashboard(r.Context(), actor)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

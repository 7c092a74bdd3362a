package session

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"golang.org/x/time/rate"

	"github.com/frahmantamala/sss-portal/internal/activity"
	"github.com/frahmantamala/sss-portal/internal/auth"
	"github.com/frahmantamala/sss-portal/internal/idle"
	"github.com/frahmantamala/sss-portal/internal/obs"
	"github.com/frahmantamala/sss-portal/internal/profile"
)

// CookieName carries the client id between requests.
const CookieName = "sss_session"

// DefaultDormantTTL is how long a client with nothing to show is kept
// before it is closed.
const DefaultDormantTTL = time.Minute

// ClientConfig is shared by every client runtime a Registry opens.
type ClientConfig struct {
	Directory      auth.Directory
	Tokens         auth.TokenIssuer
	Store          profile.Store
	Audit          AuditLog
	Clock          clock.Clock
	Logger         *slog.Logger
	Metrics        *obs.Metrics
	IdleTimeout    time.Duration
	ErrorTTL       time.Duration
	DormantTTL     time.Duration
	RequireProfile bool
	// LoginRate is sign-in attempts per second, budgeted per email and per
	// remote address; zero disables throttling.
	LoginRate  rate.Limit
	LoginBurst int
}

// Client is one browser's runtime: its provider, session and idle monitor.
type Client struct {
	ID       string
	Provider *auth.LocalProvider
	Manager  *Manager
	Monitor  *idle.Monitor
}

func (c *Client) close() {
	c.Monitor.Close()
	c.Manager.Close()
	if err := c.Provider.SignOut(context.Background()); err != nil {
		c.Manager.logger.Warn("provider sign-out on close failed", "client", c.ID, "error", err)
	}
}

// Registry holds the live clients of the server keyed by cookie value.
type Registry struct {
	cfg     ClientConfig
	ctx     context.Context
	cancel  context.CancelFunc
	limiter *KeyedLimiter

	mu      sync.Mutex
	clients map[string]*Client
}

func NewRegistry(cfg ClientConfig) *Registry {
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DormantTTL <= 0 {
		cfg.DormantTTL = DefaultDormantTTL
	}
	var limiter *KeyedLimiter
	if cfg.LoginRate > 0 {
		limiter = NewKeyedLimiter(cfg.LoginRate, cfg.LoginBurst, cfg.Clock)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		limiter: limiter,
		clients: make(map[string]*Client),
	}
}

// Open creates and starts a new client.
func (r *Registry) Open() *Client {
	id := uuid.NewString()
	logger := r.cfg.Logger.With("client", id)

	provider := auth.NewLocalProvider(r.cfg.Directory, r.cfg.Tokens, r.cfg.Clock, logger)

	var tokens auth.TokenVerifier
	if r.cfg.Tokens != nil {
		tokens = r.cfg.Tokens
	}

	manager := NewManager(Config{
		Provider:       provider,
		Store:          r.cfg.Store,
		Audit:          r.cfg.Audit,
		Clock:          r.cfg.Clock,
		Logger:         logger,
		Metrics:        r.cfg.Metrics,
		ErrorTTL:       r.cfg.ErrorTTL,
		RequireProfile: r.cfg.RequireProfile,
		Tokens:         tokens,
		LoginLimiter:   r.limiter,
	})

	c := &Client{ID: id, Provider: provider, Manager: manager}
	c.Monitor = idle.NewMonitor(idle.Config{
		Clock:     r.cfg.Clock,
		Threshold: r.cfg.IdleTimeout,
		SignOuter: &timeoutSignOut{manager: manager, audit: r.cfg.Audit, metrics: r.cfg.Metrics, clock: r.cfg.Clock},
		OnExpire:  func() { r.Remove(id) },
		Logger:    logger,
	})

	manager.Start(r.ctx)
	c.Monitor.Watch(manager)
	manager.Watch(func(s State) {
		if s.Empty() {
			r.cfg.Clock.AfterFunc(r.cfg.DormantTTL, func() { r.sweep(id) })
		}
	})

	r.mu.Lock()
	r.clients[id] = c
	r.mu.Unlock()

	r.cfg.Metrics.ClientOpened()
	logger.Debug("client opened")
	return c
}

// Lookup returns the client for id. Clients left with nothing to show are
// dropped on the way.
func (r *Registry) Lookup(id string) (*Client, bool) {
	if id == "" {
		return nil, false
	}
	r.mu.Lock()
	c, ok := r.clients[id]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	if c.Manager.State().Empty() {
		r.Remove(id)
		return nil, false
	}
	return c, true
}

// sweep closes the client if it is still dormant.
func (r *Registry) sweep(id string) {
	r.mu.Lock()
	c, ok := r.clients[id]
	r.mu.Unlock()
	if ok && c.Manager.State().Empty() {
		c.Manager.logger.Debug("closing dormant client")
		r.Remove(id)
	}
}

// AllowSignIn spends one sign-in attempt from the remote address budget.
func (r *Registry) AllowSignIn(remoteAddr string) bool {
	if r.limiter == nil {
		return true
	}
	return r.limiter.Allow(addrKey(remoteAddr))
}

// FromRequest resolves the client named by the request cookie.
func (r *Registry) FromRequest(req *http.Request) (*Client, bool) {
	cookie, err := req.Cookie(CookieName)
	if err != nil {
		return nil, false
	}
	return r.Lookup(cookie.Value)
}

// Current returns the request's client and its session, re-checked against
// the token issuer and the profile store.
func (r *Registry) Current(req *http.Request) (*Client, State, bool) {
	c, ok := r.FromRequest(req)
	if !ok {
		return nil, State{}, false
	}
	return c, c.Manager.Refresh(req.Context()), true
}

// ProfileFromRequest returns the signed-in profile of the request's client.
func (r *Registry) ProfileFromRequest(req *http.Request) (*profile.Profile, bool) {
	_, st, ok := r.Current(req)
	if !ok || !st.Authenticated() {
		return nil, false
	}
	return st.Profile, true
}

// Remove closes and forgets the client. Unknown ids are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	c, ok := r.clients[id]
	delete(r.clients, id)
	r.mu.Unlock()
	if !ok {
		return
	}
	c.close()
	r.cfg.Metrics.ClientClosed()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Close shuts every client down.
func (r *Registry) Close() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	for _, c := range clients {
		c.close()
		r.cfg.Metrics.ClientClosed()
	}
	r.cancel()
}

// timeoutSignOut ends a session on behalf of the idle monitor and records
// why.
type timeoutSignOut struct {
	manager *Manager
	audit   AuditLog
	metrics *obs.Metrics
	clock   clock.Clock
}

func (t *timeoutSignOut) SignOut(ctx context.Context) error {
	st := t.manager.State()
	if err := t.manager.SignOut(ctx); err != nil {
		return err
	}
	t.metrics.IdleExpiry()
	if st.Identity != nil && t.audit != nil {
		t.audit.Log(ctx, activity.Record{
			Type:        activity.TypeSessionTimeout,
			PerformedBy: st.Identity.Email,
			TargetUser:  st.Identity.UID,
			Details:     "Session ended after inactivity",
			Timestamp:   t.clock.Now(),
		})
	}
	return nil
}

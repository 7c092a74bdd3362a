package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"

	"github.com/frahmantamala/sss-portal/internal/activity"
	"github.com/frahmantamala/sss-portal/internal/auth"
	"github.com/frahmantamala/sss-portal/internal/obs"
	"github.com/frahmantamala/sss-portal/internal/profile"
)

// DefaultErrorTTL is how long LastError stays visible.
const DefaultErrorTTL = 5 * time.Second

const profileUnavailableMessage = "Unable to load your profile. Please try again"

// AuditLog receives session activity records. Implementations must not
// block the caller on failure.
type AuditLog interface {
	Log(ctx context.Context, rec activity.Record)
}

type Config struct {
	Provider auth.Provider
	Store    profile.Store
	Audit    AuditLog
	Clock    clock.Clock
	Logger   *slog.Logger
	Metrics  *obs.Metrics
	ErrorTTL time.Duration
	// RequireProfile rejects identities without a stored profile instead of
	// provisioning a default one.
	RequireProfile bool
	// Tokens verifies identity tokens before they are committed. Nil trusts
	// the provider.
	Tokens auth.TokenVerifier
	// LoginLimiter throttles SignIn attempts per identifier when set.
	LoginLimiter *KeyedLimiter
}

type notification struct {
	identity *auth.Identity
	token    uint64
}

type watcher struct {
	id int
	fn func(State)
}

// Manager owns the session of one client runtime. Identity notifications
// from the provider are resolved one at a time in arrival order, and only
// the latest one may commit.
type Manager struct {
	provider auth.Provider
	store    profile.Store
	audit    AuditLog
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *obs.Metrics
	tokens   auth.TokenVerifier
	limiter  *KeyedLimiter
	errorTTL time.Duration
	strict   bool

	token atomic.Uint64

	queueMu sync.Mutex
	queue   []notification
	wake    chan struct{}

	// resolveMu serializes resolutions and commits.
	resolveMu sync.Mutex

	// watchMu is held across a state change and its delivery. Watchers must
	// not call state-changing methods synchronously.
	watchMu sync.Mutex

	mu          sync.Mutex
	state       State
	watchers    []watcher
	nextWatcher int
	errGen      uint64
	errTimer    clock.Timer
	unsubscribe func()

	signingIn atomic.Bool

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

func NewManager(cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ErrorTTL <= 0 {
		cfg.ErrorTTL = DefaultErrorTTL
	}
	return &Manager{
		provider: cfg.Provider,
		store:    cfg.Store,
		audit:    cfg.Audit,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		tokens:   cfg.Tokens,
		limiter:  cfg.LoginLimiter,
		errorTTL: cfg.ErrorTTL,
		strict:   cfg.RequireProfile,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		state:    State{Loading: true},
	}
}

// Start subscribes to the provider and begins resolving identity
// notifications. The session stays loading until the first one is handled.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.wg.Add(1)
		go m.run(ctx)

		unsubscribe := m.provider.Subscribe(m.enqueue)
		m.mu.Lock()
		m.unsubscribe = unsubscribe
		m.mu.Unlock()
	})
}

// Close unsubscribes from the provider and stops the resolution loop.
func (m *Manager) Close() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		unsubscribe := m.unsubscribe
		m.unsubscribe = nil
		if m.errTimer != nil {
			m.errTimer.Stop()
			m.errTimer = nil
		}
		m.mu.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}
		close(m.done)
		m.wg.Wait()
	})
}

// State returns a copy of the current session.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

func (m *Manager) HasPermission(module, action string) bool {
	return m.State().HasPermission(module, action)
}

func (m *Manager) IsAdmin() bool {
	return m.State().IsAdmin()
}

func (m *Manager) IsFirstTimeUser() bool {
	return m.State().IsFirstTimeUser()
}

// SignIn verifies credentials with the provider and resolves the profile of
// the resulting identity. The session is populated only on full success.
func (m *Manager) SignIn(ctx context.Context, identifier, secret string) (*profile.Profile, error) {
	if !m.signingIn.CompareAndSwap(false, true) {
		return nil, auth.NewAuthError(auth.CodeSignInInProgress, nil)
	}
	defer m.signingIn.Store(false)

	m.apply(func(s *State) bool {
		s.SigningIn = true
		return true
	}, "")
	defer m.apply(func(s *State) bool {
		s.SigningIn = false
		return true
	}, "")

	if m.limiter != nil && !m.limiter.Allow(identifierKey(identifier)) {
		err := auth.NewAuthError(auth.CodeTooManyAttempts, nil)
		m.rejectSignIn(ctx, err)
		return nil, err
	}

	id, err := m.provider.SignInWithCredentials(ctx, identifier, secret)
	if err != nil {
		m.rejectSignIn(ctx, err)
		return nil, err
	}
	tok := m.token.Load()

	m.resolveMu.Lock()
	p, err := m.completeSignIn(ctx, id, tok)
	m.resolveMu.Unlock()
	if err != nil {
		m.metrics.SignIn(resultLabel(err))
		return nil, err
	}

	m.apply(func(s *State) bool {
		if s.LastError == "" {
			return false
		}
		s.LastError = ""
		return true
	}, "")

	m.record(ctx, activity.Record{
		Type:        activity.TypeSignIn,
		PerformedBy: p.Email,
		TargetUser:  p.UID,
		Details:     "User signed in",
		Timestamp:   m.clock.Now(),
	})
	m.metrics.SignIn("ok")
	m.logger.InfoContext(ctx, "user signed in", "uid", p.UID, "role", p.Role)
	return p.Clone(), nil
}

func (m *Manager) completeSignIn(ctx context.Context, id *auth.Identity, tok uint64) (*profile.Profile, error) {
	m.mu.Lock()
	cur := m.state
	m.mu.Unlock()
	if sameIdentity(cur.Identity, id) && cur.Profile != nil {
		return cur.Profile.Clone(), nil
	}

	p, err := m.resolve(ctx, id)
	if err != nil {
		if m.token.Load() != tok {
			m.logger.WarnContext(ctx, "superseded identity failed to resolve", "uid", id.UID, "error", err)
			return nil, err
		}
		m.fail(ctx, id, err)
		return nil, err
	}
	if !m.commit(tok, id, p) {
		err := auth.NewAuthError(auth.CodeSessionSuperseded, nil)
		m.apply(func(*State) bool { return true }, err.Message())
		return nil, err
	}
	return p, nil
}

func (m *Manager) rejectSignIn(ctx context.Context, err error) {
	m.metrics.SignIn(resultLabel(err))
	m.logger.InfoContext(ctx, "sign-in rejected", "reason", resultLabel(err))
	m.apply(func(*State) bool { return true }, errorMessage(err))
}

// SignOut ends the session. The lastLogout touch is best effort. Calling it
// without a session is a no-op.
func (m *Manager) SignOut(ctx context.Context) error {
	cur := m.State()
	if cur.Identity == nil {
		return nil
	}

	now := m.clock.Now()
	if err := m.store.MergeUpdate(ctx, cur.Identity.UID, profile.Patch{LastLogout: &now}); err != nil {
		m.logger.WarnContext(ctx, "failed to record logout time", "uid", cur.Identity.UID, "error", err)
	}

	if err := m.provider.SignOut(ctx); err != nil {
		return fmt.Errorf("provider sign-out: %w", err)
	}

	m.resolveMu.Lock()
	m.mu.Lock()
	still := sameIdentity(m.state.Identity, cur.Identity)
	m.mu.Unlock()
	if still {
		m.token.Add(1)
		m.apply(clearSession, "")
	}
	m.resolveMu.Unlock()

	if !still {
		return nil
	}

	m.record(ctx, activity.Record{
		Type:        activity.TypeSignOut,
		PerformedBy: cur.Identity.Email,
		TargetUser:  cur.Identity.UID,
		Details:     "User signed out",
		Timestamp:   now,
	})
	m.metrics.SignOut("user")
	m.logger.InfoContext(ctx, "user signed out", "uid", cur.Identity.UID)
	return nil
}

// Watch calls fn with the current state and then after every change, in
// order. The returned function stops delivery.
func (m *Manager) Watch(fn func(State)) (cancel func()) {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()

	m.mu.Lock()
	m.nextWatcher++
	id := m.nextWatcher
	m.watchers = append(m.watchers, watcher{id: id, fn: fn})
	snap := m.state.clone()
	m.mu.Unlock()

	fn(snap)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, w := range m.watchers {
				if w.id == id {
					m.watchers = append(m.watchers[:i:i], m.watchers[i+1:]...)
					return
				}
			}
		})
	}
}

// WatchAuthenticated calls fn with the current signed-in flag and then on
// every transition.
func (m *Manager) WatchAuthenticated(fn func(bool)) (cancel func()) {
	var (
		seen bool
		last bool
	)
	return m.Watch(func(s State) {
		authenticated := s.Authenticated()
		if seen && authenticated == last {
			return
		}
		seen, last = true, authenticated
		fn(authenticated)
	})
}

func (m *Manager) enqueue(id *auth.Identity) {
	n := notification{identity: id, token: m.token.Add(1)}

	m.queueMu.Lock()
	m.queue = append(m.queue, n)
	m.queueMu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) dequeue() (notification, bool) {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	if len(m.queue) == 0 {
		return notification{}, false
	}
	n := m.queue[0]
	m.queue = m.queue[1:]
	return n, true
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case <-ctx.Done():
			return
		case <-m.wake:
		}
		for {
			n, ok := m.dequeue()
			if !ok {
				break
			}
			m.process(ctx, n)
		}
	}
}

func (m *Manager) process(ctx context.Context, n notification) {
	m.resolveMu.Lock()
	defer m.resolveMu.Unlock()

	if n.token != m.token.Load() {
		m.logger.Debug("discarding stale identity notification", "token", n.token)
		return
	}

	if n.identity == nil {
		m.mu.Lock()
		prev := m.state.Identity
		m.mu.Unlock()
		m.apply(clearSession, "")
		if prev != nil {
			m.logger.InfoContext(ctx, "provider ended the session", "uid", prev.UID)
			m.metrics.SignOut("provider")
		}
		return
	}

	m.mu.Lock()
	cur := m.state
	m.mu.Unlock()
	if sameIdentity(cur.Identity, n.identity) {
		return
	}

	p, err := m.resolve(ctx, n.identity)
	if err != nil {
		if n.token != m.token.Load() {
			m.logger.WarnContext(ctx, "superseded identity failed to resolve", "uid", n.identity.UID, "error", err)
			return
		}
		m.fail(ctx, n.identity, err)
		return
	}
	m.commit(n.token, n.identity, p)
}

// resolve loads or provisions the profile of id and checks it may sign in.
func (m *Manager) resolve(ctx context.Context, id *auth.Identity) (*profile.Profile, error) {
	if err := m.verify(id); err != nil {
		return nil, err
	}

	p, err := m.store.Read(ctx, id.UID)
	switch {
	case errors.Is(err, profile.ErrNotFound):
		if m.strict {
			return nil, auth.NewAuthError(auth.CodeAccountNotFound, nil)
		}
		p, err = m.provision(ctx, id)
		if err != nil {
			return nil, &auth.ProfileResolutionError{UID: id.UID, Cause: err}
		}
	case err != nil:
		return nil, &auth.ProfileResolutionError{UID: id.UID, Cause: err}
	}

	if !p.IsActive() {
		return nil, auth.NewAuthError(auth.CodeAccountDisabled, nil)
	}

	now := m.clock.Now()
	if err := m.store.MergeUpdate(ctx, id.UID, profile.Patch{LastLogin: &now}); err != nil {
		m.logger.WarnContext(ctx, "failed to record login time", "uid", id.UID, "error", err)
	} else {
		p.LastLogin = &now
	}
	return p, nil
}

// verify checks the identity token is well signed, unexpired and issued to
// the identity's uid.
func (m *Manager) verify(id *auth.Identity) error {
	if m.tokens == nil {
		return nil
	}
	claims, err := m.tokens.Validate(id.Token)
	if err != nil {
		return auth.NewAuthError(auth.CodeInvalidSession, err)
	}
	if claims.UID != id.UID {
		return auth.NewAuthError(auth.CodeInvalidSession, auth.ErrInvalidToken)
	}
	return nil
}

// Refresh re-reads the signed-in profile so role, status and grant changes
// apply without a new sign-in. An expired token or a disabled account ends
// the session. A failed read keeps the current snapshot.
func (m *Manager) Refresh(ctx context.Context) State {
	m.resolveMu.Lock()
	defer m.resolveMu.Unlock()

	cur := m.State()
	if !cur.Authenticated() {
		return cur
	}
	if err := m.verify(cur.Identity); err != nil {
		m.fail(ctx, cur.Identity, err)
		return m.State()
	}

	p, err := m.store.Read(ctx, cur.Identity.UID)
	if err != nil {
		m.logger.WarnContext(ctx, "profile refresh failed", "uid", cur.Identity.UID, "error", err)
		return cur
	}
	if !p.IsActive() {
		m.fail(ctx, cur.Identity, auth.NewAuthError(auth.CodeAccountDisabled, nil))
		return m.State()
	}

	m.apply(func(s *State) bool {
		if !sameIdentity(s.Identity, cur.Identity) || reflect.DeepEqual(s.Profile, p) {
			return false
		}
		s.Profile = p
		return true
	}, "")
	return m.State()
}

func (m *Manager) provision(ctx context.Context, id *auth.Identity) (*profile.Profile, error) {
	p := profile.NewDefault(id.UID, id.Email, m.clock.Now())
	err := m.store.Create(ctx, p)
	if errors.Is(err, profile.ErrAlreadyExists) {
		return m.store.Read(ctx, id.UID)
	}
	if err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "provisioned default profile", "uid", id.UID, "email", id.Email)
	return p, nil
}

// fail forces the provider and the session back to signed out and records
// the reason for the user.
func (m *Manager) fail(ctx context.Context, id *auth.Identity, err error) {
	m.logger.WarnContext(ctx, "identity resolution failed", "uid", id.UID, "error", err)
	if serr := m.provider.SignOut(ctx); serr != nil {
		m.logger.ErrorContext(ctx, "forced provider sign-out failed", "uid", id.UID, "error", serr)
	}
	m.token.Add(1)
	m.apply(clearSession, errorMessage(err))
}

// commit publishes a resolved identity if tok is still the latest token.
func (m *Manager) commit(tok uint64, id *auth.Identity, p *profile.Profile) bool {
	if m.token.Load() != tok {
		return false
	}
	identity := *id
	m.apply(func(s *State) bool {
		s.Identity = &identity
		s.Profile = p.Clone()
		s.Loading = false
		return true
	}, "")
	return true
}

// apply mutates the state under lock and delivers the result to watchers.
// A non-empty errMsg replaces LastError and restarts its expiry.
func (m *Manager) apply(fn func(*State) bool, errMsg string) {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()

	m.mu.Lock()
	changed := fn(&m.state)
	if errMsg != "" {
		m.state.LastError = errMsg
		m.scheduleErrorClearLocked()
		changed = true
	}
	if !changed {
		m.mu.Unlock()
		return
	}
	snap := m.state.clone()
	watchers := make([]watcher, len(m.watchers))
	copy(watchers, m.watchers)
	m.mu.Unlock()

	for _, w := range watchers {
		w.fn(snap)
	}
}

func (m *Manager) scheduleErrorClearLocked() {
	if m.errTimer != nil {
		m.errTimer.Stop()
	}
	m.errGen++
	gen := m.errGen
	m.errTimer = m.clock.AfterFunc(m.errorTTL, func() { m.clearError(gen) })
}

func (m *Manager) clearError(gen uint64) {
	m.apply(func(s *State) bool {
		if m.errGen != gen || s.LastError == "" {
			return false
		}
		s.LastError = ""
		m.errTimer = nil
		return true
	}, "")
}

func (m *Manager) record(ctx context.Context, rec activity.Record) {
	if m.audit == nil {
		return
	}
	m.audit.Log(ctx, rec)
}

func clearSession(s *State) bool {
	s.Identity = nil
	s.Profile = nil
	s.Loading = false
	return true
}

func sameIdentity(a, b *auth.Identity) bool {
	return a != nil && b != nil && a.UID == b.UID && a.Token == b.Token
}

func errorMessage(err error) string {
	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		return authErr.Message()
	}
	var resolveErr *auth.ProfileResolutionError
	if errors.As(err, &resolveErr) {
		return profileUnavailableMessage
	}
	return "Sign-in failed"
}

func resultLabel(err error) string {
	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		return string(authErr.Code)
	}
	var resolveErr *auth.ProfileResolutionError
	if errors.As(err, &resolveErr) {
		return "profile-unavailable"
	}
	return "error"
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/juju/clock"
)

type subscriber struct {
	id int
	fn func(*Identity)
}

// LocalProvider is the Provider of a single client runtime. It verifies
// credentials against a Directory and keeps the issued identity until
// sign-out or token expiry.
type LocalProvider struct {
	directory Directory
	tokens    TokenIssuer
	clock     clock.Clock
	logger    *slog.Logger

	// notifyMu is held across a state change and its delivery, so
	// subscribers observe changes in the order they happened. Subscribers
	// must not call back into the provider.
	notifyMu sync.Mutex

	mu      sync.Mutex
	current *Identity
	expiry  clock.Timer
	subs    []subscriber
	nextID  int
}

func NewLocalProvider(directory Directory, tokens TokenIssuer, clk clock.Clock, logger *slog.Logger) *LocalProvider {
	if clk == nil {
		clk = clock.WallClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalProvider{
		directory: directory,
		tokens:    tokens,
		clock:     clk,
		logger:    logger,
	}
}

func (p *LocalProvider) SignInWithCredentials(ctx context.Context, identifier, secret string) (*Identity, error) {
	email := strings.TrimSpace(identifier)
	acct, err := p.directory.Authenticate(ctx, email, secret)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, NewAuthError(CodeInvalidCredentials, nil)
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	token, expiresAt, err := p.tokens.Issue(acct.UID, acct.Email)
	if err != nil {
		return nil, fmt.Errorf("issue identity token: %w", err)
	}
	id := &Identity{UID: acct.UID, Email: acct.Email, Token: token, ExpiresAt: expiresAt}

	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	p.stopExpiryLocked()
	p.current = id
	p.expiry = p.clock.AfterFunc(expiresAt.Sub(p.clock.Now()), func() { p.expire(token) })
	subs := p.snapshotLocked()
	p.mu.Unlock()

	deliver(subs, id)
	return copyIdentity(id), nil
}

func (p *LocalProvider) SignOut(ctx context.Context) error {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopExpiryLocked()
	p.current = nil
	subs := p.snapshotLocked()
	p.mu.Unlock()

	deliver(subs, nil)
	return nil
}

func (p *LocalProvider) Subscribe(fn func(*Identity)) func() {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.subs = append(p.subs, subscriber{id: id, fn: fn})
	current := p.current
	p.mu.Unlock()

	fn(copyIdentity(current))

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			for i, s := range p.subs {
				if s.id == id {
					p.subs = append(p.subs[:i:i], p.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (p *LocalProvider) Current() *Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copyIdentity(p.current)
}

// expire signs the client out if token is still the current one.
func (p *LocalProvider) expire(token string) {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	if p.current == nil || p.current.Token != token {
		p.mu.Unlock()
		return
	}
	uid := p.current.UID
	p.current = nil
	p.expiry = nil
	subs := p.snapshotLocked()
	p.mu.Unlock()

	p.logger.Info("identity token expired", "uid", uid)
	deliver(subs, nil)
}

func (p *LocalProvider) stopExpiryLocked() {
	if p.expiry != nil {
		p.expiry.Stop()
		p.expiry = nil
	}
}

func (p *LocalProvider) snapshotLocked() []subscriber {
	subs := make([]subscriber, len(p.subs))
	copy(subs, p.subs)
	return subs
}

func deliver(subs []subscriber, id *Identity) {
	for _, s := range subs {
		s.fn(copyIdentity(id))
	}
}

func copyIdentity(id *Identity) *Identity {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}

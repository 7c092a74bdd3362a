package session

import (
	"net"
	"strings"
	"sync"

	"github.com/juju/clock"
	"golang.org/x/time/rate"
)

// maxLimiterKeys bounds the table before idle entries are pruned.
const maxLimiterKeys = 4096

// KeyedLimiter throttles sign-in attempts per key, shared by every client of
// a Registry so dropping the cookie does not reset the budget.
type KeyedLimiter struct {
	limit rate.Limit
	burst int
	clock clock.Clock

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewKeyedLimiter(limit rate.Limit, burst int, clk clock.Clock) *KeyedLimiter {
	if burst <= 0 {
		burst = 1
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &KeyedLimiter{
		limit:    limit,
		burst:    burst,
		clock:    clk,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow spends one attempt from key's budget.
func (l *KeyedLimiter) Allow(key string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= maxLimiterKeys {
			l.pruneLocked()
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	return lim.AllowN(now, 1)
}

func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// pruneLocked forgets keys whose budget has fully refilled.
func (l *KeyedLimiter) pruneLocked() {
	now := l.clock.Now()
	for key, lim := range l.limiters {
		if lim.TokensAt(now) >= float64(l.burst) {
			delete(l.limiters, key)
		}
	}
}

func identifierKey(identifier string) string {
	return "id:" + strings.ToLower(strings.TrimSpace(identifier))
}

// addrKey keys on the host part of a remote address.
func addrKey(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return "addr:" + host
}

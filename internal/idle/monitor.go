// Package idle ends a signed-in session after a period without user
// interaction.
package idle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
)

// DefaultThreshold is the inactivity ceiling of a portal session.
const DefaultThreshold = 5 * time.Minute

// Signal is a user interaction that proves the session is in use.
type Signal string

const (
	PointerMove Signal = "pointer-move"
	PointerDown Signal = "pointer-down"
	KeyPress    Signal = "key-press"
	Scroll      Signal = "scroll"
	TouchStart  Signal = "touch-start"
)

var signalAliases = map[string]Signal{
	"pointer-move": PointerMove,
	"mousemove":    PointerMove,
	"pointer-down": PointerDown,
	"mousedown":    PointerDown,
	"key-press":    KeyPress,
	"keypress":     KeyPress,
	"scroll":       Scroll,
	"touch-start":  TouchStart,
	"touchstart":   TouchStart,
}

// ParseSignal accepts the signal names and the DOM event names they stand for.
func ParseSignal(name string) (Signal, error) {
	if s, ok := signalAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return s, nil
	}
	return "", fmt.Errorf("unknown interaction signal %q", name)
}

// SignOuter ends the session when the deadline passes.
type SignOuter interface {
	SignOut(ctx context.Context) error
}

// AuthSource reports sign-in transitions; fn receives true when a session
// becomes active and false when it ends.
type AuthSource interface {
	WatchAuthenticated(fn func(bool)) (cancel func())
}

type Config struct {
	Clock     clock.Clock
	Threshold time.Duration
	SignOuter SignOuter
	// OnExpire runs after a successful forced sign-out, typically to send
	// the client to the sign-in page.
	OnExpire func()
	// SignOutTimeout bounds the forced sign-out call.
	SignOutTimeout time.Duration
	Logger         *slog.Logger
}

type Monitor struct {
	cfg Config

	mu     sync.Mutex
	armed  bool
	closed bool
	gen    uint64
	timer  clock.Timer
	cancel func()
}

func NewMonitor(cfg Config) *Monitor {
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.SignOutTimeout <= 0 {
		cfg.SignOutTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Monitor{cfg: cfg}
}

// Arm starts the deadline if the monitor is not already running.
func (m *Monitor) Arm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.armed {
		return
	}
	m.armed = true
	m.resetLocked()
}

// Disarm clears the deadline.
func (m *Monitor) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disarmLocked()
}

// Signal pushes the deadline to now plus the threshold. Signals while
// disarmed are ignored.
func (m *Monitor) Signal(Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.armed {
		return
	}
	m.resetLocked()
}

func (m *Monitor) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

// Watch arms and disarms the monitor as source signs in and out.
func (m *Monitor) Watch(source AuthSource) {
	cancel := source.WatchAuthenticated(func(authenticated bool) {
		if authenticated {
			m.Arm()
		} else {
			m.Disarm()
		}
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
	m.cancel = cancel
}

// Close disarms the monitor for good and stops watching.
func (m *Monitor) Close() {
	m.mu.Lock()
	m.disarmLocked()
	m.closed = true
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (m *Monitor) resetLocked() {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.gen++
	gen := m.gen
	m.timer = m.cfg.Clock.AfterFunc(m.cfg.Threshold, func() { m.expire(gen) })
}

func (m *Monitor) disarmLocked() {
	m.armed = false
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// expire signs out once per armed period. A failed sign-out is logged and
// not retried; the monitor stays disarmed until the next sign-in.
func (m *Monitor) expire(gen uint64) {
	m.mu.Lock()
	if !m.armed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.armed = false
	m.timer = nil
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SignOutTimeout)
	defer cancel()

	if err := m.cfg.SignOuter.SignOut(ctx); err != nil {
		m.cfg.Logger.Error("idle sign-out failed", "threshold", m.cfg.Threshold, "error", err)
		return
	}
	m.cfg.Logger.Info("session ended after inactivity", "threshold", m.cfg.Threshold)
	if m.cfg.OnExpire != nil {
		m.cfg.OnExpire()
	}
}

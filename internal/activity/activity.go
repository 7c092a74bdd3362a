// Package activity keeps the append-only audit trail written by
// administrative and session actions.
package activity

import (
	"context"
	"errors"
	"log/slog"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type Type string

const (
	TypeUserCreate     Type = "USER_CREATE"
	TypeUserUpdate     Type = "USER_UPDATE"
	TypeSignIn         Type = "SIGN_IN"
	TypeSignOut        Type = "SIGN_OUT"
	TypeSessionTimeout Type = "SESSION_TIMEOUT"
)

// DashboardSize is how many records the admin dashboard lists.
const DashboardSize = 10

type Record struct {
	ID          string    `json:"id" db:"id"`
	Type        Type      `json:"type" db:"type"`
	PerformedBy string    `json:"performed_by" db:"performed_by"`
	TargetUser  string    `json:"target_user" db:"target_user"`
	Details     string    `json:"details" db:"details"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
}

var ErrInvalidRecord = errors.New("invalid activity record")

func (r Record) Validate() error {
	if r.Type == "" || r.Timestamp.IsZero() {
		return ErrInvalidRecord
	}
	return nil
}

type Repository interface {
	Append(ctx context.Context, rec Record) error
	// Recent returns at most limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewID returns a lexicographically sortable id stamped with t.
func NewID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Logger appends records on a best-effort basis. Failures are logged and
// never returned, so bookkeeping cannot block the operation it describes.
type Logger struct {
	repo   Repository
	logger *slog.Logger
}

func NewLogger(repo Repository, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{repo: repo, logger: logger}
}

func (l *Logger) Log(ctx context.Context, rec Record) {
	if l == nil || l.repo == nil {
		return
	}
	if rec.ID == "" {
		rec.ID = NewID(rec.Timestamp)
	}
	if err := l.repo.Append(ctx, rec); err != nil {
		l.logger.WarnContext(ctx, "failed to append activity record",
			"type", rec.Type,
			"target_user", rec.TargetUser,
			"error", err)
	}
}

func (l *Logger) Recent(ctx context.Context, limit int) ([]Record, error) {
	if l == nil || l.repo == nil {
		return nil, nil
	}
	return l.repo.Recent(ctx, limit)
}

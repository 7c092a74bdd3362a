package postgres

import (
	"context"
	"fmt"

	"github.com/frahmantamala/sss-portal/internal/activity"
	"github.com/jmoiron/sqlx"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) activity.Repository {
	return &Repository{db: db}
}

func (r *Repository) Append(ctx context.Context, rec activity.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = activity.NewID(rec.Timestamp)
	}
	query := `
INSERT INTO activity_logs (id, type, performed_by, target_user, details, timestamp)
VALUES (:id, :type, :performed_by, :target_user, :details, :timestamp)
`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

func (r *Repository) Recent(ctx context.Context, limit int) ([]activity.Record, error) {
	if limit <= 0 {
		limit = activity.DashboardSize
	}
	records := make([]activity.Record, 0, limit)
	query := `
SELECT id, type, performed_by, target_user, details, timestamp
FROM activity_logs
ORDER BY timestamp DESC, id DESC
LIMIT $1
`
	if err := r.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	return records, nil
}

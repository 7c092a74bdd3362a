package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/sss-portal/internal/permission"
	"github.com/frahmantamala/sss-portal/internal/profile"
)

// Record is the row shape of the users collection.
type Record struct {
	UID          string            `gorm:"column:uid;primaryKey"`
	Email        string            `gorm:"column:email;not null"`
	Role         string            `gorm:"column:role;not null"`
	Status       string            `gorm:"column:status;not null"`
	Permissions  permission.Grants `gorm:"column:permissions;serializer:json"`
	IsFirstLogin bool              `gorm:"column:is_first_login"`
	CreatedAt    time.Time         `gorm:"column:created_at"`
	UpdatedAt    time.Time         `gorm:"column:updated_at"`
	LastLogin    *time.Time        `gorm:"column:last_login"`
	LastLogout   *time.Time        `gorm:"column:last_logout"`
	UpdatedBy    string            `gorm:"column:updated_by"`
}

func (Record) TableName() string {
	return "profiles"
}

func toRecord(p *profile.Profile) *Record {
	return &Record{
		UID:          p.UID,
		Email:        p.Email,
		Role:         string(p.Role),
		Status:       string(p.Status),
		Permissions:  p.Permissions,
		IsFirstLogin: p.IsFirstLogin,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
		LastLogin:    p.LastLogin,
		LastLogout:   p.LastLogout,
		UpdatedBy:    p.UpdatedBy,
	}
}

func fromRecord(r *Record) *profile.Profile {
	p := &profile.Profile{
		UID:          r.UID,
		Email:        r.Email,
		Role:         profile.Role(r.Role),
		Status:       profile.Status(r.Status),
		Permissions:  r.Permissions,
		IsFirstLogin: r.IsFirstLogin,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		LastLogin:    r.LastLogin,
		LastLogout:   r.LastLogout,
		UpdatedBy:    r.UpdatedBy,
	}
	if p.Permissions == nil {
		p.Permissions = permission.DefaultGrants()
	}
	return p
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) profile.Store {
	return &Store{db: db}
}

func (s *Store) Read(ctx context.Context, uid string) (*profile.Profile, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("uid = ?", uid).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, profile.ErrNotFound
		}
		return nil, fmt.Errorf("read profile %s: %w", uid, err)
	}
	return fromRecord(&rec), nil
}

func (s *Store) Create(ctx context.Context, p *profile.Profile) error {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "uid"}}, DoNothing: true}).
		Create(toRecord(p))
	if res.Error != nil {
		return fmt.Errorf("create profile %s: %w", p.UID, res.Error)
	}
	if res.RowsAffected == 0 {
		return profile.ErrAlreadyExists
	}
	return nil
}

// MergeUpdate writes only the columns named by patch so that concurrent
// writers touching other fields do not overwrite each other.
func (s *Store) MergeUpdate(ctx context.Context, uid string, patch profile.Patch) error {
	if patch.Empty() {
		return nil
	}
	cols := map[string]interface{}{}
	if patch.Email != nil {
		cols["email"] = *patch.Email
	}
	if patch.Role != nil {
		cols["role"] = string(*patch.Role)
	}
	if patch.Status != nil {
		cols["status"] = string(*patch.Status)
	}
	if patch.Permissions != nil {
		// map updates skip the field serializer
		raw, err := json.Marshal(patch.Permissions)
		if err != nil {
			return fmt.Errorf("encode permissions: %w", err)
		}
		cols["permissions"] = string(raw)
	}
	if patch.IsFirstLogin != nil {
		cols["is_first_login"] = *patch.IsFirstLogin
	}
	if patch.LastLogin != nil {
		cols["last_login"] = *patch.LastLogin
	}
	if patch.LastLogout != nil {
		cols["last_logout"] = *patch.LastLogout
	}
	if patch.UpdatedBy != nil {
		cols["updated_by"] = *patch.UpdatedBy
	}

	res := s.db.WithContext(ctx).Model(&Record{}).Where("uid = ?", uid).Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("update profile %s: %w", uid, res.Error)
	}
	if res.RowsAffected == 0 {
		return profile.ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context, filter profile.Filter) ([]*profile.Profile, error) {
	q := s.db.WithContext(ctx).Model(&Record{})
	if filter.Role != "" {
		q = q.Where("role = ?", string(filter.Role))
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		q = q.Where("LOWER(email) LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var recs []*Record
	if err := q.Order("email ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	out := make([]*profile.Profile, 0, len(recs))
	for _, r := range recs {
		out = append(out, fromRecord(r))
	}
	return out, nil
}

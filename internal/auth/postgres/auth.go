package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/sss-portal/internal/auth"
)

// Account is the credential row. Emails are stored lower-cased.
type Account struct {
	UID          string    `gorm:"column:uid;primaryKey"`
	Email        string    `gorm:"column:email;uniqueIndex;not null"`
	PasswordHash string    `gorm:"column:password_hash;not null"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (Account) TableName() string {
	return "accounts"
}

type Directory struct {
	db         *gorm.DB
	bcryptCost int
}

func NewDirectory(db *gorm.DB, bcryptCost int) *Directory {
	return &Directory{
		db:         db,
		bcryptCost: bcryptCost,
	}
}

func (d *Directory) Authenticate(ctx context.Context, email, secret string) (*auth.Account, error) {
	var acct Account
	err := d.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&acct).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find account: %w", err)
	}

	if err := auth.VerifyPassword(acct.PasswordHash, secret); err != nil {
		return nil, auth.ErrInvalidCredentials
	}
	return &auth.Account{UID: acct.UID, Email: acct.Email}, nil
}

func (d *Directory) CreateAccount(ctx context.Context, email, secret string) (string, error) {
	hash, err := auth.HashPassword(secret, d.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	acct := Account{
		UID:          uuid.NewString(),
		Email:        normalizeEmail(email),
		PasswordHash: hash,
	}
	res := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(&acct)
	if res.Error != nil {
		return "", fmt.Errorf("create account: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return "", auth.ErrAccountExists
	}
	return acct.UID, nil
}

// DeleteAccount removes the account with uid. Unknown uids are ignored.
func (d *Directory) DeleteAccount(ctx context.Context, uid string) error {
	if err := d.db.WithContext(ctx).Where("uid = ?", uid).Delete(&Account{}).Error; err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

// SetPassword replaces the secret of an existing account.
func (d *Directory) SetPassword(ctx context.Context, email, secret string) error {
	hash, err := auth.HashPassword(secret, d.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	res := d.db.WithContext(ctx).Model(&Account{}).
		Where("email = ?", normalizeEmail(email)).
		Update("password_hash", hash)
	if res.Error != nil {
		return fmt.Errorf("set password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return auth.ErrInvalidCredentials
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for staff users,
// authentication accounts, and issued session records.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/pst-admin-backend/internal/domain"
)

// ListUsers returns staff users, newest first.
func ListUsers(ctx context.Context, db *gorm.DB) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).Order("created_at DESC").Find(&out).Error
	return out, err
}

// GetUser fetches a staff user by ID, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByAuthUID resolves a staff user from the auth identifier, or ErrNotFound.
func GetUserByAuthUID(ctx context.Context, db *gorm.DB, authUID string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, "auth_uid = ?", authUID).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts u; returns ErrDuplicate when the e-mail or auth UID is taken.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// UpdateUser applies the given column values to the user and returns the
// updated row.
func UpdateUser(ctx context.Context, db *gorm.DB, id string, fields map[string]any) (*domain.User, error) {
	if len(fields) > 0 {
		res := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			if isUniqueViolation(res.Error) {
				return nil, ErrDuplicate
			}
			return nil, res.Error
		}
	}
	return GetUser(ctx, db, id)
}

// DeleteUser hard-deletes a staff user.
func DeleteUser(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Delete(&domain.User{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastLogin records a successful sign-in on the staff row linked to authUID.
// Accounts without a staff row are ignored.
func TouchLastLogin(ctx context.Context, db *gorm.DB, authUID string, at time.Time) error {
	return db.WithContext(ctx).Model(&domain.User{}).
		Where("auth_uid = ?", authUID).
		Update("last_login", at).Error
}

// --- accounts ---

// CreateAccount inserts an auth account; ErrDuplicate when the e-mail is taken.
func CreateAccount(ctx context.Context, db *gorm.DB, a *domain.Account) error {
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetAccount fetches an account by ID, or ErrNotFound.
func GetAccount(ctx context.Context, db *gorm.DB, id string) (*domain.Account, error) {
	var a domain.Account
	if err := db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAccountByEmail fetches an account by e-mail, or ErrNotFound.
func GetAccountByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Account, error) {
	var a domain.Account
	if err := db.WithContext(ctx).First(&a, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// TouchAccountSignIn records the last sign-in time of an account.
func TouchAccountSignIn(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).Model(&domain.Account{}).Where("id = ?", id).Update("last_sign_in_at", at).Error
}

// DeleteAccount removes an account together with its sessions.
func DeleteAccount(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", id).Delete(&domain.SessionRecord{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&domain.Account{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// --- sessions ---

// CreateSession records an issued session.
func CreateSession(ctx context.Context, db *gorm.DB, s *domain.SessionRecord) error {
	return db.WithContext(ctx).Create(s).Error
}

// GetActiveSession returns the session if it exists, is not revoked and has not
// expired at now; ErrNotFound otherwise.
func GetActiveSession(ctx context.Context, db *gorm.DB, id string, now time.Time) (*domain.SessionRecord, error) {
	var s domain.SessionRecord
	err := db.WithContext(ctx).
		Where("id = ? AND revoked_at IS NULL AND expires_at > ?", id, now).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// RevokeSession marks a session revoked. Revoking twice is a no-op.
func RevokeSession(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).Model(&domain.SessionRecord{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", at).Error
}

// PurgeSessions deletes sessions that expired or were revoked before now.
func PurgeSessions(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ? OR revoked_at IS NOT NULL", now).
		Delete(&domain.SessionRecord{})
	return res.RowsAffected, res.Error
}

// Package repo is the persistence layer: free functions over a *gorm.DB so
// callers can pass a transaction or a plain handle. No business rules live
// here.
package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrNotFound is gorm's record-not-found, re-exported so services need not
// import gorm.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate reports a unique-constraint violation: a reused idempotency
// key, a taken e-mail, an existing contact address.
var ErrDuplicate = errors.New("duplicate")

// IsNotFound reports whether err means "no such row".
func IsNotFound(err error) bool { return errors.Is(err, gorm.ErrRecordNotFound) }

// isUniqueViolation recognizes unique-constraint failures. gormConfig turns on
// TranslateError, which covers postgres and mysql; the SQLite driver reports
// plain text.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"unique constraint failed", "constraint failed: unique", "duplicate key value", "duplicate entry"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// matched turns a zero-row update into ErrNotFound only when the row is really
// absent. MySQL reports changed rows, so rewriting identical values counts 0.
func matched(ctx context.Context, db *gorm.DB, model any, id any, affected int64) error {
	if affected > 0 {
		return nil
	}
	var n int64
	if err := db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

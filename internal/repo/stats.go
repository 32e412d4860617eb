package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/pst-admin-backend/internal/domain"
)

// ConversationStats summarizes a contact's chat log for ETags: row count,
// newest message time and newest status change (both epoch ms). Status
// callbacks update rows in place, so the last value is what moves when a
// message turns delivered or read. A contact without messages yields zeros.
func ConversationStats(ctx context.Context, db *gorm.DB, contactID string) (count, maxTimestamp, maxStatusTimestamp int64, err error) {
	var row struct {
		N           int64 `gorm:"column:n"`
		MaxTS       int64 `gorm:"column:max_ts"`
		MaxStatusTS int64 `gorm:"column:max_status_ts"`
	}
	err = db.WithContext(ctx).Model(&domain.Message{}).
		Select("COUNT(*) AS n, COALESCE(MAX(timestamp), 0) AS max_ts, COALESCE(MAX(status_timestamp), 0) AS max_status_ts").
		Where("contact_id = ?", contactID).
		Scan(&row).Error
	if err != nil {
		return 0, 0, 0, err
	}
	return row.N, row.MaxTS, row.MaxStatusTS, nil
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model: inserting conversation turns, listing a contact's history in
// chronological order, and reconciling delivery status by row identity or by
// gateway message id.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/pst-admin-backend/internal/domain"
)

// CreateMessage inserts m. A missing ID is generated; a missing timestamp is
// set to now; any timestamp is normalized to milliseconds before writing.
func CreateMessage(ctx context.Context, db *gorm.DB, m *domain.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if m.Timestamp == 0 {
		m.Timestamp = domain.EpochMillis(now)
	}
	m.Timestamp = domain.NormalizeEpochMillis(m.Timestamp)
	if m.StatusTimestamp != nil {
		v := domain.NormalizeEpochMillis(*m.StatusTimestamp)
		m.StatusTimestamp = &v
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	return db.WithContext(ctx).Create(m).Error
}

// GetMessage fetches a message by ID, or ErrNotFound.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessageByWamid fetches a message by its gateway identifier, or ErrNotFound.
func GetMessageByWamid(ctx context.Context, db *gorm.DB, wamid string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).First(&m, "message_id = ?", wamid).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessagesByContact returns a contact's messages in ascending timestamp
// order (insertion order breaks ties).
func ListMessagesByContact(ctx context.Context, db *gorm.DB, contactID string) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("contact_id = ?", contactID).
		Order("timestamp ASC").
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// StatusUpdate describes a delivery status change on one message.
type StatusUpdate struct {
	Status          string
	StatusTimestamp int64
	// Wamid, when non-empty, records the gateway identifier alongside.
	Wamid string
}

// UpdateMessageStatus sets the status of the message with the given ID.
// Returns ErrNotFound when no row matched.
func UpdateMessageStatus(ctx context.Context, db *gorm.DB, id string, u StatusUpdate) error {
	fields := map[string]any{
		"status":           u.Status,
		"status_timestamp": domain.NormalizeEpochMillis(u.StatusTimestamp),
	}
	if u.Wamid != "" {
		fields["message_id"] = u.Wamid
	}
	res := db.WithContext(ctx).Model(&domain.Message{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	return matched(ctx, db, &domain.Message{}, id, res.RowsAffected)
}

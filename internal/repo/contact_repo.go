// Contact queries. Missing rows surface as ErrNotFound.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/pst-admin-backend/internal/domain"
)

// ListContacts returns every contact ordered by most recent activity, with
// contacts that never exchanged a message last. The NULL ordering is spelled
// out so it behaves the same on SQLite, PostgreSQL and MySQL.
func ListContacts(ctx context.Context, db *gorm.DB) ([]domain.Contact, error) {
	var out []domain.Contact
	err := db.WithContext(ctx).
		Order("CASE WHEN last_message_at IS NULL THEN 1 ELSE 0 END").
		Order("last_message_at DESC").
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// GetContact fetches a contact by ID, or ErrNotFound.
func GetContact(ctx context.Context, db *gorm.DB, id string) (*domain.Contact, error) {
	var c domain.Contact
	if err := db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetContactByWaID fetches a contact by its messaging address, or ErrNotFound.
func GetContactByWaID(ctx context.Context, db *gorm.DB, waID string) (*domain.Contact, error) {
	var c domain.Contact
	if err := db.WithContext(ctx).First(&c, "wa_id = ?", waID).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateContact inserts a contact for waID with an optional display name.
// The row starts in the default chatbot state.
func CreateContact(ctx context.Context, db *gorm.DB, waID string, name *string) (*domain.Contact, error) {
	now := time.Now().UTC()
	c := &domain.Contact{
		ID:              uuid.NewString(),
		WaID:            &waID,
		Name:            name,
		ChatbotState:    domain.DefaultChatbotState,
		LastInteraction: &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateContactLastMessage refreshes the denormalized last-message preview.
func UpdateContactLastMessage(ctx context.Context, db *gorm.DB, id, text string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Contact{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_message":    text,
			"last_message_at": at,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	return matched(ctx, db, &domain.Contact{}, id, res.RowsAffected)
}

// ContactPatch lists the operator-editable contact fields. Nil fields are left
// untouched.
type ContactPatch struct {
	Name         *string
	ChatbotState *string
	PreferAgent  *bool
}

// UpdateContact applies p to the contact and returns the updated row.
func UpdateContact(ctx context.Context, db *gorm.DB, id string, p ContactPatch) (*domain.Contact, error) {
	fields := map[string]any{}
	if p.Name != nil {
		fields["name"] = strings.TrimSpace(*p.Name)
	}
	if p.ChatbotState != nil {
		fields["chatbot_state"] = strings.TrimSpace(*p.ChatbotState)
	}
	if p.PreferAgent != nil {
		fields["prefer_agent"] = *p.PreferAgent
	}
	if len(fields) > 0 {
		fields["updated_at"] = time.Now().UTC()
		res := db.WithContext(ctx).Model(&domain.Contact{}).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			return nil, res.Error
		}
	}
	return GetContact(ctx, db, id)
}

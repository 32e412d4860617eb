// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for message
// templates. Templates are hard-deleted.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/pst-admin-backend/internal/domain"
)

// ListTemplates returns templates, newest first.
func ListTemplates(ctx context.Context, db *gorm.DB) ([]domain.MessageTemplate, error) {
	var out []domain.MessageTemplate
	err := db.WithContext(ctx).Order("created_at DESC").Find(&out).Error
	return out, err
}

// GetTemplate fetches a template, or ErrNotFound.
func GetTemplate(ctx context.Context, db *gorm.DB, id string) (*domain.MessageTemplate, error) {
	var t domain.MessageTemplate
	if err := db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTemplate inserts t.
func CreateTemplate(ctx context.Context, db *gorm.DB, t *domain.MessageTemplate) error {
	return db.WithContext(ctx).Create(t).Error
}

// UpdateTemplate applies fields and returns the updated template.
func UpdateTemplate(ctx context.Context, db *gorm.DB, id string, fields map[string]any) (*domain.MessageTemplate, error) {
	if len(fields) > 0 {
		fields["updated_at"] = time.Now().UTC()
	}
	if err := updateByID(ctx, db, &domain.MessageTemplate{}, id, fields); err != nil {
		return nil, err
	}
	return GetTemplate(ctx, db, id)
}

// DeleteTemplate hard-deletes a template.
func DeleteTemplate(ctx context.Context, db *gorm.DB, id string) error {
	return deleteByID(ctx, db, &domain.MessageTemplate{}, id)
}

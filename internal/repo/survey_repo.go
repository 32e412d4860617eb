// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file covers the survey definition tree: period types,
// periods, surveys, survey details and activities.
//
// Delete policies differ per table and are part of the contract:
//   - period types, periods, surveys: hard delete (row removed).
//   - survey details are not cascaded when their survey is removed.
//   - activities: soft delete (is_active = false), see DeactivateActivity.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/pst-admin-backend/internal/domain"
)

// --- period types ---

// ListPeriodTypes returns period types by ascending ID.
func ListPeriodTypes(ctx context.Context, db *gorm.DB) ([]domain.PeriodType, error) {
	var out []domain.PeriodType
	err := db.WithContext(ctx).Order("id ASC").Find(&out).Error
	return out, err
}

// CreatePeriodType inserts p.
func CreatePeriodType(ctx context.Context, db *gorm.DB, p *domain.PeriodType) error {
	return db.WithContext(ctx).Create(p).Error
}

// UpdatePeriodType renames a period type.
func UpdatePeriodType(ctx context.Context, db *gorm.DB, id int64, name string) (*domain.PeriodType, error) {
	res := db.WithContext(ctx).Model(&domain.PeriodType{}).Where("id = ?", id).Update("nama_tipe", name)
	if res.Error != nil {
		return nil, res.Error
	}
	var p domain.PeriodType
	if err := db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// DeletePeriodType hard-deletes a period type.
func DeletePeriodType(ctx context.Context, db *gorm.DB, id int64) error {
	return deleteByID(ctx, db, &domain.PeriodType{}, id)
}

// --- periods ---

// ListPeriods returns periods with their type, newest first.
func ListPeriods(ctx context.Context, db *gorm.DB) ([]domain.Period, error) {
	var out []domain.Period
	err := db.WithContext(ctx).Preload("PeriodType").Order("id DESC").Find(&out).Error
	return out, err
}

// GetPeriod fetches a period with its type, or ErrNotFound.
func GetPeriod(ctx context.Context, db *gorm.DB, id int64) (*domain.Period, error) {
	var p domain.Period
	if err := db.WithContext(ctx).Preload("PeriodType").First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePeriod inserts p.
func CreatePeriod(ctx context.Context, db *gorm.DB, p *domain.Period) error {
	return db.WithContext(ctx).Create(p).Error
}

// UpdatePeriod applies fields and returns the updated period.
func UpdatePeriod(ctx context.Context, db *gorm.DB, id int64, fields map[string]any) (*domain.Period, error) {
	if err := updateByID(ctx, db, &domain.Period{}, id, fields); err != nil {
		return nil, err
	}
	return GetPeriod(ctx, db, id)
}

// DeletePeriod hard-deletes a period.
func DeletePeriod(ctx context.Context, db *gorm.DB, id int64) error {
	return deleteByID(ctx, db, &domain.Period{}, id)
}

// --- surveys ---

// ListSurveys returns surveys with their period type, newest first.
func ListSurveys(ctx context.Context, db *gorm.DB) ([]domain.Survey, error) {
	var out []domain.Survey
	err := db.WithContext(ctx).Preload("PeriodType").Order("id DESC").Find(&out).Error
	return out, err
}

// GetSurvey fetches a survey, or ErrNotFound.
func GetSurvey(ctx context.Context, db *gorm.DB, id int64) (*domain.Survey, error) {
	var s domain.Survey
	if err := db.WithContext(ctx).Preload("PeriodType").First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSurvey inserts s.
func CreateSurvey(ctx context.Context, db *gorm.DB, s *domain.Survey) error {
	return db.WithContext(ctx).Create(s).Error
}

// UpdateSurvey applies fields and returns the updated survey.
func UpdateSurvey(ctx context.Context, db *gorm.DB, id int64, fields map[string]any) (*domain.Survey, error) {
	if err := updateByID(ctx, db, &domain.Survey{}, id, fields); err != nil {
		return nil, err
	}
	return GetSurvey(ctx, db, id)
}

// DeleteSurvey hard-deletes a survey. Its details are left in place.
func DeleteSurvey(ctx context.Context, db *gorm.DB, id int64) error {
	return deleteByID(ctx, db, &domain.Survey{}, id)
}

// --- survey details ---

// ListSurveyDetails returns details ordered by name with their survey (and its
// period type) and activity joined in. Orphaned details are included with a
// nil Survey.
func ListSurveyDetails(ctx context.Context, db *gorm.DB) ([]domain.SurveyDetail, error) {
	var out []domain.SurveyDetail
	err := db.WithContext(ctx).
		Preload("Survey").
		Preload("Survey.PeriodType").
		Preload("Activity").
		Order("nama_kegiatan ASC").
		Find(&out).Error
	return out, err
}

// GetSurveyDetail fetches a detail with its joins, or ErrNotFound.
func GetSurveyDetail(ctx context.Context, db *gorm.DB, id int64) (*domain.SurveyDetail, error) {
	var d domain.SurveyDetail
	err := db.WithContext(ctx).Preload("Survey").Preload("Activity").First(&d, id).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateSurveyDetail inserts d.
func CreateSurveyDetail(ctx context.Context, db *gorm.DB, d *domain.SurveyDetail) error {
	return db.WithContext(ctx).Create(d).Error
}

// --- activities ---

// ListActiveActivities returns the details that carry an active activity,
// ordered by detail name, with survey and period type joined in.
func ListActiveActivities(ctx context.Context, db *gorm.DB) ([]domain.SurveyDetail, error) {
	var out []domain.SurveyDetail
	err := db.WithContext(ctx).
		Joins("JOIN srv_kegiatan ON srv_kegiatan.survei_rinci_id = srv_survei_rinci.id AND srv_kegiatan.is_active = ?", true).
		Preload("Survey").
		Preload("Survey.PeriodType").
		Preload("Activity", "is_active = ?", true).
		Order("srv_survei_rinci.nama_kegiatan ASC").
		Find(&out).Error
	return out, err
}

// GetActivity fetches an activity, or ErrNotFound.
func GetActivity(ctx context.Context, db *gorm.DB, id int64) (*domain.Activity, error) {
	var a domain.Activity
	if err := db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateActivity inserts a.
func CreateActivity(ctx context.Context, db *gorm.DB, a *domain.Activity) error {
	return db.WithContext(ctx).Create(a).Error
}

// UpdateActivity applies fields and returns the updated activity.
func UpdateActivity(ctx context.Context, db *gorm.DB, id int64, fields map[string]any) (*domain.Activity, error) {
	if err := updateByID(ctx, db, &domain.Activity{}, id, fields); err != nil {
		return nil, err
	}
	return GetActivity(ctx, db, id)
}

// DeactivateActivity soft-deletes an activity by clearing is_active.
func DeactivateActivity(ctx context.Context, db *gorm.DB, id int64) error {
	res := db.WithContext(ctx).Model(&domain.Activity{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	return matched(ctx, db, &domain.Activity{}, id, res.RowsAffected)
}

// updateByID applies fields to one row of model and reports ErrNotFound when
// nothing matched. An empty field set only checks existence.
func updateByID(ctx context.Context, db *gorm.DB, model any, id any, fields map[string]any) error {
	if len(fields) == 0 {
		return matched(ctx, db, model, id, 0)
	}
	res := db.WithContext(ctx).Model(model).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	return matched(ctx, db, model, id, res.RowsAffected)
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file covers PST members, visitor check-ins, service
// types and service requests.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/pst-admin-backend/internal/domain"
)

// --- members ---

// ListMembers returns members, most recently registered first.
func ListMembers(ctx context.Context, db *gorm.DB) ([]domain.Member, error) {
	var out []domain.Member
	err := db.WithContext(ctx).Order("created_at DESC").Find(&out).Error
	return out, err
}

// GetMember fetches a member by ID, or ErrNotFound.
func GetMember(ctx context.Context, db *gorm.DB, id string) (*domain.Member, error) {
	var m domain.Member
	if err := db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMembersByIDs returns the members whose IDs are listed. Unknown IDs are
// skipped; an empty list yields an empty result without querying.
func GetMembersByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]domain.Member, error) {
	out := []domain.Member{}
	if len(ids) == 0 {
		return out, nil
	}
	err := db.WithContext(ctx).Where("id IN ?", ids).Order("created_at DESC").Find(&out).Error
	return out, err
}

// --- visitors ---

// ListVisitors returns check-ins, newest first, with the member profile and
// assigned staff user joined in.
func ListVisitors(ctx context.Context, db *gorm.DB) ([]domain.Visitor, error) {
	var out []domain.Visitor
	err := db.WithContext(ctx).
		Preload("Member").
		Preload("AssignedUser").
		Order("checkin_time DESC").
		Find(&out).Error
	return out, err
}

// GetVisitor fetches a check-in with its joins, or ErrNotFound.
func GetVisitor(ctx context.Context, db *gorm.DB, id string) (*domain.Visitor, error) {
	var v domain.Visitor
	err := db.WithContext(ctx).
		Preload("Member").
		Preload("AssignedUser").
		First(&v, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// UpdateVisitorStatus sets the status (and, when non-nil, the assignee) of a
// check-in.
func UpdateVisitorStatus(ctx context.Context, db *gorm.DB, id, status string, assignedTo *string) error {
	fields := map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if assignedTo != nil {
		fields["assigned_to"] = *assignedTo
	}
	res := db.WithContext(ctx).Model(&domain.Visitor{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	return matched(ctx, db, &domain.Visitor{}, id, res.RowsAffected)
}

// --- service types ---

// ListServiceTypes returns service types ordered by name.
func ListServiceTypes(ctx context.Context, db *gorm.DB) ([]domain.ServiceType, error) {
	var out []domain.ServiceType
	err := db.WithContext(ctx).Order("name ASC").Find(&out).Error
	return out, err
}

// --- service requests ---

// ListServiceRequests returns the requests opened for a check-in, newest
// first, with their service type joined in.
func ListServiceRequests(ctx context.Context, db *gorm.DB, checkinID string) ([]domain.ServiceRequest, error) {
	var out []domain.ServiceRequest
	err := db.WithContext(ctx).
		Preload("ServiceType").
		Where("checkin_id = ?", checkinID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// GetServiceRequest fetches a request with its service type, or ErrNotFound.
func GetServiceRequest(ctx context.Context, db *gorm.DB, id string) (*domain.ServiceRequest, error) {
	var r domain.ServiceRequest
	if err := db.WithContext(ctx).Preload("ServiceType").First(&r, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateServiceRequest inserts r.
func CreateServiceRequest(ctx context.Context, db *gorm.DB, r *domain.ServiceRequest) error {
	return db.WithContext(ctx).Create(r).Error
}

// UpdateServiceRequest applies fields to a request and returns the updated row.
func UpdateServiceRequest(ctx context.Context, db *gorm.DB, id string, fields map[string]any) (*domain.ServiceRequest, error) {
	if len(fields) > 0 {
		fields["updated_at"] = time.Now().UTC()
		res := db.WithContext(ctx).Model(&domain.ServiceRequest{}).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			return nil, res.Error
		}
	}
	return GetServiceRequest(ctx, db, id)
}

// DeleteServiceRequest hard-deletes a request.
func DeleteServiceRequest(ctx context.Context, db *gorm.DB, id string) error {
	return deleteByID(ctx, db, &domain.ServiceRequest{}, id)
}

// deleteByID hard-deletes one row of model by primary key and reports
// ErrNotFound when nothing matched.
func deleteByID(ctx context.Context, db *gorm.DB, model any, id any) error {
	res := db.WithContext(ctx).Delete(model, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

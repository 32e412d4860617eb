// Package services – UserService
//
// UserService manages staff profiles. A staff user is two records: the auth
// account (credentials) and the users row (profile). Create makes the account
// first and removes it again if the profile insert fails; Delete removes the
// account first, then the profile.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/pst-admin-backend/internal/domain"
	"github.com/tbourn/pst-admin-backend/internal/repo"
)

const defaultRole = "staff"

// CreateUserInput is the payload for creating a staff user.
type CreateUserInput struct {
	Email       string  `json:"email"        validate:"required,email"`
	Name        string  `json:"name"         validate:"required"`
	Password    string  `json:"password"     validate:"required"`
	Role        string  `json:"role"         validate:"omitempty,oneof=admin staff"`
	Position    *string `json:"position"`
	PhoneNumber *string `json:"phone_number"`
}

// UpdateUserInput lists editable profile fields. Nil fields are unchanged.
type UpdateUserInput struct {
	Name        *string `json:"name"         validate:"omitempty,min=1"`
	Role        *string `json:"role"         validate:"omitempty,oneof=admin staff"`
	Position    *string `json:"position"`
	PhoneNumber *string `json:"phone_number"`
	IsActive    *bool   `json:"is_active"`
}

// UserService manages staff users.
type UserService struct {
	DB   *gorm.DB
	Auth *AuthService
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB, a *AuthService) *UserService {
	return &UserService{DB: db, Auth: a}
}

func (s *UserService) tracer() trace.Tracer { return otel.Tracer("services/UserService") }

// List returns staff users, newest first.
func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	out, err := repo.ListUsers(ctx, s.DB)
	if err != nil {
		return nil, E(KindBackend, "ListUsers", err)
	}
	return out, nil
}

// Create signs up an account and inserts the linked profile.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	ctx, span := s.tracer().Start(ctx, "CreateUser")
	defer span.End()

	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := check("CreateUser", in); err != nil {
		return nil, err
	}
	acc, err := s.Auth.SignUp(ctx, in.Email, in.Password)
	if err != nil {
		return nil, err
	}

	role := in.Role
	if role == "" {
		role = defaultRole
	}
	u := &domain.User{
		ID:          uuid.NewString(),
		Email:       in.Email,
		Name:        in.Name,
		Role:        role,
		Position:    in.Position,
		PhoneNumber: in.PhoneNumber,
		IsActive:    true,
		AuthUID:     &acc.ID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := repo.CreateUser(ctx, s.DB, u); err != nil {
		if derr := repo.DeleteAccount(context.WithoutCancel(ctx), s.DB, acc.ID); derr != nil {
			logger(ctx).Error().Err(derr).Str("account_id", acc.ID).Msg("roll back account after failed user insert")
		}
		return nil, notFoundOr("CreateUser", err)
	}
	span.SetAttributes(attribute.String("user.id", u.ID))
	return u, nil
}

// Update edits a staff profile.
func (s *UserService) Update(ctx context.Context, id string, in UpdateUserInput) (*domain.User, error) {
	if err := check("UpdateUser", in); err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, E(KindInvalid, "UpdateUser", errBlank("name"))
		}
		fields["name"] = name
	}
	if in.Role != nil {
		fields["role"] = *in.Role
	}
	if in.Position != nil {
		fields["position"] = *in.Position
	}
	if in.PhoneNumber != nil {
		fields["phone_number"] = *in.PhoneNumber
	}
	if in.IsActive != nil {
		fields["is_active"] = *in.IsActive
	}
	u, err := repo.UpdateUser(ctx, s.DB, id, fields)
	if err != nil {
		return nil, notFoundOr("UpdateUser", err)
	}
	return u, nil
}

// Delete removes the linked auth account, then the profile.
func (s *UserService) Delete(ctx context.Context, id string) error {
	ctx, span := s.tracer().Start(ctx, "DeleteUser", trace.WithAttributes(attribute.String("user.id", id)))
	defer span.End()

	u, err := repo.GetUser(ctx, s.DB, id)
	if err != nil {
		return notFoundOr("DeleteUser", err)
	}
	if uid := deref(u.AuthUID); uid != "" {
		if err := s.Auth.AdminDeleteAccount(ctx, uid); err != nil && KindOf(err) != KindNotFound {
			return err
		}
	}
	if err := repo.DeleteUser(ctx, s.DB, id); err != nil {
		return notFoundOr("DeleteUser", err)
	}
	return nil
}

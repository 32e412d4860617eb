// Package services – VisitorService and MemberService
//
// MemberService reads registered PST member profiles. VisitorService manages
// desk check-ins, the service requests opened for them, and the post-visit
// satisfaction survey sent over WhatsApp.
package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/pst-admin-backend/internal/domain"
	"github.com/tbourn/pst-admin-backend/internal/repo"
	"github.com/tbourn/pst-admin-backend/internal/whatsapp"
)

// MemberService reads member profiles.
type MemberService struct {
	DB *gorm.DB
}

// List returns members, newest first.
func (s *MemberService) List(ctx context.Context) ([]domain.Member, error) {
	out, err := repo.ListMembers(ctx, s.DB)
	if err != nil {
		return nil, E(KindBackend, "ListMembers", err)
	}
	return out, nil
}

// Get returns one member.
func (s *MemberService) Get(ctx context.Context, id string) (*domain.Member, error) {
	m, err := repo.GetMember(ctx, s.DB, id)
	if err != nil {
		return nil, notFoundOr("GetMember", err)
	}
	return m, nil
}

// GetMany returns the members with the given IDs. Unknown IDs are skipped.
func (s *MemberService) GetMany(ctx context.Context, ids []string) ([]domain.Member, error) {
	if len(ids) == 0 {
		return []domain.Member{}, nil
	}
	out, err := repo.GetMembersByIDs(ctx, s.DB, ids)
	if err != nil {
		return nil, E(KindBackend, "GetMembers", err)
	}
	return out, nil
}

// ServiceRequestInput is the payload for opening a service request.
type ServiceRequestInput struct {
	PstUserID     string  `json:"pst_user_id"     validate:"required"`
	ServiceTypeID string  `json:"service_type_id" validate:"required"`
	Title         string  `json:"title"           validate:"required"`
	Description   *string `json:"description"`
	Priority      string  `json:"priority"        validate:"omitempty,oneof=low normal high urgent"`
	AssignedTo    *string `json:"assigned_to"`
	BookingID     *string `json:"booking_id"`
}

// ServiceRequestPatch lists editable request fields. Nil fields are unchanged.
type ServiceRequestPatch struct {
	Title       *string    `json:"title"       validate:"omitempty,min=1"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"      validate:"omitempty,oneof=pending in_progress completed cancelled"`
	Priority    *string    `json:"priority"    validate:"omitempty,oneof=low normal high urgent"`
	AssignedTo  *string    `json:"assigned_to"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
}

// VisitorService manages check-ins and service requests.
type VisitorService struct {
	DB      *gorm.DB
	Gateway Gateway

	// SurveyBaseURL is the origin of the satisfaction survey form.
	SurveyBaseURL string
}

func (s *VisitorService) tracer() trace.Tracer { return otel.Tracer("services/VisitorService") }

// List returns check-ins, newest first, with member and assignee joined.
func (s *VisitorService) List(ctx context.Context) ([]domain.Visitor, error) {
	out, err := repo.ListVisitors(ctx, s.DB)
	if err != nil {
		return nil, E(KindBackend, "ListVisitors", err)
	}
	return out, nil
}

// Get returns one check-in.
func (s *VisitorService) Get(ctx context.Context, id string) (*domain.Visitor, error) {
	v, err := repo.GetVisitor(ctx, s.DB, id)
	if err != nil {
		return nil, notFoundOr("GetVisitor", err)
	}
	return v, nil
}

// UpdateStatus moves a check-in to status and, when assignedTo is non-nil,
// reassigns it.
func (s *VisitorService) UpdateStatus(ctx context.Context, id, status string, assignedTo *string) (*domain.Visitor, error) {
	if !domain.ValidVisitorStatus(status) {
		return nil, ErrInvalidStatus
	}
	if err := repo.UpdateVisitorStatus(ctx, s.DB, id, status, assignedTo); err != nil {
		return nil, notFoundOr("UpdateVisitorStatus", err)
	}
	return s.Get(ctx, id)
}

// ServiceTypes lists service types by name.
func (s *VisitorService) ServiceTypes(ctx context.Context) ([]domain.ServiceType, error) {
	out, err := repo.ListServiceTypes(ctx, s.DB)
	if err != nil {
		return nil, E(KindBackend, "ListServiceTypes", err)
	}
	return out, nil
}

// ServiceRequests lists the requests opened for a check-in.
func (s *VisitorService) ServiceRequests(ctx context.Context, checkinID string) ([]domain.ServiceRequest, error) {
	out, err := repo.ListServiceRequests(ctx, s.DB, checkinID)
	if err != nil {
		return nil, E(KindBackend, "ListServiceRequests", err)
	}
	return out, nil
}

// CreateServiceRequest opens a request for a check-in. New requests are
// pending; priority defaults to normal.
func (s *VisitorService) CreateServiceRequest(ctx context.Context, checkinID string, in ServiceRequestInput) (*domain.ServiceRequest, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := check("CreateServiceRequest", in); err != nil {
		return nil, err
	}
	priority := in.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}
	now := time.Now().UTC()
	r := &domain.ServiceRequest{
		ID:            uuid.NewString(),
		PstUserID:     in.PstUserID,
		BookingID:     in.BookingID,
		ServiceTypeID: in.ServiceTypeID,
		Title:         in.Title,
		Description:   in.Description,
		Status:        domain.RequestPending,
		Priority:      priority,
		AssignedTo:    in.AssignedTo,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if checkinID != "" {
		r.CheckinID = &checkinID
	}
	if err := repo.CreateServiceRequest(ctx, s.DB, r); err != nil {
		return nil, E(KindBackend, "CreateServiceRequest", err)
	}
	return repo.GetServiceRequest(ctx, s.DB, r.ID)
}

// UpdateServiceRequest edits a request.
func (s *VisitorService) UpdateServiceRequest(ctx context.Context, id string, p ServiceRequestPatch) (*domain.ServiceRequest, error) {
	if err := check("UpdateServiceRequest", p); err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if p.Title != nil {
		fields["title"] = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		fields["description"] = *p.Description
	}
	if p.Status != nil {
		fields["status"] = *p.Status
	}
	if p.Priority != nil {
		fields["priority"] = *p.Priority
	}
	if p.AssignedTo != nil {
		fields["assigned_to"] = *p.AssignedTo
	}
	if p.StartTime != nil {
		fields["start_time"] = p.StartTime.UTC()
	}
	if p.EndTime != nil {
		fields["end_time"] = p.EndTime.UTC()
	}
	r, err := repo.UpdateServiceRequest(ctx, s.DB, id, fields)
	if err != nil {
		return nil, notFoundOr("UpdateServiceRequest", err)
	}
	return r, nil
}

// DeleteServiceRequest hard-deletes a request.
func (s *VisitorService) DeleteServiceRequest(ctx context.Context, id string) error {
	if err := repo.DeleteServiceRequest(ctx, s.DB, id); err != nil {
		return notFoundOr("DeleteServiceRequest", err)
	}
	return nil
}

// SurveyURL returns the satisfaction survey link for a check-in.
func SurveyURL(base, visitorID string) string {
	return fmt.Sprintf("%s/survey?visitor=%s&utm_source=whatsapp&utm_medium=message&utm_campaign=satisfaction_survey",
		strings.TrimRight(base, "/"), url.QueryEscape(visitorID))
}

// SurveyMessage is the text of the satisfaction survey invitation.
func SurveyMessage(name, surveyURL string) string {
	return fmt.Sprintf("Halo %s! \n\n"+
		"Terima kasih telah menggunakan layanan kami. Kami ingin mengetahui pengalaman Anda untuk meningkatkan kualitas pelayanan.\n\n"+
		"Mohon luangkan waktu untuk mengisi survei kepuasan berikut:\n%s\n\n"+
		"Terima kasih atas partisipasi Anda! 🙏", name, surveyURL)
}

// SendSatisfactionSurvey texts the survey link to the visitor's member. The
// member's WhatsApp address is preferred over the phone number.
func (s *VisitorService) SendSatisfactionSurvey(ctx context.Context, visitorID string) (*whatsapp.SendResponse, error) {
	ctx, span := s.tracer().Start(ctx, "SendSatisfactionSurvey",
		trace.WithAttributes(attribute.String("visitor.id", visitorID)),
	)
	defer span.End()

	v, err := s.Get(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	if v.Member == nil {
		return nil, E(KindNotFound, "SendSatisfactionSurvey", fmt.Errorf("visitor %s has no member profile", visitorID))
	}
	to := firstNonBlank(deref(v.Member.WaID), deref(v.Member.Phone))
	if to == "" || !whatsapp.ValidatePhoneNumber(to) {
		return nil, ErrInvalidPhone
	}
	if s.Gateway == nil {
		return nil, E(KindGateway, "SendSatisfactionSurvey", whatsapp.ErrNotConfigured)
	}

	text := SurveyMessage(v.Member.Name, SurveyURL(s.SurveyBaseURL, v.ID))
	resp, err := s.Gateway.SendText(ctx, to, text)
	if err != nil {
		logger(ctx).Error().Err(err).Str("visitor_id", visitorID).Msg("send satisfaction survey")
		return nil, E(KindGateway, "SendSatisfactionSurvey", err)
	}
	return resp, nil
}

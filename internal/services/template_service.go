// Package services – TemplateService
//
// TemplateService stores reusable outbound message templates. The shape of a
// template's details depends on its type and is checked on every write:
//
//	TEXT_ONLY               message content required
//	TEXT_WITH_PLACEHOLDERS  message content required, placeholders described
//	IMAGE_WITH_TEXT         image_url required
//	ACTION_BASED            action_identifier required
//	FLOW_TRIGGER            flow_id required
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/pst-admin-backend/internal/domain"
	"github.com/tbourn/pst-admin-backend/internal/repo"
)

// placeholderRE matches {{ name }} tokens.
var placeholderRE = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// TemplateInput is the payload for creating or replacing a template.
type TemplateInput struct {
	Name                   string                  `json:"name"                     validate:"required"`
	Description            *string                 `json:"description"`
	TemplateType           string                  `json:"template_type"            validate:"required"`
	MessageContentTemplate *string                 `json:"message_content_template"`
	Details                *domain.TemplateDetails `json:"details"`
}

// TemplatePreview is a rendered example of a template.
type TemplatePreview struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Type             string `json:"type"`
	PreviewMessage   string `json:"preview_message"`
	PlaceholderCount int    `json:"placeholder_count"`
	HasAction        bool   `json:"has_action"`
}

// TemplateService manages message templates.
type TemplateService struct {
	DB *gorm.DB
}

// List returns templates, newest first.
func (s *TemplateService) List(ctx context.Context) ([]domain.MessageTemplate, error) {
	out, err := repo.ListTemplates(ctx, s.DB)
	if err != nil {
		return nil, E(KindBackend, "ListTemplates", err)
	}
	return out, nil
}

// Get returns one template.
func (s *TemplateService) Get(ctx context.Context, id string) (*domain.MessageTemplate, error) {
	t, err := repo.GetTemplate(ctx, s.DB, id)
	if err != nil {
		return nil, notFoundOr("GetTemplate", err)
	}
	return t, nil
}

// Create validates and stores a template.
func (s *TemplateService) Create(ctx context.Context, in TemplateInput) (*domain.MessageTemplate, error) {
	details, err := validateTemplate("CreateTemplate", &in)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	t := &domain.MessageTemplate{
		ID:                     uuid.NewString(),
		Name:                   in.Name,
		Description:            in.Description,
		TemplateType:           in.TemplateType,
		MessageContentTemplate: in.MessageContentTemplate,
		Details:                details,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := repo.CreateTemplate(ctx, s.DB, t); err != nil {
		return nil, E(KindBackend, "CreateTemplate", err)
	}
	return t, nil
}

// Update replaces a template's content.
func (s *TemplateService) Update(ctx context.Context, id string, in TemplateInput) (*domain.MessageTemplate, error) {
	details, err := validateTemplate("UpdateTemplate", &in)
	if err != nil {
		return nil, err
	}
	t, err := repo.UpdateTemplate(ctx, s.DB, id, map[string]any{
		"name":                     in.Name,
		"description":              in.Description,
		"template_type":            in.TemplateType,
		"message_content_template": in.MessageContentTemplate,
		"details":                  details,
	})
	if err != nil {
		return nil, notFoundOr("UpdateTemplate", err)
	}
	return t, nil
}

// Delete hard-deletes a template.
func (s *TemplateService) Delete(ctx context.Context, id string) error {
	if err := repo.DeleteTemplate(ctx, s.DB, id); err != nil {
		return notFoundOr("DeleteTemplate", err)
	}
	return nil
}

// Preview renders a template with its example values.
func (s *TemplateService) Preview(ctx context.Context, id string) (*TemplatePreview, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := PreviewTemplate(*t)
	if err != nil {
		return nil, E(KindInvalid, "PreviewTemplate", err)
	}
	return p, nil
}

// PreviewTemplate substitutes example values into the template content.
// Placeholders without an example render as [name].
func PreviewTemplate(t domain.MessageTemplate) (*TemplatePreview, error) {
	d, err := parseDetails(t.Details)
	if err != nil {
		return nil, err
	}
	examples := map[string]string{}
	for _, group := range [][]domain.PlaceholderDefinition{d.Placeholders, d.InitialMessagePlaceholders} {
		for _, p := range group {
			if p.Example != "" {
				examples[p.Name] = p.Example
			}
		}
	}

	content := deref(t.MessageContentTemplate)
	names := map[string]struct{}{}
	rendered := placeholderRE.ReplaceAllStringFunc(content, func(tok string) string {
		name := placeholderRE.FindStringSubmatch(tok)[1]
		names[name] = struct{}{}
		if v, ok := examples[name]; ok {
			return v
		}
		return "[" + name + "]"
	})

	return &TemplatePreview{
		ID:               t.ID,
		Name:             t.Name,
		Type:             t.TemplateType,
		PreviewMessage:   rendered,
		PlaceholderCount: len(names),
		HasAction:        t.TemplateType == domain.TemplateActionBased || d.ActionIdentifier != "",
	}, nil
}

// validateTemplate normalizes in and checks the details required by its type.
// It returns the details encoded for storage.
func validateTemplate(op string, in *TemplateInput) (datatypes.JSON, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.TemplateType = strings.ToUpper(strings.TrimSpace(in.TemplateType))
	if err := check(op, in); err != nil {
		return nil, err
	}
	if !domain.ValidTemplateType(in.TemplateType) {
		return nil, E(KindInvalid, op, fmt.Errorf("unknown template_type %q", in.TemplateType))
	}
	d := in.Details
	if d == nil {
		d = &domain.TemplateDetails{}
	}
	if err := check(op, d); err != nil {
		return nil, err
	}

	content := strings.TrimSpace(deref(in.MessageContentTemplate))
	var missing string
	switch in.TemplateType {
	case domain.TemplateTextOnly, domain.TemplateTextPlaceholders:
		if content == "" {
			missing = "message_content_template"
		}
	case domain.TemplateImageWithText:
		if d.ImageURL == "" {
			missing = "details.image_url"
		}
	case domain.TemplateActionBased:
		if d.ActionIdentifier == "" {
			missing = "details.action_identifier"
		}
	case domain.TemplateFlowTrigger:
		if d.FlowID == "" {
			missing = "details.flow_id"
		}
	}
	if missing != "" {
		return nil, E(KindInvalid, op, fmt.Errorf("%s is required for %s templates", missing, in.TemplateType))
	}

	if in.Details == nil {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, E(KindInvalid, op, err)
	}
	return datatypes.JSON(b), nil
}

func parseDetails(raw datatypes.JSON) (domain.TemplateDetails, error) {
	var d domain.TemplateDetails
	if len(rawJSON(raw)) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, errors.New("template details are not valid JSON")
	}
	return d, nil
}

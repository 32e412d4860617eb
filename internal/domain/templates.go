package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Template type discriminators. The shape of MessageTemplate.Details depends
// on the type.
const (
	TemplateTextOnly         = "TEXT_ONLY"
	TemplateTextPlaceholders = "TEXT_WITH_PLACEHOLDERS"
	TemplateImageWithText    = "IMAGE_WITH_TEXT"
	TemplateActionBased      = "ACTION_BASED"
	TemplateFlowTrigger      = "FLOW_TRIGGER"
)

// MessageTemplate is a reusable outbound message definition.
type MessageTemplate struct {
	ID                     string         `json:"id"                       gorm:"type:varchar(36);primaryKey"`
	Name                   string         `json:"name"                     gorm:"type:varchar(255);not null"`
	Description            *string        `json:"description"              gorm:"type:text"`
	TemplateType           string         `json:"template_type"            gorm:"type:varchar(32);not null"`
	MessageContentTemplate *string        `json:"message_content_template" gorm:"type:text"`
	Details                datatypes.JSON `json:"details"                  swaggertype:"object"`
	CreatedAt              time.Time      `json:"created_at"               gorm:"index"`
	UpdatedAt              time.Time      `json:"updated_at"`
}

// TableName returns the database table name for MessageTemplate.
func (MessageTemplate) TableName() string { return "message_templates" }

// PlaceholderDefinition names a {{placeholder}} and an example value for previews.
type PlaceholderDefinition struct {
	Name        string `json:"name"        validate:"required"`
	Description string `json:"description"`
	Example     string `json:"example"`
}

// AdminInputDefinition describes a form field an operator fills before an
// action-based template is sent.
type AdminInputDefinition struct {
	Name     string `json:"name"     validate:"required"`
	Label    string `json:"label"`
	Type     string `json:"type"     validate:"omitempty,oneof=text date time number textarea"`
	Required bool   `json:"required,omitempty"`
}

// TargetOperation maps admin inputs onto columns of a target table.
type TargetOperation struct {
	Table        string            `json:"table"          validate:"required"`
	MapToColumns map[string]string `json:"map_to_columns"`
}

// MessagePlaceholder resolves a placeholder from admin input or action output.
type MessagePlaceholder struct {
	Name                   string `json:"name" validate:"required"`
	SourceFromInput        string `json:"source_from_input,omitempty"`
	SourceFromActionResult string `json:"source_from_action_result,omitempty"`
	Format                 string `json:"format,omitempty"`
}

// TemplateDetails is the typed view of MessageTemplate.Details.
type TemplateDetails struct {
	Placeholders []PlaceholderDefinition `json:"placeholders,omitempty"      validate:"omitempty,dive"`
	ImageURL     string                  `json:"image_url,omitempty"         validate:"omitempty,url"`

	ActionIdentifier       string                 `json:"action_identifier,omitempty"`
	RequiredInputsForAdmin []AdminInputDefinition `json:"required_inputs_for_admin,omitempty" validate:"omitempty,dive"`
	TargetOperation        *TargetOperation       `json:"target_operation,omitempty"`
	MessagePlaceholders    []MessagePlaceholder   `json:"message_placeholders,omitempty"      validate:"omitempty,dive"`

	FlowID                     string                  `json:"flow_id,omitempty"`
	InitialMessagePlaceholders []PlaceholderDefinition `json:"initial_message_placeholders,omitempty" validate:"omitempty,dive"`
	MapAdminInputsToFlowParams map[string]string       `json:"map_admin_inputs_to_flow_params,omitempty"`
}

// ValidTemplateType reports whether t is a known template discriminator.
func ValidTemplateType(t string) bool {
	switch t {
	case TemplateTextOnly, TemplateTextPlaceholders, TemplateImageWithText, TemplateActionBased, TemplateFlowTrigger:
		return true
	}
	return false
}

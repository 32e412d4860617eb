// Package domain defines the persistence models for contacts, messages,
// staff users, PST members and visitors, survey definitions, and message
// templates. These types are mapped with GORM and form the core data layer
// of the administration backend. Table and column names follow the hosted
// database the front end was built against, so a deployment can point at it
// directly.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Message direction tags.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Message type tags.
const (
	TypeText        = "text"
	TypeImage       = "image"
	TypeAudio       = "audio"
	TypeVideo       = "video"
	TypeFile        = "file"
	TypeDocument    = "document"
	TypeInteractive = "interactive"
)

// DefaultChatbotState is the conversation state assigned to new contacts.
const DefaultChatbotState = "welcome"

// Contact represents a conversation partner reachable over WhatsApp.
//
// Fields:
//   - ID: stable UUID primary key.
//   - WaID: external messaging address (digits only); nil for manually seeded
//     contacts that have never been reached.
//   - Name / ProfilePicURL: display attributes.
//   - LastMessage / LastMessageAt: denormalized preview of the latest turn,
//     updated on every inbound and outbound message.
//   - ChatbotState: coarse state label of the automated flow ("welcome",
//     "conversation", "support", ...).
//   - PreferAgent: the contact asked to be handled by a human.
type Contact struct {
	ID              string         `json:"id"               gorm:"type:varchar(36);primaryKey"`
	WaID            *string        `json:"wa_id"            gorm:"type:varchar(32);uniqueIndex:ux_contacts_wa_id"`
	Name            *string        `json:"name"             gorm:"type:varchar(255)"`
	ProfilePicURL   *string        `json:"profile_pic_url"  gorm:"type:text"`
	LastMessageAt   *time.Time     `json:"last_message_at"  gorm:"index:idx_contacts_last_message_at"`
	LastMessage     *string        `json:"last_message"     gorm:"type:text"`
	WelcomeSent     bool           `json:"welcome_sent"     gorm:"not null;default:false"`
	Metadata        datatypes.JSON `json:"metadata"         swaggertype:"object"`
	ChatbotState    string         `json:"chatbot_state"    gorm:"type:varchar(64);not null;default:'welcome'"`
	ChatbotContext  datatypes.JSON `json:"chatbot_context"  swaggertype:"object"`
	LastInteraction *time.Time     `json:"last_interaction"`
	PreferAgent     bool           `json:"prefer_agent"     gorm:"not null;default:false"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// TableName returns the database table name for Contact.
func (Contact) TableName() string { return "contacts" }

// Message represents a single conversation turn with a contact.
//
// Timestamp and StatusTimestamp are millisecond epochs. Values are normalized
// at ingestion (see NormalizeEpochMillis); readers never guess the unit.
//
// MessageID holds the gateway-assigned identifier (wamid) once the gateway has
// acknowledged an outbound send, or the inbound identifier for incoming turns.
type Message struct {
	ID              string         `json:"id"               gorm:"type:varchar(36);primaryKey"`
	ContactID       string         `json:"contact_id"       gorm:"type:varchar(36);not null;index:idx_messages_contact_ts,priority:1"`
	UserID          *string        `json:"user_id"          gorm:"type:varchar(36);index"`
	MessageID       *string        `json:"message_id"       gorm:"type:varchar(128);index:idx_messages_wamid"`
	Content         string         `json:"content"          gorm:"type:text"`
	Type            string         `json:"type"             gorm:"type:varchar(16);not null;default:'text'"`
	MediaURL        *string        `json:"media_url"        gorm:"type:text"`
	Status          string         `json:"status"           gorm:"type:varchar(16);not null;default:'sent'"`
	StatusTimestamp *int64         `json:"status_timestamp"`
	ReplyTo         *string        `json:"reply_to"         gorm:"type:varchar(128)"`
	Direction       string         `json:"direction"        gorm:"type:varchar(16);not null"`
	Timestamp       int64          `json:"timestamp"        gorm:"not null;index:idx_messages_contact_ts,priority:2"`
	CreatedAt       time.Time      `json:"created_at"`
	InteractiveData datatypes.JSON `json:"interactive_data" swaggertype:"object"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// User is a staff member operating the administration console. Credentials
// live in the linked auth Account (AuthUID); PasswordHash is kept only for
// schema compatibility and is never serialized.
type User struct {
	ID           string     `json:"id"           gorm:"type:varchar(36);primaryKey"`
	Email        string     `json:"email"        gorm:"type:varchar(255);not null;uniqueIndex"`
	Name         string     `json:"name"         gorm:"type:varchar(255);not null"`
	PasswordHash string     `json:"-"            gorm:"type:text"`
	Role         string     `json:"role"         gorm:"type:varchar(32);not null;default:'staff'"`
	Position     *string    `json:"position"     gorm:"type:varchar(255)"`
	PhoneNumber  *string    `json:"phone_number" gorm:"type:varchar(32)"`
	IsActive     bool       `json:"is_active"    gorm:"not null"`
	LastLogin    *time.Time `json:"last_login"`
	AuthUID      *string    `json:"auth_uid"     gorm:"type:varchar(36);uniqueIndex"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Member is a registered PST (integrated statistics service) visitor profile.
type Member struct {
	ID             string    `json:"id"              gorm:"type:varchar(36);primaryKey"`
	Name           string    `json:"name"            gorm:"type:varchar(255);not null"`
	Email          *string   `json:"email"           gorm:"type:varchar(255)"`
	Phone          *string   `json:"phone"           gorm:"type:varchar(32)"`
	WaID           *string   `json:"wa_id"           gorm:"type:varchar(32)"`
	ContactID      *string   `json:"contact_id"      gorm:"type:varchar(36)"`
	Address        *string   `json:"address"         gorm:"type:text"`
	BirthYear      *int      `json:"birth_year"`
	Gender         *string   `json:"gender"          gorm:"type:varchar(16)"`
	Education      *string   `json:"education"       gorm:"type:varchar(64)"`
	Occupation     *string   `json:"occupation"      gorm:"type:varchar(128)"`
	Organization   *string   `json:"organization"    gorm:"type:varchar(255)"`
	ServicePurpose *string   `json:"service_purpose" gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName returns the database table name for Member.
func (Member) TableName() string { return "pst_users" }

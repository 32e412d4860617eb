package domain

import "time"

// Visitor check-in statuses.
const (
	VisitorWaiting    = "waiting"
	VisitorInProgress = "in_progress"
	VisitorCompleted  = "completed"
	VisitorCancelled  = "cancelled"
)

// Service request defaults.
const (
	RequestPending = "pending"
	PriorityNormal = "normal"
)

// Visitor is a walk-in check-in at the service desk.
type Visitor struct {
	ID          string    `json:"id"           gorm:"type:varchar(36);primaryKey"`
	PstUserID   string    `json:"pst_user_id"  gorm:"type:varchar(36);not null;index"`
	BookingID   *string   `json:"booking_id"   gorm:"type:varchar(36)"`
	CheckinTime time.Time `json:"checkin_time" gorm:"not null;index"`
	QueueNumber string    `json:"queue_number" gorm:"type:varchar(16)"`
	Status      string    `json:"status"       gorm:"type:varchar(16);not null;default:'waiting'"`
	Notes       *string   `json:"notes"        gorm:"type:text"`
	AssignedTo  *string   `json:"assigned_to"  gorm:"type:varchar(36)"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Member       *Member `json:"pst_user,omitempty"      gorm:"foreignKey:PstUserID;references:ID"`
	AssignedUser *User   `json:"assigned_user,omitempty" gorm:"foreignKey:AssignedTo;references:ID"`
}

// TableName returns the database table name for Visitor.
func (Visitor) TableName() string { return "pst_checkins" }

// ServiceType is a kind of assistance offered at the desk.
type ServiceType struct {
	ID          string  `json:"id"          gorm:"type:varchar(36);primaryKey"`
	Name        string  `json:"name"        gorm:"type:varchar(255);not null"`
	Description *string `json:"description" gorm:"type:text"`
}

// TableName returns the database table name for ServiceType.
func (ServiceType) TableName() string { return "pst_service_types" }

// ServiceRequest is a unit of work opened for a visitor.
type ServiceRequest struct {
	ID            string     `json:"id"              gorm:"type:varchar(36);primaryKey"`
	PstUserID     string     `json:"pst_user_id"     gorm:"type:varchar(36);not null;index"`
	CheckinID     *string    `json:"checkin_id"      gorm:"type:varchar(36);index"`
	BookingID     *string    `json:"booking_id"      gorm:"type:varchar(36)"`
	ServiceTypeID string     `json:"service_type_id" gorm:"type:varchar(36);not null"`
	Title         string     `json:"title"           gorm:"type:varchar(255);not null"`
	Description   *string    `json:"description"     gorm:"type:text"`
	Status        string     `json:"status"          gorm:"type:varchar(16);not null;default:'pending'"`
	Priority      string     `json:"priority"        gorm:"type:varchar(16);not null;default:'normal'"`
	AssignedTo    *string    `json:"assigned_to"     gorm:"type:varchar(36)"`
	StartTime     *time.Time `json:"start_time"`
	EndTime       *time.Time `json:"end_time"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	ServiceType *ServiceType `json:"service_type,omitempty" gorm:"foreignKey:ServiceTypeID;references:ID"`
}

// TableName returns the database table name for ServiceRequest.
func (ServiceRequest) TableName() string { return "pst_service_requests" }

// ValidVisitorStatus reports whether s is a known check-in status.
func ValidVisitorStatus(s string) bool {
	switch s {
	case VisitorWaiting, VisitorInProgress, VisitorCompleted, VisitorCancelled:
		return true
	}
	return false
}

package domain

import "time"

// PeriodType classifies survey periods (monthly, quarterly, ...).
type PeriodType struct {
	ID   int64  `json:"id"        gorm:"primaryKey;autoIncrement"`
	Name string `json:"nama_tipe" gorm:"column:nama_tipe;type:varchar(255);not null"`
}

// TableName returns the database table name for PeriodType.
func (PeriodType) TableName() string { return "srv_tipe_periode" }

// Period is a named reporting period of a given type.
type Period struct {
	ID           int64  `json:"id"              gorm:"primaryKey;autoIncrement"`
	Name         string `json:"nama_periode"    gorm:"column:nama_periode;type:varchar(255);not null"`
	PeriodTypeID *int64 `json:"tipe_periode_id" gorm:"column:tipe_periode_id;index"`

	PeriodType *PeriodType `json:"tipe_periode,omitempty" gorm:"foreignKey:PeriodTypeID;references:ID"`
}

// TableName returns the database table name for Period.
func (Period) TableName() string { return "srv_periode" }

// Survey is a node of the survey definition tree. Parent surveys only group
// children for display; activities hang off leaf surveys through details.
type Survey struct {
	ID           int64     `json:"id"               gorm:"primaryKey;autoIncrement"`
	Name         string    `json:"nama"             gorm:"column:nama;type:varchar(255);not null"`
	PeriodTypeID *int64    `json:"tipe_periode_id"  gorm:"column:tipe_periode_id;index"`
	IsParent     bool      `json:"is_parent"        gorm:"column:is_parent;not null;default:false"`
	ParentID     *int64    `json:"parent_survei_id" gorm:"column:parent_survei_id;index"`
	CreatedAt    time.Time `json:"created_at"`

	PeriodType *PeriodType `json:"tipe_periode,omitempty" gorm:"foreignKey:PeriodTypeID;references:ID"`
}

// TableName returns the database table name for Survey.
func (Survey) TableName() string { return "srv_survei" }

// SurveyDetail is a named piece of fieldwork under a survey. Details survive
// the deletion of their survey (no cascade); Survey is nil in that case.
type SurveyDetail struct {
	ID       int64  `json:"id"            gorm:"primaryKey;autoIncrement"`
	Name     string `json:"nama_kegiatan" gorm:"column:nama_kegiatan;type:varchar(255);not null"`
	SurveyID int64  `json:"survei_id"     gorm:"column:survei_id;not null;index"`

	Survey   *Survey   `json:"survei,omitempty"   gorm:"foreignKey:SurveyID;references:ID"`
	Activity *Activity `json:"kegiatan,omitempty" gorm:"foreignKey:SurveyDetailID;references:ID"`
}

// TableName returns the database table name for SurveyDetail.
func (SurveyDetail) TableName() string { return "srv_survei_rinci" }

// Activity is a compensated task (role, work, unit, pay rate) attached to a
// survey detail. Activities are soft-deleted by clearing IsActive.
type Activity struct {
	ID             int64   `json:"id"              gorm:"primaryKey;autoIncrement"`
	SurveyDetailID int64   `json:"survei_rinci_id" gorm:"column:survei_rinci_id;not null;index"`
	Role           string  `json:"jabatan"         gorm:"column:jabatan;type:varchar(255);not null"`
	Task           string  `json:"jenis_pekerjaan" gorm:"column:jenis_pekerjaan;type:varchar(255);not null"`
	Unit           string  `json:"satuan"          gorm:"column:satuan;type:varchar(64);not null"`
	PayRate        float64 `json:"honor"           gorm:"column:honor;not null"`
	IsActive       bool    `json:"is_active"       gorm:"column:is_active;not null"`
}

// TableName returns the database table name for Activity.
func (Activity) TableName() string { return "srv_kegiatan" }

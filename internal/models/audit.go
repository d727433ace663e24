package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Audit statuses
const (
	AuditStatusSuccess = "success"
	AuditStatusPartial = "partial"
	AuditStatusFailure = "failure"
)

// AuditLog records one manifest build against an archive
type AuditLog struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Archive       string    `gorm:"type:varchar(255);not null;index" json:"archive"`
	Action        string    `gorm:"type:varchar(100);not null;index" json:"action"`
	KeyKind       string    `gorm:"type:varchar(50);index" json:"key_kind"`
	SearchKeys    string    `gorm:"type:text" json:"search_keys"`
	ManifestID    string    `gorm:"type:varchar(64);index" json:"manifest_id,omitempty"`
	RemoteAddr    string    `gorm:"type:varchar(45)" json:"remote_addr"`
	Status        string    `gorm:"type:varchar(20);index" json:"status"`
	ErrorMessage  string    `gorm:"type:text" json:"error_message,omitempty"`
	PatientCount  int       `json:"patient_count"`
	InstanceCount int       `json:"instance_count"`
	Duration      int64     `json:"duration_ms"`
	CreatedAt     time.Time `gorm:"index" json:"timestamp"`
}

// TableName overrides the table name
func (AuditLog) TableName() string {
	return "query_audit_logs"
}

// BeforeCreate hook
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

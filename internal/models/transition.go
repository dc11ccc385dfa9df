package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Transition states.
const (
	TransitionRequested    = "requested"
	TransitionApplying     = "applying"
	TransitionCommitted    = "committed"
	TransitionRollingBack  = "rolling_back"
	TransitionFailed       = "failed"
	TransitionInconsistent = "inconsistent" // rollback itself partially failed
)

// Audit record for a tier change, including the outcome of every
// backing store that independently enforces tier policy.
type TransitionRecord struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	TenantID    uuid.UUID  `gorm:"type:uuid;index" json:"tenant_id"`
	FromTier    string     `gorm:"not null" json:"from_tier"`
	ToTier      string     `gorm:"not null" json:"to_tier"`
	State       string     `gorm:"not null" json:"state"`
	StoreStatus string     `json:"store_status"` // JSON map store -> "applied"|"failed"|"reverted"|"revert_failed"
	Detail      string     `json:"detail,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
}

func (r *TransitionRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (TransitionRecord) TableName() string {
	return "transition_records"
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// A customer account sharing the backing database instance.
// The tenants table is the Tier Policy Store's source of truth
// for tenant -> tier assignment.
type Tenant struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	Name       string     `gorm:"not null" json:"name"`
	APIKeyHash string     `gorm:"uniqueIndex;not null" json:"-"`
	Tier       string     `gorm:"default:'free'" json:"tier"`
	Status     string     `gorm:"default:'active'" json:"status"` // "active" "suspended"
	CreatedAt  time.Time  `json:"created_at"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func (Tenant) TableName() string {
	return "tenants"
}

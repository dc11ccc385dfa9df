package models

import "time"

// Reconciles one billing period's internally estimated cost units
// against the real infrastructure invoice. Immutable after creation.
type CalibrationRecord struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Period           string    `gorm:"uniqueIndex;not null" json:"period"`
	ExternalTotal    float64   `gorm:"not null" json:"external_total"`
	EstimatedTotal   float64   `gorm:"not null" json:"estimated_total"`
	CorrectionFactor float64   `gorm:"not null" json:"correction_factor"` // dollars per cost unit
	Variance         float64   `json:"variance"`
	CreatedAt        time.Time `json:"created_at"`
}

func (CalibrationRecord) TableName() string {
	return "calibration_records"
}

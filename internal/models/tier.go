package models

// A named bundle of resource limits. Tiers are data, not types:
// every enforcement point looks the tenant's tier up by name.
type TierDefinition struct {
	Name               string  `gorm:"primaryKey" json:"name"`
	Version            int     `gorm:"not null;default:1" json:"version"`
	MaxConnections     int     `gorm:"not null" json:"max_connections"`
	RequestsPerSecond  *int    `json:"requests_per_second"` // nil = unlimited
	CostCeiling        float64 `gorm:"not null" json:"cost_ceiling"`
	TimeoutMs          int     `gorm:"not null" json:"timeout_ms"`
	WorkMemMB          int     `gorm:"not null" json:"work_mem_mb"`
	MaxParallelWorkers int     `gorm:"not null" json:"max_parallel_workers"`
	Algorithm          string  `gorm:"default:'sliding_window'" json:"algorithm"` // "sliding_window" "token_bucket" "fixed_window"
}

func (TierDefinition) TableName() string {
	return "tier_definitions"
}

// Returns true when the tier has no request-rate limit.
func (t *TierDefinition) Unlimited() bool {
	return t.RequestsPerSecond == nil || *t.RequestsPerSecond <= 0
}

package healthcheck

import "time"

// Health state of one backend connection endpoint.
type Status struct {
	Endpoint     string    `json:"endpoint"`
	IsHealthy    bool      `json:"is_healthy"`
	FailureCount int       `json:"failure_count"`
	LastCheck    time.Time `json:"last_check"`
	LastSuccess  time.Time `json:"last_success,omitempty"`
	LastFailure  time.Time `json:"last_failure,omitempty"`
}

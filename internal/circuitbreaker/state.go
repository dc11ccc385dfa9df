package circuitbreaker

type State int

const (
	// StateClosed - normal operation, requests reach the backend
	StateClosed State = iota

	// StateOpen - backend is failing, requests rejected immediately
	StateOpen

	// StateHalfOpen - probing whether the backend recovered
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

package loadbalancer

import "fmt"

// Selects among the backend instance's connection endpoints (e.g.
// pooler frontends). All endpoints reach the same shared instance;
// the strategy only spreads connection load.
type Strategy interface {
	// Selects the next endpoint from the available set
	Next(endpoints []string) string

	// Returns the strategy name
	Name() string
}

func NewStrategy(name string) (Strategy, error) {
	switch name {
	case "round_robin", "":
		return NewRoundRobin(), nil
	case "least_connections":
		return NewLeastConnections(), nil
	case "random":
		return NewRandom(), nil
	default:
		return nil, fmt.Errorf("unknown load balancer strategy: %s", name)
	}
}

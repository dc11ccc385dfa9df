package loadbalancer

import "sync"

type RoundRobin struct {
	mu      sync.Mutex
	current int
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

func (r *RoundRobin) Next(endpoints []string) string {
	if len(endpoints) == 0 {
		return ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	endpoint := endpoints[r.current%len(endpoints)]
	r.current++
	return endpoint
}

func (r *RoundRobin) Name() string {
	return "round_robin"
}

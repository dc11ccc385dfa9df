package loadbalancer

import "sync"

type LeastConnections struct {
	mu          sync.RWMutex
	connections map[string]int
}

func NewLeastConnections() *LeastConnections {
	return &LeastConnections{
		connections: make(map[string]int),
	}
}

// Returns the endpoint with the fewest in-flight requests
func (l *LeastConnections) Next(endpoints []string) string {
	if len(endpoints) == 0 {
		return ""
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	selected := endpoints[0]
	minConn := l.connections[selected]

	for _, endpoint := range endpoints[1:] {
		if conn := l.connections[endpoint]; conn < minConn {
			minConn = conn
			selected = endpoint
		}
	}

	return selected
}

func (l *LeastConnections) Increment(endpoint string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connections[endpoint]++
}

func (l *LeastConnections) Decrement(endpoint string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connections[endpoint] > 0 {
		l.connections[endpoint]--
	}
}

func (l *LeastConnections) Name() string {
	return "least_connections"
}

package healthcheck

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"
)

// Periodically probes the backend instance's connection endpoints so
// the proxy only routes to endpoints that are answering.
type Checker struct {
	mu        sync.RWMutex
	endpoints []string
	status    map[string]*Status
	healthy   []string

	path        string
	interval    time.Duration
	timeout     time.Duration
	maxFailures int
	stopChan    chan struct{}
	running     bool
}

type Config struct {
	Endpoints   []string
	Path        string        // Probe path (default: "/health")
	Interval    time.Duration // How often to probe (default: 10s)
	Timeout     time.Duration // Probe timeout (default: 5s)
	MaxFailures int           // Consecutive failures before unhealthy (default: 3)
}

func NewChecker(cfg *Config) *Checker {
	if cfg.Path == "" {
		cfg.Path = "/health"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}

	checker := &Checker{
		endpoints:   cfg.Endpoints,
		status:      make(map[string]*Status),
		healthy:     make([]string, 0, len(cfg.Endpoints)),
		path:        cfg.Path,
		interval:    cfg.Interval,
		timeout:     cfg.Timeout,
		maxFailures: cfg.MaxFailures,
		stopChan:    make(chan struct{}),
	}

	// Assume healthy until a probe says otherwise
	for _, endpoint := range cfg.Endpoints {
		checker.status[endpoint] = &Status{
			Endpoint:  endpoint,
			IsHealthy: true,
			LastCheck: time.Now(),
		}
	}

	return checker
}

func (c *Checker) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	log.Printf("Probing %d backend endpoints every %v", len(c.endpoints), c.interval)

	c.checkAll()

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.checkAll()
			case <-c.stopChan:
				return
			}
		}
	}()
}

func (c *Checker) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		close(c.stopChan)
		c.running = false
	}
}

func (c *Checker) checkAll() {
	var wg sync.WaitGroup

	for _, endpoint := range c.endpoints {
		wg.Add(1)
		go func(e string) {
			defer wg.Done()
			c.check(e)
		}(endpoint)
	}

	wg.Wait()
	c.refreshHealthy()
}

func (c *Checker) check(endpoint string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint+c.path, nil)
	if err != nil {
		c.recordFailure(endpoint)
		return
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.recordFailure(endpoint)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		c.recordSuccess(endpoint)
	} else {
		c.recordFailure(endpoint)
	}
}

func (c *Checker) recordSuccess(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := c.status[endpoint]
	status.LastCheck = time.Now()
	status.LastSuccess = time.Now()
	status.FailureCount = 0

	if !status.IsHealthy {
		log.Printf("Backend endpoint %s recovered", endpoint)
		status.IsHealthy = true
	}
}

func (c *Checker) recordFailure(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := c.status[endpoint]
	status.LastCheck = time.Now()
	status.LastFailure = time.Now()
	status.FailureCount++

	if status.IsHealthy && status.FailureCount >= c.maxFailures {
		log.Printf("Backend endpoint %s marked unhealthy after %d failures", endpoint, status.FailureCount)
		status.IsHealthy = false
	}
}

func (c *Checker) refreshHealthy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	healthy := make([]string, 0, len(c.endpoints))
	for _, endpoint := range c.endpoints {
		if c.status[endpoint].IsHealthy {
			healthy = append(healthy, endpoint)
		}
	}
	c.healthy = healthy
}

// Returns endpoints currently passing probes.
func (c *Checker) HealthyEndpoints() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, len(c.healthy))
	copy(out, c.healthy)
	return out
}

// Returns status for all endpoints.
func (c *Checker) AllStatus() map[string]*Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]*Status, len(c.status))
	for endpoint, status := range c.status {
		s := *status
		out[endpoint] = &s
	}
	return out
}

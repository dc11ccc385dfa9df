package proxy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tenantwise/dbgovernor/internal/circuitbreaker"
	"github.com/tenantwise/dbgovernor/internal/healthcheck"
	"github.com/tenantwise/dbgovernor/internal/loadbalancer"
	"github.com/tenantwise/dbgovernor/internal/session"
	"github.com/tenantwise/dbgovernor/internal/timeout"
)

// Wire-transparent pass-through to the shared backing database
// instance. The governor forwards the client's request unmodified
// except for the session headers derived from the tenant's tier and
// the tier deadline on the request context.
type Proxy struct {
	endpoints []string
	proxies   map[string]*httputil.ReverseProxy
	breaker   *circuitbreaker.CircuitBreaker
	balancer  loadbalancer.Strategy
	checker   *healthcheck.Checker
}

type Config struct {
	Endpoints      []string
	Strategy       string
	CircuitBreaker circuitbreaker.Config
	HealthCheck    healthcheck.Config
}

func New(cfg Config) (*Proxy, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("at least one backend endpoint is required")
	}

	balancer, err := loadbalancer.NewStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	proxies := make(map[string]*httputil.ReverseProxy)
	for _, endpoint := range cfg.Endpoints {
		target, err := url.Parse(endpoint)
		if err != nil {
			return nil, err
		}

		rp := httputil.NewSingleHostReverseProxy(target)
		rp.ErrorHandler = backendError
		proxies[endpoint] = rp
	}

	if cfg.HealthCheck.Endpoints == nil {
		cfg.HealthCheck.Endpoints = cfg.Endpoints
	}

	checker := healthcheck.NewChecker(&cfg.HealthCheck)
	checker.Start()

	p := &Proxy{
		endpoints: cfg.Endpoints,
		proxies:   proxies,
		breaker:   circuitbreaker.New(cfg.CircuitBreaker),
		balancer:  balancer,
		checker:   checker,
	}

	log.Printf("Backend proxy initialized with %d endpoints, strategy: %s", len(cfg.Endpoints), balancer.Name())

	return p, nil
}

// Forwards an admitted request to a healthy backend endpoint.
func (p *Proxy) Handle(c *gin.Context) {
	healthy := p.checker.HealthyEndpoints()
	if len(healthy) == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "no healthy backend endpoints available",
		})
		return
	}

	endpoint := p.balancer.Next(healthy)
	targetProxy, exists := p.proxies[endpoint]
	if endpoint == "" || !exists {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "failed to select backend endpoint",
		})
		return
	}

	if lc, ok := p.balancer.(*loadbalancer.LeastConnections); ok {
		lc.Increment(endpoint)
		defer lc.Decrement(endpoint)
	}

	target, _ := url.Parse(endpoint)

	// Tier deadline: the backend's own statement timeout (applied via
	// session headers) is primary, this context is the local backstop.
	req := c.Request
	started := time.Now()
	var tierLimit time.Duration
	var cancel context.CancelFunc
	if sc, ok := sessionConfig(c); ok {
		ctx, cancelFn := timeout.Monitor(req.Context(), sc.StatementTimeout)
		cancel = cancelFn
		tierLimit = sc.StatementTimeout
		req = req.WithContext(ctx)

		applySessionHeaders(req, sc)
	}
	if cancel != nil {
		defer cancel()
	}

	err := p.breaker.Call(func() error {
		recorder := &responseRecorder{
			ResponseWriter: c.Writer,
			statusCode:     http.StatusOK,
		}

		req.Header.Set("X-Forwarded-Host", req.Host)
		req.URL.Host = target.Host
		req.URL.Scheme = target.Scheme
		req.Host = target.Host

		if clientIP := c.ClientIP(); clientIP != "" {
			req.Header.Set("X-Forwarded-For", clientIP)
		}

		c.Writer = recorder

		targetProxy.ServeHTTP(c.Writer, req)

		if recorder.statusCode >= 500 {
			// A fired tier deadline is the tenant exhausting its own
			// budget, not a backend failure. It must not feed the
			// breaker, or one tenant's timeouts would open the
			// circuit for every tenant.
			if terr := timeout.Classify(req.Context(), tierLimit, started); terr != nil {
				log.Printf("Tier timeout: %v", terr)
				return nil
			}
			return errors.New("backend error")
		}

		return nil
	})

	if err == circuitbreaker.ErrCircuitOpen {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "backend temporarily unavailable",
		})
	}
}

func (p *Proxy) CircuitBreakerState() circuitbreaker.State {
	return p.breaker.State()
}

func (p *Proxy) HealthStatus() map[string]*healthcheck.Status {
	return p.checker.AllStatus()
}

func (p *Proxy) Stop() {
	if p.checker != nil {
		p.checker.Stop()
	}
}

// Session config stored by the admission middleware.
func sessionConfig(c *gin.Context) (session.Config, bool) {
	value, exists := c.Get("session_config")
	if !exists {
		return session.Config{}, false
	}

	sc, ok := value.(session.Config)
	return sc, ok
}

func applySessionHeaders(req *http.Request, sc session.Config) {
	req.Header.Set("X-Session-Work-Mem-MB", fmt.Sprintf("%d", sc.WorkMemMB))
	req.Header.Set("X-Session-Max-Parallel-Workers", fmt.Sprintf("%d", sc.MaxParallelWorkers))
	req.Header.Set("X-Session-Statement-Timeout-Ms", fmt.Sprintf("%d", sc.StatementTimeout.Milliseconds()))
	req.Header.Set("X-Session-Attribution-Tag", sc.AttributionTag)
}

// Distinguishes "your tier ran out of time" from backend outages.
func backendError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(r.Context().Err(), context.DeadlineExceeded) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusGatewayTimeout)
		fmt.Fprintf(w, `{"error":"request timeout","detail":"request exceeded the tier statement timeout"}`)
		return
	}

	log.Printf("Backend proxy error: %v", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	fmt.Fprintf(w, `{"error":"backend unavailable"}`)
}

// Captures the response status for the circuit breaker
type responseRecorder struct {
	gin.ResponseWriter
	statusCode int
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

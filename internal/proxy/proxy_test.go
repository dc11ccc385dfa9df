package proxy

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tenantwise/dbgovernor/internal/circuitbreaker"
	"github.com/tenantwise/dbgovernor/internal/healthcheck"
	"github.com/tenantwise/dbgovernor/internal/session"
)

func newTestProxy(t *testing.T, backendURL string, maxFailures int) *Proxy {
	t.Helper()
	gin.SetMode(gin.TestMode)

	p, err := New(Config{
		Endpoints:      []string{backendURL},
		CircuitBreaker: circuitbreaker.Config{MaxFailures: maxFailures, Timeout: time.Minute},
		HealthCheck:    healthcheck.Config{Path: "/health", Interval: time.Hour},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(p.Stop)
	return p
}

// closeNotifyRecorder adds http.CloseNotifier, which gin's ResponseWriter
// delegates to and httputil.ReverseProxy requires when the request context
// has no Done channel.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyRecorder) CloseNotify() <-chan bool { return r.closed }

func doProxied(p *Proxy, sc *session.Config) *httptest.ResponseRecorder {
	w := &closeNotifyRecorder{httptest.NewRecorder(), make(chan bool, 1)}
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/db/query", strings.NewReader(`{"query":"SELECT 1"}`))
	if sc != nil {
		c.Set("session_config", *sc)
	}
	p.Handle(c)
	return w.ResponseRecorder
}

func TestTierTimeoutsLeaveBreakerClosed(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	p := newTestProxy(t, backend.URL, 2)
	sc := session.Config{
		WorkMemMB:          64,
		MaxParallelWorkers: 1,
		StatementTimeout:   20 * time.Millisecond,
		AttributionTag:     "governor:tenant-a:starter",
	}

	// One tenant burning its own time budget, repeatedly. The shared
	// breaker must stay closed for everyone else.
	for i := 0; i < 4; i++ {
		w := doProxied(p, &sc)
		if w.Code != http.StatusGatewayTimeout {
			t.Fatalf("request %d: expected 504, got %d", i, w.Code)
		}
	}
	if state := p.CircuitBreakerState(); state != circuitbreaker.StateClosed {
		t.Fatalf("tier timeouts must not trip the breaker, state is %s", state)
	}
}

func TestBackendFailuresStillOpenBreaker(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer backend.Close()

	p := newTestProxy(t, backend.URL, 2)

	doProxied(p, nil)
	doProxied(p, nil)

	if state := p.CircuitBreakerState(); state != circuitbreaker.StateOpen {
		t.Fatalf("expected open breaker after repeated backend errors, state is %s", state)
	}

	w := doProxied(p, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("open breaker must reject with 503, got %d", w.Code)
	}
}

func TestForwardedHostCarriesClientHost(t *testing.T) {
	var forwardedHost string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		forwardedHost = r.Header.Get("X-Forwarded-Host")
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	p := newTestProxy(t, backend.URL, 5)

	w := doProxied(p, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if forwardedHost != "example.com" {
		t.Fatalf("expected X-Forwarded-Host example.com, got %q", forwardedHost)
	}
}

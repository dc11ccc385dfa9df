package costestimator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Pre-execution cost signal provider. The production implementation
// asks the backend's planner; tests substitute a fake.
type Planner interface {
	EstimateCost(ctx context.Context, query string) (float64, error)
}

// Asks the backend gateway's explain endpoint for a planner cost
// estimate without executing the query.
type HTTPPlanner struct {
	client  *http.Client
	baseURL string
	path    string
}

func NewHTTPPlanner(baseURL, path string, timeout time.Duration) *HTTPPlanner {
	return &HTTPPlanner{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		path:    path,
	}
}

type explainRequest struct {
	Query string `json:"query"`
}

type explainResponse struct {
	TotalCost float64 `json:"total_cost"`
}

func (p *HTTPPlanner) EstimateCost(ctx context.Context, query string) (float64, error) {
	body, err := json.Marshal(explainRequest{Query: query})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+p.path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("explain endpoint returned %d", resp.StatusCode)
	}

	var explained explainResponse
	if err := json.NewDecoder(resp.Body).Decode(&explained); err != nil {
		return 0, err
	}

	return explained.TotalCost, nil
}

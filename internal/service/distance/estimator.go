package distance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

var (
	ErrUnavailable     = errors.New("distance: estimator unavailable")
	ErrInvalidResponse = errors.New("distance: invalid estimator response")
)

// Estimator maps a customer address to a travel distance in km by calling an
// external routing service. Accuracy is the routing service's problem; the
// booking core only sees a validated non-negative number.
type Estimator struct {
	baseURL    string
	httpClient *http.Client
}

func NewEstimator(baseURL string, timeout time.Duration) *Estimator {
	return &Estimator{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type estimateResponse struct {
	DistanceKm float64 `json:"distance_km"`
}

// Estimate returns the travel distance for the address, never negative.
// Callers decide the fallback policy when the estimator is unreachable.
func (e *Estimator) Estimate(ctx context.Context, address string) (float64, error) {
	if address == "" {
		return 0, fmt.Errorf("%w: empty address", ErrInvalidResponse)
	}

	u := fmt.Sprintf("%s/v1/distance?address=%s", e.baseURL, url.QueryEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("%w: unexpected status code %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	var out estimateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("%w: failed to decode response: %v", ErrInvalidResponse, err)
	}

	if out.DistanceKm < 0 {
		return 0, fmt.Errorf("%w: negative distance %f", ErrInvalidResponse, out.DistanceKm)
	}
	return out.DistanceKm, nil
}

package pricing

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shinedetail/booking-api/internal/model"
)

var (
	ErrNegativeDistance = errors.New("pricing: distance cannot be negative")
	ErrUnknownService   = errors.New("pricing: unknown or inactive service")
	ErrNoServices       = errors.New("pricing: at least one service is required")
)

// Quote is the price breakdown for a service selection and travel distance.
type Quote struct {
	ServiceTotal decimal.Decimal `json:"service_total"`
	TravelCost   decimal.Decimal `json:"travel_cost"`
	Total        decimal.Decimal `json:"total"`
}

// Engine computes booking totals. It is a pure function over a catalog
// snapshot: no I/O, no clock, no state beyond the configured rate.
type Engine struct {
	ratePerKm decimal.Decimal
}

func NewEngine(ratePerKm decimal.Decimal) (*Engine, error) {
	if ratePerKm.IsNegative() {
		return nil, fmt.Errorf("pricing: travel rate cannot be negative, got %s", ratePerKm)
	}
	return &Engine{ratePerKm: ratePerKm}, nil
}

// ComputeTotal sums the snapshot prices of the selected services and adds the
// distance surcharge. Ids are expected pre-validated, but an id absent from
// the snapshot is still a hard error rather than a silent skip.
func (e *Engine) ComputeTotal(serviceIDs []uuid.UUID, services map[uuid.UUID]*model.Service, distanceKm decimal.Decimal) (Quote, error) {
	if len(serviceIDs) == 0 {
		return Quote{}, ErrNoServices
	}
	if distanceKm.IsNegative() {
		return Quote{}, ErrNegativeDistance
	}

	serviceTotal := decimal.Zero
	for _, id := range serviceIDs {
		svc, ok := services[id]
		if !ok || !svc.Active {
			return Quote{}, fmt.Errorf("%w: %s", ErrUnknownService, id)
		}
		serviceTotal = serviceTotal.Add(svc.Price)
	}

	travelCost := distanceKm.Mul(e.ratePerKm).Round(2)
	total := serviceTotal.Add(travelCost).Round(2)

	return Quote{
		ServiceTotal: serviceTotal.Round(2),
		TravelCost:   travelCost,
		Total:        total,
	}, nil
}

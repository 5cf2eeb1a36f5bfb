package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/shinedetail/booking-api/internal/model"
	"github.com/shinedetail/booking-api/internal/repository"
)

type serviceRepository struct {
	db *sqlx.DB
}

func NewServiceRepository(db *sqlx.DB) repository.ServiceRepository {
	return &serviceRepository{db: db}
}

func (r *serviceRepository) ListActive(ctx context.Context) ([]*model.Service, error) {
	query := `
		SELECT id, name, description, price, duration_minutes, active, created_at, updated_at
		FROM services
		WHERE active = TRUE
		ORDER BY name ASC
	`
	var services []*model.Service
	if err := r.db.SelectContext(ctx, &services, query); err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	return services, nil
}

func (r *serviceRepository) FindActiveByID(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	query := `
		SELECT id, name, description, price, duration_minutes, active, created_at, updated_at
		FROM services
		WHERE id = $1 AND active = TRUE
	`
	var service model.Service
	err := r.db.GetContext(ctx, &service, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return &service, nil
}

func (r *serviceRepository) FindMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Service, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]*model.Service{}, nil
	}

	query := `
		SELECT id, name, description, price, duration_minutes, active, created_at, updated_at
		FROM services
		WHERE id = ANY($1) AND active = TRUE
	`
	var services []*model.Service
	if err := r.db.SelectContext(ctx, &services, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to find services: %w", err)
	}

	found := make(map[uuid.UUID]*model.Service, len(services))
	for _, s := range services {
		found[s.ID] = s
	}
	return found, nil
}

package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/shinedetail/booking-api/internal/model"
	"github.com/shinedetail/booking-api/internal/repository"
)

const (
	cacheTTL     = 5 * time.Minute
	cacheCleanup = 10 * time.Minute
	listCacheKey = "services:active"
)

// Service is the read-only catalog with a short-lived cache in front of the
// store; every booking looks services up, catalog rows change rarely.
type Service struct {
	repo  repository.ServiceRepository
	cache *cache.Cache
}

func NewService(repo repository.ServiceRepository) *Service {
	return &Service{
		repo:  repo,
		cache: cache.New(cacheTTL, cacheCleanup),
	}
}

func (s *Service) ListActive(ctx context.Context) ([]*model.Service, error) {
	if cached, found := s.cache.Get(listCacheKey); found {
		return cached.([]*model.Service), nil
	}

	services, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}

	s.cache.Set(listCacheKey, services, cache.DefaultExpiration)
	return services, nil
}

func (s *Service) FindActiveByID(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	if cached, found := s.cache.Get(id.String()); found {
		return cached.(*model.Service), nil
	}

	service, err := s.repo.FindActiveByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find service: %w", err)
	}
	if service == nil {
		return nil, nil
	}

	s.cache.Set(id.String(), service, cache.DefaultExpiration)
	return service, nil
}

// FindMany resolves the requested ids to active services, omitting unmatched
// or inactive ids; callers diff against the request to detect invalid ones.
func (s *Service) FindMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Service, error) {
	found := make(map[uuid.UUID]*model.Service, len(ids))
	var missing []uuid.UUID

	for _, id := range ids {
		if cached, ok := s.cache.Get(id.String()); ok {
			found[id] = cached.(*model.Service)
			continue
		}
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		fetched, err := s.repo.FindMany(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("failed to find services: %w", err)
		}
		for id, svc := range fetched {
			found[id] = svc
			s.cache.Set(id.String(), svc, cache.DefaultExpiration)
		}
	}

	return found, nil
}

// Package location resolves and caches the country→region→city
// hierarchy against the external location service.
package location

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pairup/matchmaker-bot/internal/models"
	"github.com/pairup/matchmaker-bot/internal/store"
)

// ErrNotFound means the external service has no match for the title.
var ErrNotFound = errors.New("location: no match")

// CityResult is a city lookup with its region, when the service can
// resolve one.
type CityResult struct {
	City   models.City
	Region *models.Region
}

// Service is the external location lookup service.
type Service interface {
	LookupCity(ctx context.Context, countryID int64, title string) (CityResult, error)
	LookupRegion(ctx context.Context, countryID int64, title string) (models.Region, error)
}

type Resolver struct {
	svc   Service
	store *store.Store
	log   *zap.Logger
}

func NewResolver(svc Service, st *store.Store, logger *zap.Logger) *Resolver {
	return &Resolver{svc: svc, store: st, log: logger}
}

// EnsureCity returns the stored city with the given identity, fetching
// and storing it when missing. Regions are stored before the cities
// that reference them. ErrNotFound when the service has no match;
// callers fall back to their configured default city.
func (r *Resolver) EnsureCity(ctx context.Context, countryID, cityID int64, title string) (*models.City, error) {
	city, err := r.store.CityByID(ctx, cityID)
	if err == nil {
		if city.RegionID == 0 && city.RegionTitle != "" {
			r.backfillRegion(ctx, countryID, city)
		}
		return city, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	result, err := r.svc.LookupCity(ctx, countryID, title)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("city lookup failed for %q: %w", title, err)
	}

	if result.Region != nil {
		if _, err := r.store.RegionByID(ctx, result.Region.ID); errors.Is(err, store.ErrNotFound) {
			if err := r.store.InsertRegion(ctx, result.Region); err != nil {
				return nil, err
			}
		} else if err != nil {
			return nil, err
		}
	}

	if err := r.store.InsertCity(ctx, &result.City); err != nil {
		return nil, err
	}
	return &result.City, nil
}

// backfillRegion links a stored city to its region when only the
// region title is known. Best effort; the city stays usable without it.
func (r *Resolver) backfillRegion(ctx context.Context, countryID int64, city *models.City) {
	// The service matches regions on their leading word.
	title := strings.Fields(city.RegionTitle)[0]

	region, err := r.svc.LookupRegion(ctx, countryID, title)
	if err != nil {
		r.log.Warn("region backfill lookup failed",
			zap.Int64("city_id", city.ID), zap.String("region", city.RegionTitle), zap.Error(err))
		return
	}

	if _, err := r.store.RegionByID(ctx, region.ID); errors.Is(err, store.ErrNotFound) {
		if err := r.store.InsertRegion(ctx, &region); err != nil {
			r.log.Warn("region backfill insert failed", zap.Int64("region_id", region.ID), zap.Error(err))
			return
		}
	}

	if err := r.store.BackfillCityRegion(ctx, city.ID, region.ID, region.Title); err != nil {
		r.log.Warn("region backfill update failed", zap.Int64("city_id", city.ID), zap.Error(err))
		return
	}
	city.RegionID = region.ID
	city.RegionTitle = region.Title
}

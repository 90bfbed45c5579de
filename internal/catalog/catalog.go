// Package catalog caches the list of fuel products offered by the backend.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/rubiojr/gaswatch/pkg/api"
)

const (
	DefaultTTL = 12 * time.Hour

	fuelTypesKey = "fuel-types"
)

type Gateway interface {
	FuelTypes(ctx context.Context) ([]api.FuelType, error)
}

type Catalog struct {
	gw    Gateway
	cache *cache.Cache
	log   *slog.Logger
}

// New returns a catalog that keeps the fuel list for ttl.
func New(gw Gateway, ttl time.Duration, logger *slog.Logger) *Catalog {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Catalog{
		gw:    gw,
		cache: cache.New(ttl, 2*ttl),
		log:   logger,
	}
}

// FuelTypes returns the fuel catalog, fetching it when the cached copy is
// missing or expired.
func (c *Catalog) FuelTypes(ctx context.Context) ([]api.FuelType, error) {
	if cached, ok := c.cache.Get(fuelTypesKey); ok {
		return slices.Clone(cached.([]api.FuelType)), nil
	}

	types, err := c.gw.FuelTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("error fetching fuel types: %w", err)
	}
	c.log.Debug("Fuel catalog loaded", "count", len(types))

	c.cache.Set(fuelTypesKey, slices.Clone(types), cache.DefaultExpiration)
	return types, nil
}

// Lookup returns the fuel type with the given id.
func (c *Catalog) Lookup(ctx context.Context, id string) (api.FuelType, bool, error) {
	types, err := c.FuelTypes(ctx)
	if err != nil {
		return api.FuelType{}, false, err
	}
	for _, t := range types {
		if t.ID == id {
			return t, true, nil
		}
	}
	return api.FuelType{}, false, nil
}

// Invalidate drops the cached list.
func (c *Catalog) Invalidate() {
	c.cache.Delete(fuelTypesKey)
}

package location

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/muesli/gominatim"
	"github.com/patrickmn/go-cache"
)

const (
	DefaultNominatimServer = "https://nominatim.openstreetmap.org/"

	geocodeCacheExpiry  = 30 * time.Minute
	geocodeCacheCleanup = 90 * time.Minute
)

var ErrNotFound = errors.New("location not found")

// Place is a geocoded location.
type Place struct {
	Coordinate
	DisplayName string
}

// SearchFunc resolves a free-form query into candidate places.
type SearchFunc func(query string) ([]gominatim.SearchResult, error)

// Geocoder resolves place names through Nominatim and caches the answers.
type Geocoder struct {
	search SearchFunc
	cache  *cache.Cache
}

// NewGeocoder returns a Geocoder that queries server.
func NewGeocoder(server string) *Geocoder {
	if server == "" {
		server = DefaultNominatimServer
	}
	return NewGeocoderWithSearch(func(query string) ([]gominatim.SearchResult, error) {
		gominatim.SetServer(server)
		qry := gominatim.SearchQuery{
			Q: query,
		}
		return qry.Get()
	})
}

// NewGeocoderWithSearch returns a Geocoder backed by search.
func NewGeocoderWithSearch(search SearchFunc) *Geocoder {
	return &Geocoder{
		search: search,
		cache:  cache.New(geocodeCacheExpiry, geocodeCacheCleanup),
	}
}

// Geocode returns the best match for query.
func (g *Geocoder) Geocode(ctx context.Context, query string) (Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Place{}, fmt.Errorf("empty location query")
	}
	key := strings.ToLower(query)
	if cached, ok := g.cache.Get(key); ok {
		return cached.(Place), nil
	}

	if err := ctx.Err(); err != nil {
		return Place{}, err
	}

	results, err := g.search(query)
	if err != nil {
		return Place{}, fmt.Errorf("geocoding error: %w", err)
	}
	if len(results) == 0 {
		return Place{}, fmt.Errorf("%w: %s", ErrNotFound, query)
	}

	place, err := resultToPlace(results[0])
	if err != nil {
		return Place{}, err
	}
	g.cache.Set(key, place, cache.DefaultExpiration)
	return place, nil
}

func resultToPlace(result gominatim.SearchResult) (Place, error) {
	lat, err := strconv.ParseFloat(result.Lat, 64)
	if err != nil {
		return Place{}, fmt.Errorf("error parsing latitude: %w", err)
	}

	lng, err := strconv.ParseFloat(result.Lon, 64)
	if err != nil {
		return Place{}, fmt.Errorf("error parsing longitude: %w", err)
	}

	return Place{
		Coordinate:  Coordinate{Latitude: lat, Longitude: lng},
		DisplayName: result.DisplayName,
	}, nil
}

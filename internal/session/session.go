// Package session wires the client-side caches together.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/rubiojr/gaswatch/internal/catalog"
	"github.com/rubiojr/gaswatch/internal/detail"
	"github.com/rubiojr/gaswatch/internal/favorites"
	"github.com/rubiojr/gaswatch/internal/location"
	"github.com/rubiojr/gaswatch/internal/recent"
	"github.com/rubiojr/gaswatch/internal/search"
	"github.com/rubiojr/gaswatch/pkg/api"
)

// Gateway is the whole backend surface used by a session.
type Gateway interface {
	search.Gateway
	favorites.Gateway
	detail.Gateway
	catalog.Gateway
}

var _ Gateway = (*api.Client)(nil)

// Store persists client state and records searches.
type Store interface {
	Load(ctx context.Context, key string, v any) (bool, error)
	Save(ctx context.Context, key string, v any) error
	LogSearchLocation(ctx context.Context, latitude, longitude, radius float64) error
}

type Options struct {
	PageSize   int
	Filters    search.Filters
	CatalogTTL time.Duration
	Logger     *slog.Logger
}

// Session owns one instance of every component.
type Session struct {
	Location  *location.Signal
	Search    *search.Cache
	Favorites *favorites.Ledger
	Detail    *detail.Cache
	Recent    *recent.Ring
	Catalog   *catalog.Catalog

	log *slog.Logger
}

// New builds a session on top of gw. store may be nil, in which case
// nothing survives the process.
func New(gw Gateway, store Store, opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	var (
		persister search.Persister
		recorder  search.Recorder
		ringStore recent.Persister
	)
	if store != nil {
		persister, recorder, ringStore = store, store, store
	}

	s := &Session{
		Location: location.NewSignal(),
		Search: search.New(gw, search.Options{
			PageSize: opts.PageSize,
			Filters:  opts.Filters,
			Store:    persister,
			Recorder: recorder,
			Logger:   log.With("component", "search"),
		}),
		Favorites: favorites.New(gw, log.With("component", "favorites")),
		Recent:    recent.New(ringStore, log.With("component", "recent")),
		Catalog:   catalog.New(gw, opts.CatalogTTL, log.With("component", "catalog")),
		log:       log,
	}
	s.Detail = detail.New(gw, s.Recent, log.With("component", "detail"))

	s.Location.Subscribe(s.onLocation)
	s.Favorites.Subscribe(s.Detail)
	return s
}

func (s *Session) onLocation(ctx context.Context, c location.Coordinate) {
	if err := s.Search.SetLocation(ctx, c.Latitude, c.Longitude); err != nil {
		s.log.Warn("Search after location change failed", "location", c.String(), "error", err)
	}
}

// Restore loads the state saved by a previous run. The restored search
// location becomes the current location without triggering a search.
func (s *Session) Restore(ctx context.Context) error {
	if err := s.Search.Restore(ctx); err != nil {
		return err
	}
	if err := s.Recent.Restore(ctx); err != nil {
		return err
	}
	if loc := s.Search.State().Location; loc != nil {
		s.Location.Update(ctx, location.Coordinate{Latitude: loc.Latitude, Longitude: loc.Longitude})
	}
	return nil
}

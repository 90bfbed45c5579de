// Package search owns the paginated list of stations around the user.
//
// A search session is identified by every search parameter except the
// offset. Changing the location or any filter starts a new session: results
// are discarded and fetched again from offset zero. Each refresh takes a new
// generation number and a response is only applied while its generation is
// current, so a slow response for an old session can never overwrite or mix
// with the results of a newer one.
package search

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/rubiojr/gaswatch/pkg/api"
)

const (
	DefaultPageSize = 10
	DefaultRadius   = 5.0 // km

	locationKey = "search.location"
	filtersKey  = "search.filters"
)

// ErrNoLocation is reported by callers that require a location before
// searching. Refresh itself treats a missing location as a no-op.
var ErrNoLocation = errors.New("no location set")

// Gateway is the part of the backend the search cache needs.
type Gateway interface {
	NearbyStations(ctx context.Context, p api.NearbyParams) (*api.NearbyPage, error)
}

// Persister stores JSON-serializable values on the device.
type Persister interface {
	Load(ctx context.Context, key string, v any) (bool, error)
	Save(ctx context.Context, key string, v any) error
}

// Recorder is told about every search that produced results.
type Recorder interface {
	LogSearchLocation(ctx context.Context, latitude, longitude, radius float64) error
}

// Location is the search center.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Filters narrow a search.
type Filters struct {
	Radius  float64       `json:"radius"`
	Sort    api.SortOrder `json:"sort"`
	Product string        `json:"product"`
}

// FilterPatch carries the filters to change; nil fields are left alone.
type FilterPatch struct {
	Radius  *float64
	Sort    *api.SortOrder
	Product *string
}

func (f Filters) merge(p FilterPatch) Filters {
	if p.Radius != nil {
		f.Radius = *p.Radius
	}
	if p.Sort != nil {
		f.Sort = *p.Sort
	}
	if p.Product != nil {
		f.Product = *p.Product
	}
	return f
}

// DefaultFilters returns the filters used before the user changes anything.
func DefaultFilters() Filters {
	return Filters{Radius: DefaultRadius, Sort: api.SortByDistance}
}

// State is a snapshot of the search session.
type State struct {
	Location    *Location
	Filters     Filters
	Results     []api.Station
	Total       int
	Offset      int
	Loading     bool
	LoadingMore bool
	Err         error
}

// HasMore reports whether another page can be requested.
func (s State) HasMore() bool {
	return len(s.Results) < s.Total
}

// Options configures a Cache.
type Options struct {
	PageSize int
	Filters  Filters
	Store    Persister
	Recorder Recorder
	Logger   *slog.Logger
}

type Cache struct {
	gw       Gateway
	store    Persister
	recorder Recorder
	log      *slog.Logger
	pageSize int

	mu       sync.Mutex
	location *Location
	filters  Filters
	gen      uint64
	results  []api.Station
	total    int
	offset   int
	loading  bool
	more     bool
	err      error
}

func New(gw Gateway, opts Options) *Cache {
	c := &Cache{
		gw:       gw,
		store:    opts.Store,
		recorder: opts.Recorder,
		log:      opts.Logger,
		pageSize: opts.PageSize,
		filters:  opts.Filters,
	}
	if c.log == nil {
		c.log = slog.New(slog.DiscardHandler)
	}
	if c.pageSize <= 0 {
		c.pageSize = DefaultPageSize
	}
	if c.filters == (Filters{}) {
		c.filters = DefaultFilters()
	}
	return c
}

// Restore loads the location and filters persisted by a previous run. It
// does not fetch anything.
func (c *Cache) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	var loc Location
	hasLoc, err := c.store.Load(ctx, locationKey, &loc)
	if err != nil {
		return err
	}
	var filters Filters
	hasFilters, err := c.store.Load(ctx, filtersKey, &filters)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if hasLoc {
		c.location = &loc
	}
	if hasFilters {
		c.filters = filters
	}
	return nil
}

// State returns a copy of the current session state.
func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		Filters:     c.filters,
		Results:     slices.Clone(c.results),
		Total:       c.total,
		Offset:      c.offset,
		Loading:     c.loading,
		LoadingMore: c.more,
		Err:         c.err,
	}
	if c.location != nil {
		loc := *c.location
		st.Location = &loc
	}
	return st
}

// SetLocation moves the search center and refreshes. Setting the same
// location again does nothing.
func (c *Cache) SetLocation(ctx context.Context, lat, lng float64) error {
	loc := Location{Latitude: lat, Longitude: lng}

	c.mu.Lock()
	if c.location != nil && *c.location == loc {
		c.mu.Unlock()
		return nil
	}
	c.location = &loc
	c.gen++
	c.mu.Unlock()

	c.persist(ctx, locationKey, loc)
	return c.Refresh(ctx)
}

// SetFilters merges patch into the current filters and refreshes.
func (c *Cache) SetFilters(ctx context.Context, patch FilterPatch) error {
	c.mu.Lock()
	c.filters = c.filters.merge(patch)
	filters := c.filters
	c.gen++
	c.mu.Unlock()

	c.persist(ctx, filtersKey, filters)
	return c.Refresh(ctx)
}

// Refresh starts a new session from offset zero. It is a no-op until a
// location is known. A refresh failure clears the results and is returned;
// a response superseded by a newer refresh is dropped and nil is returned.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.location == nil {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	params := c.paramsLocked(0)
	c.loading = true
	c.more = false
	c.mu.Unlock()

	page, err := c.gw.NearbyStations(ctx, params)

	c.mu.Lock()
	if gen != c.gen {
		current := c.gen
		c.mu.Unlock()
		c.log.Debug("Discarding stale search response", "generation", gen, "current", current)
		return nil
	}
	c.loading = false

	if err != nil {
		c.results = nil
		c.total = 0
		c.offset = 0
		c.err = err
		c.mu.Unlock()
		c.log.Error("Nearby search failed", "latitude", params.Latitude, "longitude", params.Longitude, "error", err)
		return err
	}

	c.results = slices.Clone(page.Results)
	c.total = page.Total
	c.offset = len(c.results)
	c.err = nil
	c.mu.Unlock()
	c.log.Debug("Nearby search done", "results", len(page.Results), "total", page.Total)

	if c.recorder != nil {
		if err := c.recorder.LogSearchLocation(ctx, params.Latitude, params.Longitude, params.Radius); err != nil {
			c.log.Error("Failed to log search location", "error", err)
		}
	}
	return nil
}

// LoadMore appends the next page of the current session and returns how
// many stations were added. It does nothing while a request is in flight or
// when every result is already loaded. Failures are logged and otherwise
// ignored; calling LoadMore again retries.
func (c *Cache) LoadMore(ctx context.Context) int {
	c.mu.Lock()
	if c.location == nil || c.loading || c.more || len(c.results) >= c.total {
		c.mu.Unlock()
		return 0
	}
	gen := c.gen
	params := c.paramsLocked(c.offset)
	c.more = true
	c.mu.Unlock()

	page, err := c.gw.NearbyStations(ctx, params)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		c.log.Debug("Discarding stale page", "offset", params.Offset, "generation", gen, "current", c.gen)
		return 0
	}
	c.more = false

	if err != nil {
		c.log.Warn("Loading more stations failed", "offset", params.Offset, "error", err)
		return 0
	}

	c.results = append(c.results, page.Results...)
	c.offset += len(page.Results)
	c.total = page.Total
	if len(page.Results) == 0 && len(c.results) < c.total {
		// the backend has nothing past this point whatever total says
		c.total = len(c.results)
	}
	return len(page.Results)
}

// paramsLocked must be called with c.mu held.
func (c *Cache) paramsLocked(offset int) api.NearbyParams {
	return api.NearbyParams{
		Latitude:  c.location.Latitude,
		Longitude: c.location.Longitude,
		Radius:    c.filters.Radius,
		Sort:      c.filters.Sort,
		Product:   c.filters.Product,
		Limit:     c.pageSize,
		Offset:    offset,
	}
}

func (c *Cache) persist(ctx context.Context, key string, v any) {
	if c.store == nil {
		return
	}
	if err := c.store.Save(ctx, key, v); err != nil {
		c.log.Error("Failed to persist search state", "key", key, "error", err)
	}
}

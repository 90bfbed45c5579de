// Package detail holds the station the user is looking at and its price
// history.
package detail

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/rubiojr/gaswatch/pkg/api"
)

// Gateway is the part of the backend the detail cache needs.
type Gateway interface {
	StationDetails(ctx context.Context, id string) (*api.Station, error)
	PriceHistory(ctx context.Context, id string, p api.HistoryParams) ([]api.ProductPriceHistory, error)
}

// Recorder is told about every station the user opens.
type Recorder interface {
	Add(ctx context.Context, station api.Station)
}

// State is a snapshot of the detail cache.
type State struct {
	Selected *api.Station
	// History belongs to HistoryStationID, which may differ from the
	// selected station while a new one loads.
	History          []api.ProductPriceHistory
	HistoryStationID string
	DetailsLoading   bool
	HistoryLoading   bool

	// DetailsErr and HistoryErr are cleared only by a later success of the
	// same request kind.
	DetailsErr error
	HistoryErr error
}

type Cache struct {
	gw     Gateway
	recent Recorder
	log    *slog.Logger

	mu             sync.Mutex
	detailsGen     uint64
	historyGen     uint64
	selected       *api.Station
	history        []api.ProductPriceHistory
	historyStation string
	detailsLoading bool
	historyLoading bool
	detailsErr     error
	historyErr     error
}

// New returns an empty cache. recent may be nil.
func New(gw Gateway, recent Recorder, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{gw: gw, recent: recent, log: logger}
}

func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		History:          slices.Clone(c.history),
		HistoryStationID: c.historyStation,
		DetailsLoading:   c.detailsLoading,
		HistoryLoading:   c.historyLoading,
		DetailsErr:       c.detailsErr,
		HistoryErr:       c.historyErr,
	}
	if c.selected != nil {
		s := *c.selected
		s.Prices = slices.Clone(c.selected.Prices)
		st.Selected = &s
	}
	return st
}

// FetchStationDetails loads station id and makes it the selected one. The
// station is recorded as recently viewed. On failure the previously selected
// station is kept and the error is returned.
func (c *Cache) FetchStationDetails(ctx context.Context, id string) error {
	station, err := c.fetchDetails(ctx, id)
	if err != nil || station == nil {
		return err
	}
	if c.recent != nil {
		c.recent.Add(ctx, *station)
	}
	return nil
}

// fetchDetails returns the station only when it was applied.
func (c *Cache) fetchDetails(ctx context.Context, id string) (*api.Station, error) {
	c.mu.Lock()
	c.detailsGen++
	gen := c.detailsGen
	c.detailsLoading = true
	c.mu.Unlock()

	station, err := c.gw.StationDetails(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.detailsGen {
		c.log.Debug("Discarding stale station details", "station", id)
		return nil, nil
	}
	c.detailsLoading = false

	if err != nil {
		c.detailsErr = err
		c.log.Error("Fetching station details failed", "station", id, "error", err)
		return nil, err
	}

	c.selected = station
	c.detailsErr = nil
	return station, nil
}

// FetchPriceHistory loads the price history of station id. It runs
// independently of FetchStationDetails.
func (c *Cache) FetchPriceHistory(ctx context.Context, id string, p api.HistoryParams) error {
	c.mu.Lock()
	c.historyGen++
	gen := c.historyGen
	c.historyLoading = true
	c.mu.Unlock()

	history, err := c.gw.PriceHistory(ctx, id, p)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.historyGen {
		c.log.Debug("Discarding stale price history", "station", id)
		return nil
	}
	c.historyLoading = false

	if err != nil {
		c.historyErr = err
		c.log.Error("Fetching price history failed", "station", id, "error", err)
		return err
	}

	c.history = history
	c.historyStation = id
	c.historyErr = nil
	return nil
}

// ClearSelectedStation forgets the selected station and its history.
// Responses to requests made before the call are dropped.
func (c *Cache) ClearSelectedStation() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.detailsGen++
	c.historyGen++
	c.selected = nil
	c.history = nil
	c.historyStation = ""
	c.detailsLoading = false
	c.historyLoading = false
	c.detailsErr = nil
	c.historyErr = nil
}

// FavoritesConfirmed reloads the selected station when its favorites
// changed on the backend. Nothing happens while a details request is in
// flight, and the reload is dropped if the selection changes before it
// returns. It never touches the recently viewed ring or the error state.
func (c *Cache) FavoritesConfirmed(ctx context.Context, stationID string) {
	c.mu.Lock()
	if c.selected == nil || c.selected.ID != stationID || c.detailsLoading {
		c.mu.Unlock()
		return
	}
	gen := c.detailsGen
	c.mu.Unlock()

	station, err := c.gw.StationDetails(ctx, stationID)
	if err != nil {
		c.log.Warn("Reloading station after favorites change failed", "station", stationID, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.detailsGen || c.selected == nil || c.selected.ID != stationID {
		c.log.Debug("Discarding station reload, selection changed", "station", stationID)
		return
	}
	c.selected = station
}

// Package recent keeps the bounded, most-recent-first list of stations the
// user opened.
package recent

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/rubiojr/gaswatch/pkg/api"
)

const (
	// Capacity is the maximum number of stations kept in the ring.
	Capacity = 5

	storageKey = "recent.stations"
)

// Persister stores JSON-serializable values on the device.
type Persister interface {
	Load(ctx context.Context, key string, v any) (bool, error)
	Save(ctx context.Context, key string, v any) error
}

type Ring struct {
	mu       sync.Mutex
	stations []api.Station
	store    Persister
	log      *slog.Logger
}

// New returns an empty ring. store may be nil, in which case the ring lives
// in memory only.
func New(store Persister, logger *slog.Logger) *Ring {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Ring{store: store, log: logger}
}

// Push returns a copy of stations with station moved (or inserted) at the
// front, truncated to Capacity.
func Push(stations []api.Station, station api.Station) []api.Station {
	out := make([]api.Station, 0, Capacity)
	out = append(out, station)
	for _, s := range stations {
		if s.ID == station.ID {
			continue
		}
		if len(out) == Capacity {
			break
		}
		out = append(out, s)
	}
	return out
}

// Add records station as the most recently viewed one.
func (r *Ring) Add(ctx context.Context, station api.Station) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stations = Push(r.stations, station)
	r.persist(ctx, r.stations)
}

// List returns the stations, most recent first.
func (r *Ring) List() []api.Station {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.stations)
}

// Clear empties the ring.
func (r *Ring) Clear(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stations = nil
	r.persist(ctx, []api.Station{})
}

// Restore loads the ring saved by a previous run.
func (r *Ring) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	var stations []api.Station
	found, err := r.store.Load(ctx, storageKey, &stations)
	if err != nil || !found {
		return err
	}

	// re-apply the invariants in case the blob was written by hand
	var ring []api.Station
	for i := len(stations) - 1; i >= 0; i-- {
		ring = Push(ring, stations[i])
	}

	r.mu.Lock()
	r.stations = ring
	r.mu.Unlock()
	return nil
}

// persist must be called with r.mu held.
func (r *Ring) persist(ctx context.Context, stations []api.Station) {
	if r.store == nil {
		return
	}
	if err := r.store.Save(ctx, storageKey, stations); err != nil {
		r.log.Error("Failed to persist recently viewed stations", "error", err)
	}
}

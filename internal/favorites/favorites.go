// Package favorites owns the user's favorited (station, product) pairs and
// applies bulk changes optimistically.
//
// The ledger keeps the last list confirmed by the backend plus one overlay
// per bulk mutation that has not been reconciled yet. The visible entries
// and the key index are derived from both on every write, so they cannot
// drift apart. Rolling a mutation back means dropping its overlay.
package favorites

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rubiojr/gaswatch/pkg/api"
)

// Gateway is the part of the backend the ledger needs.
type Gateway interface {
	Favorites(ctx context.Context) ([]api.FavoriteEntry, error)
	StationFavorites(ctx context.Context, stationID string) ([]string, error)
	AddFavoritesBulk(ctx context.Context, stationID string, productIDs []string) error
	RemoveFavoritesBulk(ctx context.Context, stationID string, productIDs []string) error
}

// Observer is notified after a bulk mutation has been confirmed by the
// backend. Each call runs on its own goroutine with a context that is not
// canceled with the caller's.
type Observer interface {
	FavoritesConfirmed(ctx context.Context, stationID string)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, stationID string)

func (f ObserverFunc) FavoritesConfirmed(ctx context.Context, stationID string) {
	f(ctx, stationID)
}

// Key identifies a favorite for membership tests.
type Key string

// NewKey returns the key of the (stationID, productID) pair.
func NewKey(stationID, productID string) Key {
	return Key(fmt.Sprintf("%s-%s", stationID, productID))
}

// EntryKey returns the key of e.
func EntryKey(e api.FavoriteEntry) Key {
	return NewKey(e.GasStationID, e.ProductID)
}

// BulkStatus tells how a bulk update ended.
type BulkStatus int

const (
	// BulkSkipped means there was nothing to do and no request was made.
	BulkSkipped BulkStatus = iota
	// BulkCommitted means the backend accepted every change.
	BulkCommitted
	// BulkRolledBack means a request failed and the optimistic changes
	// were reverted.
	BulkRolledBack
)

func (s BulkStatus) String() string {
	switch s {
	case BulkSkipped:
		return "skipped"
	case BulkCommitted:
		return "committed"
	case BulkRolledBack:
		return "rolled back"
	default:
		return fmt.Sprintf("BulkStatus(%d)", int(s))
	}
}

// BulkResult is the outcome of UpdateFavoritesInBulk.
type BulkResult struct {
	Status BulkStatus
	// Err is the request error that caused a rollback.
	Err error
	// ResyncErr is set when the mutation was committed but reloading the
	// favorites afterwards failed.
	ResyncErr error
}

// State is a snapshot of the ledger.
type State struct {
	Favorites []api.FavoriteEntry
	IDs       map[Key]struct{}
	Loading   bool
	Err       error

	// StationID and StationProducts hold the favorites of the station whose
	// management view is open.
	StationID       string
	StationProducts map[string]struct{}
}

type overlay struct {
	stationID string
	add       []Key
	remove    []Key

	settled bool
	// fetches started after this generation include the mutation
	settledGen uint64
}

type Ledger struct {
	gw  Gateway
	log *slog.Logger

	mu        sync.Mutex
	observers []Observer
	confirmed []api.FavoriteEntry
	overlays  []*overlay
	favorites []api.FavoriteEntry
	ids       map[Key]struct{}
	inflight  int
	err       error

	fetchGen   uint64
	appliedGen uint64

	stationGen      uint64
	stationID       string
	stationProducts map[string]struct{}
}

func New(gw Gateway, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	l := &Ledger{gw: gw, log: logger}
	l.deriveLocked()
	return l
}

// Subscribe registers o to be told about confirmed mutations.
func (l *Ledger) Subscribe(o Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, o)
}

// State returns a copy of the ledger state, optimistic changes included.
func (l *Ledger) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := State{
		Favorites: slices.Clone(l.favorites),
		IDs:       maps.Clone(l.ids),
		Loading:   l.inflight > 0,
		Err:       l.err,
		StationID: l.stationID,
	}
	if l.stationProducts != nil {
		st.StationProducts = maps.Clone(l.stationProducts)
	}
	return st
}

// IsFavorite reports whether productID is favorited at stationID.
func (l *Ledger) IsFavorite(stationID, productID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.ids[NewKey(stationID, productID)]
	return ok
}

// FetchFavorites replaces the ledger with the backend's list.
func (l *Ledger) FetchFavorites(ctx context.Context) error {
	l.mu.Lock()
	l.fetchGen++
	gen := l.fetchGen
	l.inflight++
	l.mu.Unlock()

	entries, err := l.gw.Favorites(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.inflight--

	if gen < l.appliedGen {
		l.log.Debug("Discarding stale favorites response", "generation", gen, "applied", l.appliedGen, "error", err)
		return nil
	}
	if err != nil {
		l.err = err
		l.log.Error("Fetching favorites failed", "error", err)
		return err
	}
	l.appliedGen = gen
	l.confirmed = slices.Clone(entries)
	l.err = nil

	kept := l.overlays[:0]
	for _, o := range l.overlays {
		if o.settled && gen > o.settledGen {
			continue
		}
		kept = append(kept, o)
	}
	clear(l.overlays[len(kept):])
	l.overlays = kept

	l.deriveLocked()
	return nil
}

// FetchFavoritesByStation loads the favorited products of one station for
// a per-station management view. The global ledger is not touched.
func (l *Ledger) FetchFavoritesByStation(ctx context.Context, stationID string) error {
	l.mu.Lock()
	l.stationGen++
	gen := l.stationGen
	l.inflight++
	l.mu.Unlock()

	products, err := l.gw.StationFavorites(ctx, stationID)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.inflight--

	if err != nil {
		l.err = err
		l.log.Error("Fetching station favorites failed", "station", stationID, "error", err)
		return err
	}
	if gen != l.stationGen {
		return nil
	}

	set := make(map[string]struct{}, len(products))
	for _, p := range products {
		set[p] = struct{}{}
	}
	l.stationID = stationID
	l.stationProducts = set
	l.err = nil
	return nil
}

// ClearStationFavorites forgets the per-station selection.
func (l *Ledger) ClearStationFavorites() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stationGen++
	l.stationID = ""
	l.stationProducts = nil
}

// UpdateFavoritesInBulk favorites add and unfavorites remove at stationID.
//
// The change is visible to readers as soon as the call starts. Both requests
// run concurrently; when either fails the optimistic change is reverted and
// the error returned. On success the ledger is reloaded from the backend and
// observers are notified, each on its own goroutine. Callers must not issue a second update for the
// same station while one is in flight.
func (l *Ledger) UpdateFavoritesInBulk(ctx context.Context, stationID string, add, remove []string) (BulkResult, error) {
	add, remove = normalize(add, remove)
	if stationID == "" || (len(add) == 0 && len(remove) == 0) {
		return BulkResult{Status: BulkSkipped}, nil
	}

	o := &overlay{stationID: stationID}
	for _, p := range add {
		o.add = append(o.add, NewKey(stationID, p))
	}
	for _, p := range remove {
		o.remove = append(o.remove, NewKey(stationID, p))
	}

	l.mu.Lock()
	l.overlays = append(l.overlays, o)
	l.inflight++
	l.err = nil
	l.deriveLocked()
	l.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	if len(add) > 0 {
		g.Go(func() error {
			return l.gw.AddFavoritesBulk(gctx, stationID, add)
		})
	}
	if len(remove) > 0 {
		g.Go(func() error {
			return l.gw.RemoveFavoritesBulk(gctx, stationID, remove)
		})
	}

	if err := g.Wait(); err != nil {
		l.mu.Lock()
		l.dropOverlayLocked(o)
		l.inflight--
		l.err = err
		l.deriveLocked()
		l.mu.Unlock()

		l.log.Error("Bulk favorites update failed, rolled back",
			"station", stationID, "add", len(add), "remove", len(remove), "error", err)
		return BulkResult{Status: BulkRolledBack, Err: err}, err
	}

	l.mu.Lock()
	o.settled = true
	o.settledGen = l.fetchGen
	observers := slices.Clone(l.observers)
	l.mu.Unlock()

	res := BulkResult{Status: BulkCommitted}
	if err := l.FetchFavorites(ctx); err != nil {
		res.ResyncErr = err
	}

	l.mu.Lock()
	l.inflight--
	l.mu.Unlock()

	// observers outlive the caller's context
	octx := context.WithoutCancel(ctx)
	for _, obs := range observers {
		go obs.FavoritesConfirmed(octx, stationID)
	}
	return res, nil
}

// dropOverlayLocked must be called with l.mu held.
func (l *Ledger) dropOverlayLocked(o *overlay) {
	l.overlays = slices.DeleteFunc(l.overlays, func(x *overlay) bool { return x == o })
}

// deriveLocked rebuilds the visible entries and the key index from the
// confirmed list and the pending overlays. Must be called with l.mu held.
func (l *Ledger) deriveLocked() {
	hidden := map[Key]struct{}{}
	added := map[Key]struct{}{}
	for _, o := range l.overlays {
		for _, k := range o.remove {
			hidden[k] = struct{}{}
			delete(added, k)
		}
		for _, k := range o.add {
			added[k] = struct{}{}
			delete(hidden, k)
		}
	}

	favorites := make([]api.FavoriteEntry, 0, len(l.confirmed))
	ids := make(map[Key]struct{}, len(l.confirmed)+len(added))
	for _, e := range l.confirmed {
		k := EntryKey(e)
		if _, gone := hidden[k]; gone {
			continue
		}
		if _, dup := ids[k]; dup {
			continue
		}
		ids[k] = struct{}{}
		favorites = append(favorites, e)
	}
	for k := range added {
		ids[k] = struct{}{}
	}

	l.favorites = favorites
	l.ids = ids
}

// normalize drops empty and repeated ids, and ids present in both lists.
func normalize(add, remove []string) ([]string, []string) {
	inAdd := map[string]bool{}
	for _, p := range add {
		inAdd[p] = true
	}
	inRemove := map[string]bool{}
	for _, p := range remove {
		inRemove[p] = true
	}

	filter := func(ids []string, other map[string]bool) []string {
		var out []string
		seen := map[string]bool{}
		for _, p := range ids {
			if p == "" || seen[p] || other[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
		return out
	}
	return filter(add, inRemove), filter(remove, inAdd)
}

// Diff returns the products to add and to remove to go from the initial
// selection to the selected one.
func Diff(initial, selected []string) (add, remove []string) {
	was := make(map[string]bool, len(initial))
	for _, p := range initial {
		was[p] = true
	}
	is := make(map[string]bool, len(selected))
	for _, p := range selected {
		is[p] = true
	}

	for _, p := range selected {
		if !was[p] && !slices.Contains(add, p) {
			add = append(add, p)
		}
	}
	for _, p := range initial {
		if !is[p] && !slices.Contains(remove, p) {
			remove = append(remove, p)
		}
	}
	return add, remove
}

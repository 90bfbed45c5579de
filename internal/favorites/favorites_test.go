package favorites

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rubiojr/gaswatch/pkg/api"
)

// fakeBackend keeps favorites in memory and can be told to fail.
type fakeBackend struct {
	mu        sync.Mutex
	entries   []api.FavoriteEntry
	failAdd   error
	failRm    error
	failFetch error
	fetches   int
	mutations int

	// addGate, when set, blocks AddFavoritesBulk until it is closed
	addGate chan struct{}
	addSeen chan struct{}

	// fetchGate, when set, blocks the next Favorites call until it is closed
	fetchGate chan struct{}
	fetchSeen chan struct{}
}

func (b *fakeBackend) Favorites(context.Context) ([]api.FavoriteEntry, error) {
	b.mu.Lock()
	b.fetches++
	gate, seen := b.fetchGate, b.fetchSeen
	b.fetchGate, b.fetchSeen = nil, nil
	b.mu.Unlock()
	if gate != nil {
		close(seen)
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failFetch != nil {
		return nil, b.failFetch
	}
	return slices.Clone(b.entries), nil
}

func (b *fakeBackend) StationFavorites(_ context.Context, stationID string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failFetch != nil {
		return nil, b.failFetch
	}
	var out []string
	for _, e := range b.entries {
		if e.GasStationID == stationID {
			out = append(out, e.ProductID)
		}
	}
	return out, nil
}

func (b *fakeBackend) AddFavoritesBulk(_ context.Context, stationID string, products []string) error {
	if b.addSeen != nil {
		close(b.addSeen)
	}
	if b.addGate != nil {
		<-b.addGate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.mutations++
	if b.failAdd != nil {
		return b.failAdd
	}
	for _, p := range products {
		if !b.hasLocked(stationID, p) {
			b.entries = append(b.entries, api.FavoriteEntry{GasStationID: stationID, ProductID: p})
		}
	}
	return nil
}

func (b *fakeBackend) RemoveFavoritesBulk(_ context.Context, stationID string, products []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mutations++
	if b.failRm != nil {
		return b.failRm
	}
	b.entries = slices.DeleteFunc(b.entries, func(e api.FavoriteEntry) bool {
		return e.GasStationID == stationID && slices.Contains(products, e.ProductID)
	})
	return nil
}

func (b *fakeBackend) hasLocked(stationID, productID string) bool {
	for _, e := range b.entries {
		if e.GasStationID == stationID && e.ProductID == productID {
			return true
		}
	}
	return false
}

func fav(station, product string) api.FavoriteEntry {
	return api.FavoriteEntry{GasStationID: station, ProductID: product}
}

func keysOf(entries []api.FavoriteEntry) map[Key]struct{} {
	out := map[Key]struct{}{}
	for _, e := range entries {
		out[EntryKey(e)] = struct{}{}
	}
	return out
}

func TestNewKey(t *testing.T) {
	require.Equal(t, Key("1234-1"), NewKey("1234", "1"))
	require.Equal(t, NewKey("S1", "P2"), EntryKey(fav("S1", "P2")))
}

func TestFetchFavorites(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{entries: []api.FavoriteEntry{fav("S1", "P1"), fav("S2", "P3")}}
	l := New(b, nil)

	require.NoError(t, l.FetchFavorites(ctx))
	st := l.State()
	require.Len(t, st.Favorites, 2)
	require.Equal(t, keysOf(st.Favorites), st.IDs)
	require.False(t, st.Loading)
	require.NoError(t, st.Err)

	require.True(t, l.IsFavorite("S1", "P1"))
	require.False(t, l.IsFavorite("S1", "P3"))
}

func TestFetchFavorites_DropsDuplicates(t *testing.T) {
	b := &fakeBackend{entries: []api.FavoriteEntry{fav("S1", "P1"), fav("S1", "P1"), fav("S1", "P2")}}
	l := New(b, nil)

	require.NoError(t, l.FetchFavorites(context.Background()))
	require.Equal(t, []api.FavoriteEntry{fav("S1", "P1"), fav("S1", "P2")}, l.State().Favorites)
}

func TestFetchFavorites_FailureKeepsList(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{entries: []api.FavoriteEntry{fav("S1", "P1")}}
	l := New(b, nil)
	require.NoError(t, l.FetchFavorites(ctx))

	b.failFetch = errors.New("offline")
	require.Error(t, l.FetchFavorites(ctx))

	st := l.State()
	require.Len(t, st.Favorites, 1)
	require.EqualError(t, st.Err, "offline")
}

func TestUpdateFavoritesInBulk_Commit(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{entries: []api.FavoriteEntry{fav("S1", "P1")}}
	l := New(b, nil)
	require.NoError(t, l.FetchFavorites(ctx))

	confirmed := make(chan string, 1)
	l.Subscribe(ObserverFunc(func(_ context.Context, stationID string) {
		confirmed <- stationID
	}))

	res, err := l.UpdateFavoritesInBulk(ctx, "S1", []string{"P2", "P3"}, []string{"P1"})
	require.NoError(t, err)
	require.Equal(t, BulkCommitted, res.Status)
	require.NoError(t, res.ResyncErr)

	require.False(t, l.IsFavorite("S1", "P1"))
	require.True(t, l.IsFavorite("S1", "P2"))
	require.True(t, l.IsFavorite("S1", "P3"))
	require.Equal(t, "S1", <-confirmed)

	st := l.State()
	require.Equal(t, keysOf(st.Favorites), st.IDs)
	require.False(t, st.Loading)
}

func TestUpdateFavoritesInBulk_RollbackRestoresState(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{entries: []api.FavoriteEntry{fav("S1", "P1"), fav("S2", "P1")}}
	l := New(b, nil)
	require.NoError(t, l.FetchFavorites(ctx))
	before := l.State()

	b.failRm = errors.New("server said no")
	notified := false
	l.Subscribe(ObserverFunc(func(context.Context, string) { notified = true }))

	res, err := l.UpdateFavoritesInBulk(ctx, "S1", []string{"P2"}, []string{"P1"})
	require.Error(t, err)
	require.Equal(t, BulkRolledBack, res.Status)
	require.ErrorIs(t, res.Err, b.failRm)
	require.False(t, notified)

	after := l.State()
	require.Equal(t, before.Favorites, after.Favorites)
	require.Equal(t, before.IDs, after.IDs)
	require.False(t, after.Loading)
	require.Error(t, after.Err)
}

func TestUpdateFavoritesInBulk_OfflineAdd(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{failAdd: errors.New("network unreachable")}
	l := New(b, nil)

	_, err := l.UpdateFavoritesInBulk(ctx, "S1", []string{"P1", "P2"}, nil)
	require.Error(t, err)

	require.False(t, l.IsFavorite("S1", "P1"))
	require.False(t, l.IsFavorite("S1", "P2"))
	require.Error(t, l.State().Err)
	require.Empty(t, l.State().IDs)
}

func TestUpdateFavoritesInBulk_OptimisticWhileInFlight(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{
		entries: []api.FavoriteEntry{fav("S1", "P1")},
		addGate: make(chan struct{}),
		addSeen: make(chan struct{}),
	}
	l := New(b, nil)
	require.NoError(t, l.FetchFavorites(ctx))

	done := make(chan BulkResult)
	go func() {
		res, _ := l.UpdateFavoritesInBulk(ctx, "S1", []string{"P2"}, []string{"P1"})
		done <- res
	}()
	<-b.addSeen

	require.True(t, l.IsFavorite("S1", "P2"))
	require.False(t, l.IsFavorite("S1", "P1"))
	st := l.State()
	require.True(t, st.Loading)
	require.Empty(t, st.Favorites)

	close(b.addGate)
	res := <-done
	require.Equal(t, BulkCommitted, res.Status)
	require.True(t, l.IsFavorite("S1", "P2"))
	require.Equal(t, []api.FavoriteEntry{fav("S1", "P2")}, l.State().Favorites)
}

func TestUpdateFavoritesInBulk_ConcurrentStations(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{
		addGate: make(chan struct{}),
		addSeen: make(chan struct{}),
	}
	l := New(b, nil)

	slow := make(chan error)
	go func() {
		_, err := l.UpdateFavoritesInBulk(ctx, "S1", []string{"P1"}, nil)
		slow <- err
	}()
	<-b.addSeen

	// S2 runs while S1 is still waiting on the backend
	b.mu.Lock()
	b.failRm = errors.New("rejected")
	b.mu.Unlock()
	_, err := l.UpdateFavoritesInBulk(ctx, "S2", nil, []string{"P9"})
	require.Error(t, err)

	require.True(t, l.IsFavorite("S1", "P1"))

	close(b.addGate)
	require.NoError(t, <-slow)
	require.True(t, l.IsFavorite("S1", "P1"))
	require.False(t, l.IsFavorite("S2", "P9"))
}

func TestUpdateFavoritesInBulk_ResyncFailureKeepsChange(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{}
	l := New(b, nil)

	b.failFetch = errors.New("timeout")
	res, err := l.UpdateFavoritesInBulk(ctx, "S1", []string{"P1"}, nil)
	require.NoError(t, err)
	require.Equal(t, BulkCommitted, res.Status)
	require.Error(t, res.ResyncErr)
	require.True(t, l.IsFavorite("S1", "P1"))

	b.failFetch = nil
	require.NoError(t, l.FetchFavorites(ctx))
	st := l.State()
	require.Equal(t, []api.FavoriteEntry{fav("S1", "P1")}, st.Favorites)
	require.Equal(t, keysOf(st.Favorites), st.IDs)
}

func TestUpdateFavoritesInBulk_Skips(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{entries: []api.FavoriteEntry{fav("S1", "P1")}}
	l := New(b, nil)
	require.NoError(t, l.FetchFavorites(ctx))
	before := l.State()

	tests := []struct {
		name    string
		station string
		add     []string
		remove  []string
	}{
		{"empty lists", "S1", nil, nil},
		{"no station", "", []string{"P1"}, nil},
		{"blank ids", "S1", []string{""}, []string{""}},
		{"same id both ways", "S1", []string{"P2"}, []string{"P2"}},
	}

	for _, test := range tests {
		res, err := l.UpdateFavoritesInBulk(ctx, test.station, test.add, test.remove)
		if err != nil {
			t.Errorf("%s: unexpected error %v", test.name, err)
		}
		if res.Status != BulkSkipped {
			t.Errorf("%s: status = %v, want %v", test.name, res.Status, BulkSkipped)
		}
	}

	require.Zero(t, b.mutations)
	require.Equal(t, before, l.State())
}

func TestUpdateFavoritesInBulk_RepeatedAddIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{}
	l := New(b, nil)

	for range 2 {
		_, err := l.UpdateFavoritesInBulk(ctx, "S1", []string{"P1", "P1"}, nil)
		require.NoError(t, err)
	}

	st := l.State()
	require.Len(t, st.Favorites, 1)
	require.Len(t, st.IDs, 1)
}

func TestFetchFavoritesByStation(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{entries: []api.FavoriteEntry{fav("S1", "P1"), fav("S1", "P4"), fav("S2", "P1")}}
	l := New(b, nil)

	require.NoError(t, l.FetchFavoritesByStation(ctx, "S1"))
	st := l.State()
	require.Equal(t, "S1", st.StationID)
	require.Equal(t, map[string]struct{}{"P1": {}, "P4": {}}, st.StationProducts)
	require.Empty(t, st.Favorites)

	l.ClearStationFavorites()
	st = l.State()
	require.Empty(t, st.StationID)
	require.Nil(t, st.StationProducts)
}

func TestDiff(t *testing.T) {
	tests := []struct {
		initial, selected []string
		add, remove       []string
	}{
		{nil, nil, nil, nil},
		{[]string{"1"}, []string{"1"}, nil, nil},
		{nil, []string{"1", "3"}, []string{"1", "3"}, nil},
		{[]string{"1", "3"}, nil, nil, []string{"1", "3"}},
		{[]string{"1", "2"}, []string{"2", "4"}, []string{"4"}, []string{"1"}},
		{[]string{"1"}, []string{"4", "4"}, []string{"4"}, []string{"1"}},
	}

	for _, test := range tests {
		add, remove := Diff(test.initial, test.selected)
		if !slices.Equal(add, test.add) || !slices.Equal(remove, test.remove) {
			t.Errorf("Diff(%v, %v) = %v, %v, want %v, %v",
				test.initial, test.selected, add, remove, test.add, test.remove)
		}
	}
}

func TestUpdateFavoritesInBulk_ObserversDoNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := New(&fakeBackend{}, nil)

	release := make(chan struct{})
	observed := make(chan error, 1)
	l.Subscribe(ObserverFunc(func(octx context.Context, _ string) {
		<-release
		observed <- octx.Err()
	}))

	res, err := l.UpdateFavoritesInBulk(ctx, "S1", []string{"P1"}, nil)
	require.NoError(t, err)
	require.Equal(t, BulkCommitted, res.Status)

	cancel()
	close(release)
	require.NoError(t, <-observed)
}

func TestFetchFavorites_StaleFailureIgnored(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{
		entries:   []api.FavoriteEntry{fav("S1", "P1")},
		fetchGate: make(chan struct{}),
		fetchSeen: make(chan struct{}),
	}
	l := New(b, nil)
	gate, seen := b.fetchGate, b.fetchSeen

	done := make(chan error)
	go func() { done <- l.FetchFavorites(ctx) }()
	<-seen

	require.NoError(t, l.FetchFavorites(ctx))

	b.mu.Lock()
	b.failFetch = errors.New("offline")
	b.mu.Unlock()
	close(gate)
	require.NoError(t, <-done)

	st := l.State()
	require.NoError(t, st.Err)
	require.True(t, l.IsFavorite("S1", "P1"))
	require.False(t, st.Loading)
}

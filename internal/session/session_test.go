package session

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rubiojr/gaswatch/internal/devserver"
	"github.com/rubiojr/gaswatch/internal/favorites"
	"github.com/rubiojr/gaswatch/internal/location"
	"github.com/rubiojr/gaswatch/internal/search"
	"github.com/rubiojr/gaswatch/internal/storage"
	"github.com/rubiojr/gaswatch/pkg/api"
)

var sol = location.Coordinate{Latitude: 40.4169, Longitude: -3.7035}

func newBackend(t *testing.T) *api.Client {
	t.Helper()
	data := devserver.NewDataset(devserver.SeedOptions{
		Latitude:  sol.Latitude,
		Longitude: sol.Longitude,
		Stations:  37,
		SpreadKm:  4,
	})
	srv := httptest.NewServer(devserver.New(data, devserver.Options{}).Handler())
	t.Cleanup(srv.Close)
	return api.NewClient(srv.URL)
}

func newStore(t *testing.T, path string) *storage.Storage {
	t.Helper()
	st, err := storage.NewStorage(context.Background(), path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSession_LocationDrivesSearch(t *testing.T) {
	ctx := context.Background()
	s := New(newBackend(t), nil, Options{})

	require.True(t, s.Location.Update(ctx, sol))

	st := s.Search.State()
	require.Equal(t, 37, st.Total)
	require.Len(t, st.Results, search.DefaultPageSize)

	require.Equal(t, 10, s.Search.LoadMore(ctx))
	require.Equal(t, 10, s.Search.LoadMore(ctx))
	require.Equal(t, 7, s.Search.LoadMore(ctx))
	require.Zero(t, s.Search.LoadMore(ctx))

	st = s.Search.State()
	require.Len(t, st.Results, 37)
	require.False(t, st.HasMore())
}

func TestSession_FavoritesReachDetail(t *testing.T) {
	ctx := context.Background()
	s := New(newBackend(t), nil, Options{})

	require.NoError(t, s.Detail.FetchStationDetails(ctx, "1000"))
	require.NoError(t, s.Favorites.FetchFavoritesByStation(ctx, "1000"))

	var initial []string
	for p := range s.Favorites.State().StationProducts {
		initial = append(initial, p)
	}
	add, remove := favorites.Diff(initial, []string{"1", "4"})
	res, err := s.Favorites.UpdateFavoritesInBulk(ctx, "1000", add, remove)
	require.NoError(t, err)
	require.Equal(t, favorites.BulkCommitted, res.Status)

	require.True(t, s.Favorites.IsFavorite("1000", "1"))
	require.True(t, s.Favorites.IsFavorite("1000", "4"))
	require.Len(t, s.Favorites.State().Favorites, 2)

	require.Equal(t, "1000", s.Detail.State().Selected.ID)
	require.Len(t, s.Recent.List(), 1)
}

func TestSession_RejectedFavoriteRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New(newBackend(t), nil, Options{})

	_, err := s.Favorites.UpdateFavoritesInBulk(ctx, "1000", []string{"1", "999"}, nil)
	require.Error(t, err)
	require.False(t, s.Favorites.IsFavorite("1000", "1"))
	require.False(t, s.Favorites.IsFavorite("1000", "999"))
	require.Error(t, s.Favorites.State().Err)
}

func TestSession_Restore(t *testing.T) {
	ctx := context.Background()
	gw := newBackend(t)
	path := filepath.Join(t.TempDir(), "gaswatch.db")

	store := newStore(t, path)
	s := New(gw, store, Options{})
	s.Location.Update(ctx, sol)
	require.NoError(t, s.Search.SetFilters(ctx, search.FilterPatch{Sort: ptr(api.SortByPrice)}))
	require.NoError(t, s.Detail.FetchStationDetails(ctx, "1001"))
	require.NoError(t, s.Detail.FetchStationDetails(ctx, "1002"))

	logs, err := store.GetLocationLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.NoError(t, store.Close())

	restored := New(gw, newStore(t, path), Options{})
	require.NoError(t, restored.Restore(ctx))

	cur, ok := restored.Location.Current()
	require.True(t, ok)
	require.Equal(t, sol, cur)

	st := restored.Search.State()
	require.Equal(t, api.SortByPrice, st.Filters.Sort)
	// restoring does not search
	require.Empty(t, st.Results)

	ids := []string{}
	for _, station := range restored.Recent.List() {
		ids = append(ids, station.ID)
	}
	require.Equal(t, []string{"1002", "1001"}, ids)
}

func ptr[T any](v T) *T {
	return &v
}

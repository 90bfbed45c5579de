package location

import (
	"context"
	"errors"
	"testing"

	"github.com/muesli/gominatim"
	"github.com/stretchr/testify/require"
)

func TestSignal_NotifiesOnChangeOnly(t *testing.T) {
	ctx := context.Background()
	s := NewSignal()

	var seen []Coordinate
	s.Subscribe(func(_ context.Context, c Coordinate) {
		seen = append(seen, c)
	})

	_, ok := s.Current()
	require.False(t, ok)

	madrid := Coordinate{Latitude: 40.4168, Longitude: -3.7038}
	require.True(t, s.Update(ctx, madrid))
	require.False(t, s.Update(ctx, madrid))

	bcn := Coordinate{Latitude: 41.3851, Longitude: 2.1734}
	require.True(t, s.Update(ctx, bcn))

	require.Equal(t, []Coordinate{madrid, bcn}, seen)
	cur, ok := s.Current()
	require.True(t, ok)
	require.Equal(t, bcn, cur)
}

func TestCoordinate_Valid(t *testing.T) {
	tests := []struct {
		c    Coordinate
		want bool
	}{
		{Coordinate{40.4, -3.7}, true},
		{Coordinate{-90, 180}, true},
		{Coordinate{90.1, 0}, false},
		{Coordinate{0, -180.5}, false},
	}

	for _, test := range tests {
		if got := test.c.Valid(); got != test.want {
			t.Errorf("%v.Valid() = %v, want %v", test.c, got, test.want)
		}
	}
}

func TestGeocoder_CachesResults(t *testing.T) {
	calls := 0
	g := NewGeocoderWithSearch(func(query string) ([]gominatim.SearchResult, error) {
		calls++
		return []gominatim.SearchResult{
			{Lat: "41.4218", Lon: "2.1186", DisplayName: "Tibidabo, Barcelona"},
			{Lat: "0", Lon: "0", DisplayName: "elsewhere"},
		}, nil
	})

	place, err := g.Geocode(context.Background(), "Tibidabo, Barcelona")
	require.NoError(t, err)
	require.Equal(t, "Tibidabo, Barcelona", place.DisplayName)
	require.Equal(t, 41.4218, place.Latitude)
	require.Equal(t, 2.1186, place.Longitude)

	_, err = g.Geocode(context.Background(), "  tibidabo, barcelona ")
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestGeocoder_Errors(t *testing.T) {
	ctx := context.Background()

	empty := NewGeocoderWithSearch(func(string) ([]gominatim.SearchResult, error) {
		return nil, nil
	})
	_, err := empty.Geocode(ctx, "nowhere")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = empty.Geocode(ctx, "   ")
	require.Error(t, err)

	failing := NewGeocoderWithSearch(func(string) ([]gominatim.SearchResult, error) {
		return nil, errors.New("boom")
	})
	_, err = failing.Geocode(ctx, "Madrid")
	require.ErrorContains(t, err, "geocoding error")

	bad := NewGeocoderWithSearch(func(string) ([]gominatim.SearchResult, error) {
		return []gominatim.SearchResult{{Lat: "north", Lon: "1"}}, nil
	})
	_, err = bad.Geocode(ctx, "Madrid")
	require.ErrorContains(t, err, "error parsing latitude")
}

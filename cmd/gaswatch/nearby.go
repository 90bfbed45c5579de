package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/rubiojr/gaswatch/internal/location"
	"github.com/rubiojr/gaswatch/internal/search"
	"github.com/rubiojr/gaswatch/pkg/api"
)

const metersPerKm = 1000.0

func nearbyCommand() *cli.Command {
	return &cli.Command{
		Name:  "nearby",
		Usage: "List nearby gas stations",
		Description: "Searches around --lat/--long or a --location name. Without either, " +
			"the last searched location is used.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "location",
				Usage: "Location to search",
			},
			&cli.Float64Flag{
				Name:  "lat",
				Usage: "Latitude of the location",
			},
			&cli.Float64Flag{
				Name:  "long",
				Usage: "Longitude of the location",
			},
			&cli.Float64Flag{
				Name:    "radius",
				Aliases: []string{"r"},
				Usage:   "Search radius in kilometers",
			},
			&cli.StringFlag{
				Name:  "sort",
				Usage: "Sort by distance or price",
			},
			&cli.StringFlag{
				Name:  "fuel",
				Usage: "Only stations selling this fuel type id",
			},
			&cli.IntFlag{
				Name:  "pages",
				Usage: "Number of pages to load",
				Value: 1,
			},
		},
		Action: nearbyAction,
	}
}

func nearbyAction(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := c.Context
	s := e.session

	var patch search.FilterPatch
	if c.IsSet("radius") {
		r := c.Float64("radius")
		patch.Radius = &r
	}
	if c.IsSet("sort") {
		sort := api.SortOrder(c.String("sort"))
		if !sort.Valid() {
			return fmt.Errorf("invalid sort %q, use %q or %q", sort, api.SortByDistance, api.SortByPrice)
		}
		patch.Sort = &sort
	}
	if c.IsSet("fuel") {
		fuel := c.String("fuel")
		patch.Product = &fuel
	}

	coord, found, err := resolveLocation(c, e)
	if err != nil {
		return err
	}

	if found {
		// set the filters first so only one search runs
		if err := setFiltersOffline(c, e, patch); err != nil {
			return err
		}
		s.Location.Update(ctx, coord)
	} else {
		if err := s.Restore(ctx); err != nil {
			return fmt.Errorf("error restoring last search: %w", err)
		}
		if s.Search.State().Location == nil {
			return search.ErrNoLocation
		}
		if err := s.Search.SetFilters(ctx, patch); err != nil {
			return err
		}
	}

	for page := 1; page < c.Int("pages"); page++ {
		if s.Search.LoadMore(ctx) == 0 {
			break
		}
	}

	st := s.Search.State()
	if st.Err != nil {
		return st.Err
	}
	for i, station := range st.Results {
		if st.Location != nil {
			fillDistance(&station, *st.Location)
		}
		printStation(i+1, station, st.Filters.Product)
	}
	fmt.Printf("Showing %d of %d stations within %g km radius\n", len(st.Results), st.Total, st.Filters.Radius)
	return nil
}

// resolveLocation returns the coordinate given on the command line, if any.
func resolveLocation(c *cli.Context, e *env) (location.Coordinate, bool, error) {
	if name := c.String("location"); name != "" {
		place, err := location.NewGeocoder(e.cfg.Nominatim).Geocode(c.Context, name)
		if err != nil {
			return location.Coordinate{}, false, err
		}
		fmt.Println("Location found:", place.DisplayName)
		return place.Coordinate, true, nil
	}

	if !c.IsSet("lat") && !c.IsSet("long") {
		return location.Coordinate{}, false, nil
	}
	coord := location.Coordinate{Latitude: c.Float64("lat"), Longitude: c.Float64("long")}
	if !coord.Valid() {
		return location.Coordinate{}, false, fmt.Errorf("invalid coordinates %s", coord)
	}
	return coord, true, nil
}

// setFiltersOffline applies patch before any location is known, so the
// change does not trigger a search on its own.
func setFiltersOffline(c *cli.Context, e *env, patch search.FilterPatch) error {
	if patch == (search.FilterPatch{}) {
		return nil
	}
	return e.session.Search.SetFilters(c.Context, patch)
}

// fillDistance computes the distance to center when the backend left it out.
func fillDistance(s *api.Station, center search.Location) {
	if s.Distance == 0 {
		s.Distance = s.DistanceTo(center.Latitude, center.Longitude)
	}
}

func printStation(n int, s api.Station, product string) {
	fmt.Printf("%d. %s (%s) [%s]\n", n, s.TradeName, s.Address, s.ID)
	if s.City != "" {
		fmt.Printf("   Municipio: %s\n", s.City)
	}
	if s.Distance > 0 {
		fmt.Printf("   Distance: %.2f km\n", s.Distance/metersPerKm)
	}
	for _, p := range s.Prices {
		if product != "" && p.ProductID != product {
			continue
		}
		fmt.Printf("   %s: %s € %s\n", p.ProductName, p.Price.StringFixed(3), trendMark(p))
	}
	fmt.Println()
}

func trendMark(p api.FuelPrice) string {
	switch p.Trend {
	case api.TrendUp:
		return fmt.Sprintf("▲ %s%%", p.PercentageChange.StringFixed(1))
	case api.TrendDown:
		return fmt.Sprintf("▼ %s%%", p.PercentageChange.Abs().StringFixed(1))
	default:
		return ""
	}
}

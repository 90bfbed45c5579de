package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/rubiojr/gaswatch/internal/detail"
	"github.com/rubiojr/gaswatch/pkg/api"
)

func stationCommand() *cli.Command {
	return &cli.Command{
		Name:      "station",
		Usage:     "Show a gas station and its price history",
		ArgsUsage: "<station id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "history",
				Usage: "Show the price history",
			},
			&cli.StringFlag{
				Name:  "product",
				Usage: "Limit the history to one fuel type id",
			},
			&cli.IntFlag{
				Name:  "days",
				Usage: "Days of history",
				Value: 30,
			},
		},
		Action: stationAction,
	}
}

func stationAction(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return errors.New("station id is required")
	}

	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := c.Context
	s := e.session

	if err := s.Recent.Restore(ctx); err != nil {
		e.log.Warn("Could not restore recently viewed stations", "error", err)
	}

	var history *api.HistoryParams
	if c.Bool("history") {
		history = &api.HistoryParams{
			ProductID: c.String("product"),
			Days:      c.Int("days"),
		}
	}
	if err := loadStation(ctx, s.Detail, id, history); err != nil {
		return err
	}

	st := s.Detail.State()
	if st.Selected == nil {
		return fmt.Errorf("station %s not found", id)
	}
	printStation(1, *st.Selected, "")
	fmt.Printf("   Brand: %s\n   Company: %s\n   Coordinates: %.6f, %.6f\n",
		st.Selected.Brand, st.Selected.LegalName, st.Selected.Latitude, st.Selected.Longitude)

	for _, h := range st.History {
		fmt.Printf("\n%s (%d days)\n", h.ProductName, len(h.Points))
		for _, p := range h.Points {
			fmt.Printf("   %s  %s €\n", p.Date.Format("2006-01-02"), p.Price.StringFixed(3))
		}
	}
	return nil
}

// loadStation fetches the details of id and, when history is not nil, its
// price history. Both requests run to completion even if the other fails.
func loadStation(ctx context.Context, d *detail.Cache, id string, history *api.HistoryParams) error {
	var g errgroup.Group
	g.Go(func() error {
		return d.FetchStationDetails(ctx, id)
	})
	if history != nil {
		g.Go(func() error {
			return d.FetchPriceHistory(ctx, id, *history)
		})
	}
	return g.Wait()
}

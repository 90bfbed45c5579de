package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func searchesCommand() *cli.Command {
	return &cli.Command{
		Name:  "searches",
		Usage: "Show the most searched areas",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Number of areas to show",
				Value: 10,
			},
			&cli.IntFlag{
				Name:  "prune-days",
				Usage: "Delete searches older than this many days instead of listing",
			},
		},
		Action: searchesAction,
	}
}

func searchesAction(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := c.Context

	if c.IsSet("prune-days") {
		deleted, err := e.storage.DeleteOldSearches(ctx, c.Int("prune-days"))
		if err != nil {
			return err
		}
		if err := e.storage.VacuumDatabase(ctx); err != nil {
			return err
		}
		fmt.Printf("Deleted %d old searches\n", deleted)
		return nil
	}

	areas, err := e.storage.GetPopularLocationHeatmap(ctx, c.Int("limit"))
	if err != nil {
		return err
	}
	if len(areas) == 0 {
		fmt.Println("No searches logged yet.")
		return nil
	}
	for i, a := range areas {
		fmt.Printf("%d. %.4f, %.4f  searches: %d  radius: %g km\n", i+1, a.Latitude, a.Longitude, a.SearchCount, a.Radius)
	}
	return nil
}

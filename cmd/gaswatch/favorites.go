package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/rubiojr/gaswatch/internal/favorites"
)

func favoritesCommand() *cli.Command {
	return &cli.Command{
		Name:  "favorites",
		Usage: "Manage favorite fuels at gas stations",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List favorites",
				Action: favoritesListAction,
			},
			{
				Name:      "add",
				Usage:     "Favorite fuel types at a station",
				ArgsUsage: "<station id> <fuel id>...",
				Action: func(c *cli.Context) error {
					return favoritesBulk(c, true)
				},
			},
			{
				Name:      "remove",
				Usage:     "Unfavorite fuel types at a station",
				ArgsUsage: "<station id> <fuel id>...",
				Action: func(c *cli.Context) error {
					return favoritesBulk(c, false)
				},
			},
			{
				Name:      "set",
				Usage:     "Make the given fuel types the only favorites at a station",
				ArgsUsage: "<station id> [fuel id]...",
				Action:    favoritesSetAction,
			},
		},
	}
}

func favoritesListAction(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	ledger := e.session.Favorites
	if err := ledger.FetchFavorites(c.Context); err != nil {
		return err
	}

	entries := ledger.State().Favorites
	if len(entries) == 0 {
		fmt.Println("No favorites yet.")
		return nil
	}
	for _, f := range entries {
		fmt.Printf("%s  %s (%s) [%s]  %s\n", f.FavoritedAt.Local().Format("2006-01-02"),
			f.TradeName, f.Address, f.GasStationID, f.ProductName)
	}
	return nil
}

func stationArgs(c *cli.Context) (string, []string, error) {
	args := c.Args().Slice()
	if len(args) == 0 {
		return "", nil, errors.New("station id is required")
	}
	return args[0], args[1:], nil
}

func favoritesBulk(c *cli.Context, add bool) error {
	stationID, products, err := stationArgs(c)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		return errors.New("at least one fuel id is required")
	}

	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	var res favorites.BulkResult
	if add {
		res, err = e.session.Favorites.UpdateFavoritesInBulk(c.Context, stationID, products, nil)
	} else {
		res, err = e.session.Favorites.UpdateFavoritesInBulk(c.Context, stationID, nil, products)
	}
	return reportBulk(res, err)
}

func favoritesSetAction(c *cli.Context) error {
	stationID, selected, err := stationArgs(c)
	if err != nil {
		return err
	}

	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	ledger := e.session.Favorites
	if err := ledger.FetchFavoritesByStation(c.Context, stationID); err != nil {
		return err
	}
	defer ledger.ClearStationFavorites()

	var initial []string
	for p := range ledger.State().StationProducts {
		initial = append(initial, p)
	}
	add, remove := favorites.Diff(initial, selected)

	res, err := ledger.UpdateFavoritesInBulk(c.Context, stationID, add, remove)
	if err == nil {
		fmt.Printf("Added %d, removed %d\n", len(add), len(remove))
	}
	return reportBulk(res, err)
}

func reportBulk(res favorites.BulkResult, err error) error {
	if err != nil {
		return fmt.Errorf("favorites not saved: %w", err)
	}
	switch res.Status {
	case favorites.BulkSkipped:
		fmt.Println("Nothing to change.")
	case favorites.BulkCommitted:
		fmt.Println("Favorites saved.")
		if res.ResyncErr != nil {
			fmt.Printf("Warning: could not reload favorites: %v\n", res.ResyncErr)
		}
	}
	return nil
}

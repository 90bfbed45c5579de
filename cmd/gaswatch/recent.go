package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func recentCommand() *cli.Command {
	return &cli.Command{
		Name:  "recent",
		Usage: "List recently viewed gas stations",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "clear",
				Usage: "Forget the recently viewed stations",
			},
		},
		Action: recentAction,
	}
}

func recentAction(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	ring := e.session.Recent
	if c.Bool("clear") {
		ring.Clear(c.Context)
		fmt.Println("Recently viewed stations cleared.")
		return nil
	}

	if err := ring.Restore(c.Context); err != nil {
		return fmt.Errorf("error loading recently viewed stations: %w", err)
	}
	stations := ring.List()
	if len(stations) == 0 {
		fmt.Println("No recently viewed stations.")
		return nil
	}
	for i, s := range stations {
		printStation(i+1, s, "")
	}
	return nil
}

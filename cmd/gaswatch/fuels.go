package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func fuelsCommand() *cli.Command {
	return &cli.Command{
		Name:  "fuels",
		Usage: "List the fuel types",
		Action: func(c *cli.Context) error {
			e, err := newEnv(c)
			if err != nil {
				return err
			}
			defer e.Close()

			types, err := e.session.Catalog.FuelTypes(c.Context)
			if err != nil {
				return err
			}
			for _, t := range types {
				fmt.Printf("%4s  %s\n", t.ID, t.Name)
			}
			return nil
		},
	}
}

package main

import (
	"fmt"

	"github.com/urfave/cli"
)

var versionCommand = cli.Command{
	Name:  "version",
	Usage: "print the version of vortex and of the specs it implements",
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 0, exactArgs); err != nil {
			return err
		}
		fmt.Fprintln(context.App.Writer, "vortex version "+versionString())
		return nil
	},
}

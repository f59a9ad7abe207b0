package main

import (
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var stopCommand = cli.Command{
	Name:  "stop",
	Usage: "stop a running container",
	Description: `The stop command sends SIGTERM to every process of the container, waits
up to --timeout for them to exit, sends SIGKILL to the survivors and removes
the container's cgroup.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "id, i",
			Usage: "id of the container to stop",
		},
		cli.DurationFlag{
			Name:  "timeout",
			Usage: "grace period between SIGTERM and SIGKILL (default 5s)",
		},
	},
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 0, exactArgs); err != nil {
			return err
		}
		if err := requireRoot(context); err != nil {
			return err
		}
		id, err := requireID(context)
		if err != nil {
			return err
		}
		container, err := loadContainer(context, id)
		if err != nil {
			return err
		}
		if err := container.Stop(stopTimeout(context)); err != nil {
			return err
		}
		logrus.WithField("id", id).Debug("container stopped")
		return nil
	},
}

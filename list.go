package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	units "github.com/docker/go-units"
	ps "github.com/mitchellh/go-ps"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/vortex/libcontainer"
)

// containerSummary is one row of the list output.
type containerSummary struct {
	ID      string
	Pids    []int
	Command string
	Memory  uint64
}

var listCommand = cli.Command{
	Name:  "list",
	Usage: "lists the running containers",
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "quiet, q",
			Usage: "display only container IDs",
		},
	},
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 0, exactArgs); err != nil {
			return err
		}
		template, err := cgroupTemplate(context)
		if err != nil {
			return err
		}
		ids, err := libcontainer.ListRunning(template)
		if err != nil {
			return err
		}
		if context.Bool("quiet") {
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		}
		var summaries []containerSummary
		for _, id := range ids {
			s, err := summarize(context, id)
			if err != nil {
				// The container may have exited since it was listed.
				logrus.WithError(err).WithField("id", id).Debug("skipping container")
				continue
			}
			summaries = append(summaries, s)
		}
		return formatList(os.Stdout, summaries)
	},
}

func summarize(context *cli.Context, id string) (containerSummary, error) {
	container, err := loadContainer(context, id)
	if err != nil {
		return containerSummary{}, err
	}
	pids, err := container.Processes()
	if err != nil {
		return containerSummary{}, err
	}
	s := containerSummary{ID: id, Pids: pids, Command: commandOf(pids)}
	if stats, err := container.Stats(); err == nil {
		s.Memory = stats.MemoryStats.Usage.Usage
	}
	return s, nil
}

// commandOf returns the executable name of the first live pid.
func commandOf(pids []int) string {
	for _, pid := range pids {
		if p, err := ps.FindProcess(pid); err == nil && p != nil {
			return p.Executable()
		}
	}
	return "-"
}

func formatList(w io.Writer, summaries []containerSummary) error {
	if len(summaries) == 0 {
		_, err := fmt.Fprintln(w, "No containers running")
		return err
	}
	tw := tabwriter.NewWriter(w, 12, 1, 3, ' ', 0)
	fmt.Fprint(tw, "ID\tPIDS\tCOMMAND\tMEMORY\n")
	for _, s := range summaries {
		pids := make([]string, len(s.Pids))
		for i, pid := range s.Pids {
			pids[i] = fmt.Sprint(pid)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, strings.Join(pids, ","), s.Command, units.BytesSize(float64(s.Memory)))
	}
	return tw.Flush()
}

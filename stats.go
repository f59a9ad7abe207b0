package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	units "github.com/docker/go-units"
	"github.com/urfave/cli"

	"github.com/vortex/libcontainer"
	"github.com/vortex/libcontainer/cgroups"
	"github.com/vortex/libcontainer/utils"
)

var statsCommand = cli.Command{
	Name:  "stats",
	Usage: "display the resource usage of a container",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "id, i",
			Usage: "id of the container",
		},
		cli.StringFlag{
			Name:  "format, f",
			Value: "table",
			Usage: `select one of: table or json`,
		},
	},
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 0, exactArgs); err != nil {
			return err
		}
		id, err := requireID(context)
		if err != nil {
			return err
		}
		stats, err := containerStats(context, id)
		if err != nil {
			if errors.Is(err, libcontainer.ErrNotExist) {
				return cli.NewExitError(fmt.Sprintf("Failed to create controller for container %s: container does not exist", id), 1)
			}
			return err
		}
		switch context.String("format") {
		case "table":
			return formatStats(os.Stdout, id, stats)
		case "json":
			if err := utils.WriteJSON(os.Stdout, stats); err != nil {
				return err
			}
			fmt.Println()
			return nil
		default:
			return errors.New("invalid format option")
		}
	},
}

func containerStats(context *cli.Context, id string) (*cgroups.Stats, error) {
	container, err := loadContainer(context, id)
	if err != nil {
		return nil, err
	}
	return container.Stats()
}

func formatStats(w io.Writer, id string, stats *cgroups.Stats) error {
	tw := tabwriter.NewWriter(w, 12, 1, 3, ' ', 0)
	fmt.Fprintf(tw, "CONTAINER\t%s\n", id)
	fmt.Fprintf(tw, "CPU TIME\t%s\n", stats.CpuTime().Round(time.Microsecond))
	fmt.Fprintf(tw, "CPU USER\t%s\n", time.Duration(stats.CpuStats.CpuUsage.UsageInUsermode).Round(time.Microsecond))
	fmt.Fprintf(tw, "CPU SYSTEM\t%s\n", time.Duration(stats.CpuStats.CpuUsage.UsageInKernelmode).Round(time.Microsecond))
	fmt.Fprintf(tw, "THROTTLED\t%s (%d of %d periods)\n", stats.ThrottledTime().Round(time.Microsecond),
		stats.CpuStats.ThrottlingData.ThrottledPeriods, stats.CpuStats.ThrottlingData.Periods)
	mem := stats.MemoryStats.Usage
	fmt.Fprintf(tw, "MEMORY\t%s / %s\n", units.BytesSize(float64(mem.Usage)), formatLimit(mem.Limit))
	fmt.Fprintf(tw, "MEMORY PEAK\t%s\n", units.BytesSize(float64(mem.MaxUsage)))
	if swap := stats.MemoryStats.SwapUsage; swap.Usage != 0 || swap.Limit != 0 {
		fmt.Fprintf(tw, "SWAP\t%s / %s\n", units.BytesSize(float64(swap.Usage)), formatLimit(swap.Limit))
	}
	fmt.Fprintf(tw, "IO READ\t%s\n", units.BytesSize(float64(stats.IOStats.ReadBytes)))
	fmt.Fprintf(tw, "IO WRITE\t%s\n", units.BytesSize(float64(stats.IOStats.WriteBytes)))
	fmt.Fprintf(tw, "PIDS\t%d\n", stats.PidsStats.Current)
	return tw.Flush()
}

func formatLimit(limit uint64) string {
	if cgroups.IsUnlimited(limit) {
		return "unlimited"
	}
	return units.BytesSize(float64(limit))
}

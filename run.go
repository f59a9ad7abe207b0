package main

import (
	"fmt"
	"os"

	"github.com/opencontainers/runtime-spec/specs-go"
	"github.com/urfave/cli"

	"github.com/vortex/libcontainer/specconv"
)

// runOptions are the container settings taken from the run flags.
type runOptions struct {
	hostname    string
	cpus        float64
	cpuPeriod   uint64
	memory      string
	flat        bool
	annotations []string
	args        []string
	env         []string
}

// buildSpec turns the run flags into a runtime spec.
func buildSpec(opts runOptions) (*specs.Spec, error) {
	spec := specconv.Example()
	spec.Process.Args = opts.args
	spec.Process.Env = opts.env
	// Run from the caller's working directory.
	spec.Process.Cwd = ""
	spec.Hostname = opts.hostname
	if opts.flat {
		specconv.SetFlat(spec)
	}
	if opts.cpus != 0 {
		if err := specconv.SetCPU(spec, opts.cpus, opts.cpuPeriod); err != nil {
			return nil, err
		}
	}
	if opts.memory != "" {
		limit, err := parseMemory(opts.memory)
		if err != nil {
			return nil, err
		}
		if err := specconv.SetMemory(spec, limit); err != nil {
			return nil, err
		}
	}
	annotations, err := parseAnnotations(opts.annotations)
	if err != nil {
		return nil, err
	}
	spec.Annotations = annotations
	return spec, nil
}

var runCommand = cli.Command{
	Name:  "run",
	Usage: "create and run a container",
	ArgsUsage: `-- <command> [args...]

Where "<command>" is the program to run as the container's process. The
container is removed once the command returns and vortex exits with the
command's exit code (128+n if it was killed by signal n).`,
	Description: `The run command creates a container with the id given by --id, runs the
command in it and waits for it. SIGINT and SIGTERM stop the container.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "id, i",
			Usage: "unique container id: letters, digits, '-' and '_', at most 64 characters",
		},
		cli.StringFlag{
			Name:  "hostname",
			Usage: "hostname inside the container's uts namespace",
		},
		cli.Float64Flag{
			Name:  "cpu",
			Usage: "cpu limit as a fraction of cpus, e.g. 0.5 (at most 128)",
		},
		cli.StringFlag{
			Name:  "memory",
			Usage: "memory limit in megabytes, or a size such as 512m or 2g (at most 1TiB)",
		},
		cli.BoolFlag{
			Name:  "no-namespaces",
			Usage: "share every namespace with the host",
		},
		cli.BoolFlag{
			Name:  "monitor",
			Usage: "report resource usage events while the container runs",
		},
		cli.DurationFlag{
			Name:  "monitor-interval",
			Usage: "time between two monitor samples (default 2s)",
		},
		cli.StringSliceFlag{
			Name:  "annotation",
			Usage: "key=value annotation; org.systemd.property.<Name> sets a property of the systemd scope",
		},
	},
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 1, minArgs); err != nil {
			return err
		}
		if err := requireRoot(context); err != nil {
			return err
		}
		id, err := requireID(context)
		if err != nil {
			return err
		}
		if context.IsSet("cpu") && context.Float64("cpu") == 0 {
			return fmt.Errorf("cpu limit must be in (0, %d]", specconv.MaxCPUs)
		}
		spec, err := buildSpec(runOptions{
			hostname:    context.String("hostname"),
			cpus:        context.Float64("cpu"),
			cpuPeriod:   cpuPeriod(context),
			memory:      context.String("memory"),
			flat:        context.Bool("no-namespaces"),
			annotations: context.StringSlice("annotation"),
			args:        context.Args(),
			env:         os.Environ(),
		})
		if err != nil {
			return err
		}
		status, err := startContainer(context, id, spec)
		if err == nil {
			// exit with the container's exit status so any external supervisor is
			// notified of the exit with the correct exit status.
			os.Exit(status)
		}
		return fmt.Errorf("vortex run failed: %w", err)
	},
}

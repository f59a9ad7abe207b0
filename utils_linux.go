package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/opencontainers/runtime-spec/specs-go"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"golang.org/x/sys/unix"

	"github.com/vortex/libcontainer"
	"github.com/vortex/libcontainer/configs"
	"github.com/vortex/libcontainer/monitor"
	"github.com/vortex/libcontainer/specconv"
)

func newProcess(p specs.Process) *libcontainer.Process {
	return &libcontainer.Process{
		Args:   p.Args,
		Env:    p.Env,
		Cwd:    p.Cwd,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// cgroupTemplate describes the cgroup root selected by the global flags and
// the config file, without a container.
func cgroupTemplate(context *cli.Context) (*configs.Cgroup, error) {
	return specconv.CreateCgroupConfig(&specconv.CreateOpts{
		CgroupRoot:       cgroupRoot(context),
		UseSystemdCgroup: useSystemd(context),
	})
}

func createContainer(context *cli.Context, id string, spec *specs.Spec) (*libcontainer.Container, error) {
	config, err := specconv.CreateLibcontainerConfig(&specconv.CreateOpts{
		CgroupName:       id,
		CgroupRoot:       cgroupRoot(context),
		UseSystemdCgroup: useSystemd(context),
		Spec:             spec,
	})
	if err != nil {
		return nil, err
	}
	return libcontainer.Create(id, config)
}

func loadContainer(context *cli.Context, id string) (*libcontainer.Container, error) {
	template, err := cgroupTemplate(context)
	if err != nil {
		return nil, err
	}
	return libcontainer.Load(id, template)
}

type runner struct {
	container       *libcontainer.Container
	monitor         bool
	monitorInterval time.Duration
	stopTimeout     time.Duration
}

func (r *runner) run(config *specs.Process) (int, error) {
	process := newProcess(*config)
	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer stop()

	r.container.SetStopTimeout(r.stopTimeout)
	sink := monitor.LogSink{Logger: logrus.StandardLogger()}
	var sampler libcontainer.Sampler
	if r.monitor {
		sampler = monitor.New(r.container.ID(), r.container, sink, monitor.WithInterval(r.monitorInterval))
	}
	outcome, err := r.container.Supervise(ctx, process, sampler)
	if err != nil {
		return -1, err
	}
	if r.monitor {
		sink.Emit(monitor.Event{
			Kind:     monitor.Exiting,
			ID:       r.container.ID(),
			Time:     time.Now(),
			Outcome:  outcome.String(),
			ExitCode: outcome.ExitCode(),
		})
	}
	logrus.WithFields(logrus.Fields{"id": r.container.ID(), "exit_code": outcome.ExitCode()}).Debug(outcome.String())
	return outcome.ExitCode(), nil
}

func startContainer(context *cli.Context, id string, spec *specs.Spec) (int, error) {
	container, err := createContainer(context, id, spec)
	if err != nil {
		return -1, err
	}
	r := &runner{
		container:       container,
		monitor:         context.Bool("monitor"),
		monitorInterval: monitorInterval(context),
		stopTimeout:     stopTimeout(context),
	}
	return r.run(spec.Process)
}

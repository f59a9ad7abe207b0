package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/moby/sys/mountinfo"
	"github.com/urfave/cli"

	"github.com/vortex/libcontainer/cgroups"
	"github.com/vortex/libcontainer/cgroups/systemd"
	"github.com/vortex/libcontainer/configs"
)

// requiredControllers are the cgroup v2 controllers the limits and the
// stats rely on.
var requiredControllers = []string{"cpu", "memory", "io", "pids"}

type healthCheck struct {
	name string
	// advisory checks are reported but do not fail the command.
	advisory bool
	run      func() error
}

var healthCommand = cli.Command{
	Name:  "health",
	Usage: "check that the host can run vortex containers",
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 0, exactArgs); err != nil {
			return err
		}
		return runChecks(os.Stdout, hostChecks(useSystemd(context)))
	},
}

func hostChecks(withSystemd bool) []healthCheck {
	checks := []healthCheck{
		{name: "cgroup2 filesystem mounted at " + cgroups.UnifiedMountpoint, run: checkCgroup2Mount},
		{name: "cgroup v2 unified mode", run: checkCgroupMode},
		{name: "cgroup controllers " + strings.Join(requiredControllers, ", "), run: func() error {
			return checkControllers(cgroups.UnifiedMountpoint)
		}},
		{name: "running as root", advisory: true, run: checkRoot},
	}
	for _, ns := range configs.Isolated.Namespaces() {
		name := configs.NsName(ns.Type)
		checks = append(checks, healthCheck{
			name: name + " namespace support",
			run: func() error {
				_, err := os.Stat(filepath.Join("/proc/self/ns", name))
				return err
			},
		})
	}
	checks = append(checks, healthCheck{name: "/bin/sh available", run: func() error {
		_, err := exec.LookPath("/bin/sh")
		return err
	}})
	if withSystemd {
		checks = append(checks, healthCheck{name: "systemd running", run: func() error {
			if !systemd.IsRunningSystemd() {
				return errors.New("systemd is not the init system")
			}
			return nil
		}})
	}
	return checks
}

// runChecks writes one line per check and fails if a required check failed.
func runChecks(w io.Writer, checks []healthCheck) error {
	failed := 0
	for _, c := range checks {
		err := c.run()
		switch {
		case err == nil:
			fmt.Fprintf(w, "[OK]   %s\n", c.name)
		case c.advisory:
			fmt.Fprintf(w, "[WARN] %s: %v\n", c.name, err)
		default:
			failed++
			fmt.Fprintf(w, "[FAIL] %s: %v\n", c.name, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d health checks failed", failed, len(checks))
	}
	return nil
}

func checkCgroup2Mount() error {
	mounts, err := mountinfo.GetMounts(mountinfo.FSTypeFilter("cgroup2"))
	if err != nil {
		return err
	}
	for _, m := range mounts {
		if m.Mountpoint == cgroups.UnifiedMountpoint {
			return nil
		}
	}
	return fmt.Errorf("no cgroup2 mount at %s", cgroups.UnifiedMountpoint)
}

func checkCgroupMode() error {
	switch {
	case cgroups.IsCgroup2UnifiedMode():
		return nil
	case cgroups.IsCgroup2HybridMode():
		return errors.New("host runs cgroup v1 with a hybrid v2 mount")
	default:
		return errors.New("host runs cgroup v1")
	}
}

// checkControllers verifies the controllers listed in the cgroup.controllers
// file of dir.
func checkControllers(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, "cgroup.controllers"))
	if err != nil {
		return err
	}
	available := map[string]bool{}
	for _, c := range strings.Fields(string(data)) {
		available[c] = true
	}
	var missing []string
	for _, c := range requiredControllers {
		if !available[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing controllers: %s", strings.Join(missing, ", "))
	}
	return nil
}

func checkRoot() error {
	if os.Geteuid() != 0 {
		return fmt.Errorf("euid is %d, run and stop need root", os.Geteuid())
	}
	return nil
}

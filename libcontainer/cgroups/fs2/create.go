package fs2

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/vortex/libcontainer/cgroups"
)

const (
	cgStCtlFile = "cgroup.subtree_control"
	cgCtlFile   = "cgroup.controllers"
)

// wantedControllers are delegated to the container cgroups when the kernel
// offers them.
var wantedControllers = []string{"cpu", "memory", "io", "pids"}

func supportControllers(dir string) ([]string, error) {
	content, err := cgroups.ReadFile(dir, cgCtlFile)
	if err != nil {
		return nil, err
	}
	return strings.Fields(content), nil
}

// enableControllers writes "+cpu +memory ..." to the subtree_control file of
// dir, limited to the controllers dir itself has.
func enableControllers(dir string) error {
	avail, err := supportControllers(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var ctrs []string
	for _, want := range wantedControllers {
		for _, c := range avail {
			if c == want {
				ctrs = append(ctrs, "+"+c)
			}
		}
	}
	if len(ctrs) == 0 {
		return nil
	}
	if err := cgroups.WriteFile(dir, cgStCtlFile, strings.Join(ctrs, " ")); err != nil {
		// Try enabling them one by one, some might be unavailable
		// (e.g. cpu while a realtime process is around).
		for _, ctr := range ctrs {
			if err := cgroups.WriteFile(dir, cgStCtlFile, ctr); err != nil {
				logrus.WithError(err).Debugf("unable to enable %s in %s", ctr, dir)
			}
		}
	}
	return nil
}

// CreateCgroupPath creates the parents of path, delegating the controllers
// down to them, and then claims path itself with a single mkdir. An existing
// path fails with cgroups.ErrCgroupExists.
func CreateCgroupPath(path string) (Err error) {
	if !strings.HasPrefix(path, UnifiedMountpoint) {
		return fmt.Errorf("invalid cgroup path %s", path)
	}

	elements := strings.Split(strings.TrimPrefix(path, UnifiedMountpoint), "/")
	current := UnifiedMountpoint
	for i, e := range elements {
		if e == "" {
			continue
		}
		if err := enableControllers(current); err != nil {
			logrus.WithError(err).Debugf("unable to delegate controllers in %s", current)
		}
		current = filepath.Join(current, e)
		if i == len(elements)-1 {
			break
		}
		if err := os.Mkdir(current, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
			return err
		}
	}

	if err := os.Mkdir(path, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", cgroups.ErrCgroupExists, path)
		}
		if errors.Is(err, unix.EROFS) || errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("cannot create %s, is the runtime running as root? %w", path, err)
		}
		return err
	}
	return nil
}

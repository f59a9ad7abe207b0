package fs2

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/vortex/libcontainer/cgroups"
	"github.com/vortex/libcontainer/configs"
)

type Manager struct {
	config *configs.Cgroup
	// dirPath is like "/sys/fs/cgroup/vortex/demo"
	dirPath string
	// controllers is content of "cgroup.controllers" file.
	// excludes pseudo-controllers ("devices" and "freezer").
	controllers map[string]struct{}
}

// NewManager creates a manager for cgroup v2 unified hierarchy.
// dirPath is like "/sys/fs/cgroup/vortex/demo".
// If dirPath is empty, it is automatically set using config.
func NewManager(config *configs.Cgroup, dirPath string) (*Manager, error) {
	if dirPath == "" {
		var err error
		dirPath, err = defaultDirPath(config)
		if err != nil {
			return nil, err
		}
	}

	m := &Manager{
		config:  config,
		dirPath: dirPath,
	}
	return m, nil
}

func (m *Manager) getControllers() error {
	if m.controllers != nil {
		return nil
	}

	data, err := cgroups.ReadFile(m.dirPath, cgCtlFile)
	if err != nil {
		return err
	}
	fields := strings.Fields(data)
	m.controllers = make(map[string]struct{}, len(fields))
	for _, c := range fields {
		m.controllers[c] = struct{}{}
	}

	return nil
}

// hasController reports whether the controller is enabled for the cgroup.
// Without a readable cgroup.controllers every controller is assumed.
func (m *Manager) hasController(name string) bool {
	if err := m.getControllers(); err != nil {
		return true
	}
	_, ok := m.controllers[name]
	return ok
}

func (m *Manager) Create() error {
	return CreateCgroupPath(m.dirPath)
}

func (m *Manager) Apply(pid int) error {
	if !m.Exists() {
		return fmt.Errorf("%w: %s", cgroups.ErrCgroupNotExist, m.dirPath)
	}
	return cgroups.WriteCgroupProc(m.dirPath, pid)
}

func (m *Manager) Set(r *configs.Resources) error {
	if r == nil {
		return nil
	}
	if err := setCPU(m.dirPath, r); err != nil {
		if !m.hasController("cpu") {
			return fmt.Errorf("cpu controller is not delegated to %s: %w", m.dirPath, err)
		}
		return err
	}
	if err := setMemory(m.dirPath, r); err != nil {
		if !m.hasController("memory") {
			return fmt.Errorf("memory controller is not delegated to %s: %w", m.dirPath, err)
		}
		return err
	}
	return nil
}

func (m *Manager) GetPids() ([]int, error) {
	return cgroups.GetPids(m.dirPath)
}

func (m *Manager) GetStats() (*cgroups.Stats, error) {
	if !m.Exists() {
		return nil, cgroups.ErrCgroupNotExist
	}
	var errs *multierror.Error

	st := cgroups.NewStats()

	if err := statCpu(m.dirPath, st); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = multierror.Append(errs, err)
	}
	if err := statMemory(m.dirPath, st); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = multierror.Append(errs, err)
	}
	if err := statIo(m.dirPath, st); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = multierror.Append(errs, err)
	}
	if err := statPids(m.dirPath, st); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = multierror.Append(errs, err)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return st, fmt.Errorf("error while statting cgroup v2: %w", err)
	}
	return st, nil
}

func (m *Manager) Kill() error {
	return cgroups.KillAll(m.dirPath)
}

func (m *Manager) Destroy() error {
	var result *multierror.Error
	pids, err := cgroups.GetPids(m.dirPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		result = multierror.Append(result, err)
	}
	if len(pids) > 0 {
		if err := cgroups.KillAll(m.dirPath); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := cgroups.RemovePathRetry(m.dirPath); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (m *Manager) Exists() bool {
	return cgroups.PathExists(m.dirPath)
}

func (m *Manager) Path(_ string) string {
	return m.dirPath
}

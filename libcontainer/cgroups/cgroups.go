package cgroups

import (
	"errors"

	"github.com/vortex/libcontainer/configs"
)

var (
	// ErrCgroupExists is returned by Manager.Create when the cgroup directory
	// is already present, i.e. the container id is taken.
	ErrCgroupExists = errors.New("cgroup already exists")

	// ErrCgroupNotExist is returned for operations on a cgroup that is gone.
	ErrCgroupNotExist = errors.New("cgroup does not exist")
)

type Manager interface {
	// Create claims the cgroup. It fails with ErrCgroupExists when the
	// cgroup is already present.
	Create() error

	// Apply moves the process with the specified pid into the cgroup.
	Apply(pid int) error

	// Set writes the resource limits. Limits are written once, before the
	// container's process is started.
	Set(r *configs.Resources) error

	// GetPids returns the pids of the processes in the cgroup.
	GetPids() ([]int, error)

	// GetStats returns a snapshot of the cgroup's resource usage.
	GetStats() (*Stats, error)

	// Kill sends SIGKILL to every process in the cgroup.
	Kill() error

	// Destroy kills the remaining processes and removes the cgroup. It is
	// a no-op for a cgroup that does not exist.
	Destroy() error

	// Exists reports whether the cgroup is present.
	Exists() bool

	// Path returns the absolute path of the cgroup for the subsystem. The
	// subsystem is ignored on the unified hierarchy.
	Path(subsys string) string
}

package manager

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/vortex/libcontainer/cgroups"
	"github.com/vortex/libcontainer/cgroups/fs"
	"github.com/vortex/libcontainer/cgroups/fs2"
	"github.com/vortex/libcontainer/cgroups/systemd"
	"github.com/vortex/libcontainer/configs"
)

// ErrSystemdV1 is returned when the systemd driver is requested on a host
// without the unified hierarchy.
var ErrSystemdV1 = errors.New("the systemd cgroup driver requires cgroup v2")

func New(config *configs.Cgroup) (cgroups.Manager, error) {
	return NewWithPaths(config, nil)
}

// There are three kinds of managers: fs.NewManager, fs2.NewManager, and systemd.NewUnifiedManager.
// fs.NewManager manages a container through the per-controller hierarchies of cgroup v1,
// one directory per mounted subsystem.
// fs2.NewManager manages a container through the unified hierarchy of cgroup v2, a single directory
// below /sys/fs/cgroup. It is the default.
// systemd.NewUnifiedManager asks systemd to create a transient scope for the container and then
// works on that scope's directory of the unified hierarchy like fs2 does.
func NewWithPaths(config *configs.Cgroup, paths map[string]string) (cgroups.Manager, error) {
	if config == nil {
		return nil, errors.New("cgroups/manager.New: config must not be nil")
	}
	if config.Systemd && !systemd.IsRunningSystemd() {
		return nil, errors.New("systemd not running on this host, cannot use systemd cgroups manager")
	}
	if cgroups.IsCgroup2UnifiedMode() {
		path, err := getunifiedPath(paths)
		if err != nil {
			return nil, fmt.Errorf("manager.NewWithPaths: inconsistent paths: %w", err)
		}
		if config.Systemd {
			return systemd.NewUnifiedManager(config, path)
		}
		return fs2.NewManager(config, path)
	}
	if config.Systemd {
		return nil, ErrSystemdV1
	}
	return fs.NewManager(config, paths)
}

// List returns the names of every container cgroup that shares the parent
// of config, using the same driver New would pick.
func List(config *configs.Cgroup) ([]string, error) {
	if config == nil {
		return nil, errors.New("cgroups/manager.List: config must not be nil")
	}
	if cgroups.IsCgroup2UnifiedMode() {
		if config.Systemd {
			return systemd.List(config)
		}
		return fs2.List(config)
	}
	if config.Systemd {
		return nil, ErrSystemdV1
	}
	return fs.List(config)
}

// getUnifiedPath is an implementation detail of libcontainer.
// Callers may hand in per-subsystem path maps, but with v2 there
// is only one single unified path (with "" as a key).
//
// This function converts from that map to string (using "" as a key),
// and also checks that the map itself is sane.
func getunifiedPath(paths map[string]string) (string, error) {
	if len(paths) > 1 {
		return "", fmt.Errorf("expected a single path, got %+v", paths)
	}
	path := paths[""]
	// can be empty
	if path != "" {
		if filepath.Clean(path) != path || !filepath.IsAbs(path) {
			return "", fmt.Errorf("invalid path: %q", path)
		}
	}
	return path, nil
}

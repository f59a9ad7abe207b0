package fs

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/moby/sys/mountinfo"

	"github.com/vortex/libcontainer/cgroups"
	"github.com/vortex/libcontainer/configs"
)

var (
	mountsOnce sync.Once
	mounts     map[string]string
	mountsErr  error
)

// mountpoints maps every mounted v1 subsystem to its mountpoint. The unified
// hierarchy of a hybrid setup is stored under the "" key.
func mountpoints() (map[string]string, error) {
	mountsOnce.Do(func() {
		infos, err := mountinfo.GetMounts(func(info *mountinfo.Info) (skip, stop bool) {
			return info.FSType != "cgroup" && info.FSType != "cgroup2", false
		})
		if err != nil {
			mountsErr = fmt.Errorf("unable to read cgroup mounts: %w", err)
			return
		}
		mounts = make(map[string]string)
		for _, info := range infos {
			if info.FSType == "cgroup2" {
				if _, ok := mounts[""]; !ok {
					mounts[""] = info.Mountpoint
				}
				continue
			}
			for _, opt := range strings.Split(info.VFSOptions, ",") {
				if _, ok := mounts[opt]; !ok && isSubsystem(opt) {
					mounts[opt] = info.Mountpoint
				}
			}
		}
	})
	return mounts, mountsErr
}

func isSubsystem(name string) bool {
	for _, sys := range subsystems {
		if sys.Name() == name {
			return true
		}
	}
	return false
}

// subPath returns the cgroup path of cg relative to a hierarchy root.
func subPath(cg *configs.Cgroup) (string, error) {
	if cg.Path != "" {
		return cg.Path, nil
	}
	if cg.Name == "" {
		return "", errors.New("cgroup name is empty")
	}
	return filepath.Join(cg.Parent, cg.Name), nil
}

func initPaths(cg *configs.Cgroup) (map[string]string, error) {
	mnt, err := mountpoints()
	if err != nil {
		return nil, err
	}
	if mnt[primary] == "" {
		return nil, fmt.Errorf("cgroup v1 %s hierarchy is not mounted", primary)
	}
	inner, err := subPath(cg)
	if err != nil {
		return nil, err
	}
	paths := make(map[string]string)
	for _, sys := range subsystems {
		root, ok := mnt[sys.Name()]
		if !ok {
			continue
		}
		p, err := securejoin.SecureJoin(root, inner)
		if err != nil {
			return nil, err
		}
		paths[sys.Name()] = p
	}
	return paths, nil
}

// List returns the names of the containers below the parent of cg in the
// primary hierarchy.
func List(cg *configs.Cgroup) ([]string, error) {
	mnt, err := mountpoints()
	if err != nil {
		return nil, err
	}
	if mnt[primary] == "" {
		return []string{}, nil
	}
	dir, err := securejoin.SecureJoin(mnt[primary], cg.Parent)
	if err != nil {
		return nil, err
	}
	return cgroups.ListChildren(dir)
}

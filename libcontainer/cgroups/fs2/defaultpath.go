package fs2

import (
	"errors"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/vortex/libcontainer/cgroups"
	"github.com/vortex/libcontainer/configs"
	"github.com/vortex/libcontainer/utils"
)

// UnifiedMountpoint is the mountpoint of the unified hierarchy. Tests point
// it at a temporary directory.
var UnifiedMountpoint = cgroups.UnifiedMountpoint

func defaultDirPath(c *configs.Cgroup) (string, error) {
	if (c.Name != "" || c.Parent != "") && c.Path != "" {
		return "", errors.New("cgroup: either Path or Name and Parent should be used")
	}

	// Don't allow paths outside the unified hierarchy.
	innerPath := utils.CleanPath(c.Path)
	if innerPath == "" {
		if c.Name == "" {
			return "", errors.New("cgroup: name is empty")
		}
		innerPath = filepath.Join(utils.CleanPath(c.Parent), c.Name)
	}

	return securejoin.SecureJoin(UnifiedMountpoint, innerPath)
}

// rootPath is the directory holding every container cgroup of c's family.
func rootPath(c *configs.Cgroup) (string, error) {
	return securejoin.SecureJoin(UnifiedMountpoint, utils.CleanPath(c.Parent))
}

// List returns the names of the container cgroups below the parent of c.
func List(c *configs.Cgroup) ([]string, error) {
	dir, err := rootPath(c)
	if err != nil {
		return nil, err
	}
	return cgroups.ListChildren(dir)
}

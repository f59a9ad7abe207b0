package libcontainer

import (
	"sort"

	ps "github.com/mitchellh/go-ps"
	"github.com/sirupsen/logrus"

	"github.com/vortex/libcontainer/cgroups/manager"
	"github.com/vortex/libcontainer/configs"
	"github.com/vortex/libcontainer/configs/validate"
)

// The registry is the cgroup hierarchy itself: a container exists exactly
// as long as its cgroup directory below the root does.

// List returns the ids of every container below the root described by
// template, running or not.
func List(template *configs.Cgroup) ([]string, error) {
	ids, err := manager.List(template.Template())
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// ListRunning returns the ids of the containers with at least one live
// process.
func ListRunning(template *configs.Cgroup) ([]string, error) {
	ids, err := List(template)
	if err != nil {
		return nil, err
	}
	running := []string{}
	for _, id := range ids {
		cm, err := newCgroupManager(template.ForID(id))
		if err != nil {
			return nil, err
		}
		pids, err := cm.GetPids()
		if err != nil {
			logrus.WithError(err).WithField("id", id).Debug("unable to get pids")
			continue
		}
		if anyAlive(pids) {
			running = append(running, id)
		}
	}
	return running, nil
}

// Exists reports whether container id is known.
func Exists(template *configs.Cgroup, id string) (bool, error) {
	if err := validate.ID(id); err != nil {
		return false, err
	}
	cm, err := newCgroupManager(template.ForID(id))
	if err != nil {
		return false, err
	}
	return cm.Exists(), nil
}

func anyAlive(pids []int) bool {
	for _, pid := range pids {
		if p, err := ps.FindProcess(pid); err == nil && p != nil {
			return true
		}
	}
	return false
}

package fs

import (
	"github.com/vortex/libcontainer/cgroups"
	"github.com/vortex/libcontainer/configs"
)

type PidsGroup struct{}

func (s *PidsGroup) Name() string {
	return "pids"
}

func (s *PidsGroup) Set(_ string, _ *configs.Resources) error {
	return nil
}

func (s *PidsGroup) GetStats(path string, stats *cgroups.Stats) error {
	if !cgroups.PathExists(path) {
		return nil
	}
	current, err := cgroups.GetCgroupParamUint(path, "pids.current")
	if err != nil {
		return err
	}
	limit, err := cgroups.GetCgroupParamUint(path, "pids.max")
	if err != nil {
		return err
	}
	// Zero means there is no limit.
	if limit == cgroups.MaxUint64 {
		limit = 0
	}

	stats.PidsStats.Current = current
	stats.PidsStats.Limit = limit
	return nil
}

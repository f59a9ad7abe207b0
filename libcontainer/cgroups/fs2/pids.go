package fs2

import (
	"errors"
	"os"

	"github.com/vortex/libcontainer/cgroups"
)

func statPidsFromCgroupProcs(dirPath string, stats *cgroups.Stats) error {
	// if the controller is not enabled, let's read PIDS from cgroups.procs
	// (or threads if cgroup.threads is enabled)
	pids, err := cgroups.GetPids(dirPath)
	if err != nil {
		return err
	}
	stats.PidsStats.Current = uint64(len(pids))
	stats.PidsStats.Limit = 0
	return nil
}

func statPids(dirPath string, stats *cgroups.Stats) error {
	current, err := cgroups.GetCgroupParamUint(dirPath, "pids.current")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return statPidsFromCgroupProcs(dirPath, stats)
		}
		return err
	}

	limit, err := cgroups.GetCgroupParamUint(dirPath, "pids.max")
	if err != nil {
		return err
	}
	// If no limit is set, read from pids.max returns "max", which is
	// converted to MaxUint64 by GetCgroupParamUint. Historically, we
	// represent "no limit" for pids as 0, thus this conversion.
	if limit == cgroups.MaxUint64 {
		limit = 0
	}

	stats.PidsStats.Current = current
	stats.PidsStats.Limit = limit
	return nil
}

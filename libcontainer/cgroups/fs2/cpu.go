package fs2

import (
	"bufio"
	"os"
	"strconv"

	"github.com/vortex/libcontainer/cgroups"
	"github.com/vortex/libcontainer/configs"
)

func isCpuSet(r *configs.Resources) bool {
	return r.CpuQuota != 0 || r.CpuPeriod != 0
}

// cpuMax formats the cpu.max value "$MAX $PERIOD". A zero quota with a
// period set keeps the cgroup unlimited.
func cpuMax(quota int64, period uint64) string {
	str := "max"
	if quota > 0 {
		str = strconv.FormatInt(quota, 10)
	}
	if period == 0 {
		period = configs.DefaultCpuPeriod
	}
	return str + " " + strconv.FormatUint(period, 10)
}

func setCPU(dirPath string, r *configs.Resources) error {
	if !isCpuSet(r) {
		return nil
	}
	return cgroups.WriteFile(dirPath, "cpu.max", cpuMax(r.CpuQuota, r.CpuPeriod))
}

func statCpu(dirPath string, stats *cgroups.Stats) error {
	const file = "cpu.stat"
	f, err := cgroups.OpenFile(dirPath, file, os.O_RDONLY)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		t, v, err := cgroups.ParseKeyValue(sc.Text())
		if err != nil {
			return &cgroups.ParseError{Path: dirPath, File: file, Err: err}
		}
		switch t {
		case "usage_usec":
			stats.CpuStats.CpuUsage.TotalUsage = v * 1000

		case "user_usec":
			stats.CpuStats.CpuUsage.UsageInUsermode = v * 1000

		case "system_usec":
			stats.CpuStats.CpuUsage.UsageInKernelmode = v * 1000

		case "nr_periods":
			stats.CpuStats.ThrottlingData.Periods = v

		case "nr_throttled":
			stats.CpuStats.ThrottlingData.ThrottledPeriods = v

		case "throttled_usec":
			stats.CpuStats.ThrottlingData.ThrottledTime = v * 1000
		}
	}
	if err := sc.Err(); err != nil {
		return &cgroups.ParseError{Path: dirPath, File: file, Err: err}
	}
	return nil
}

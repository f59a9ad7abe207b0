package fs

import (
	"bufio"
	"os"

	"github.com/vortex/libcontainer/cgroups"
	"github.com/vortex/libcontainer/configs"
)

const (
	nanosecondsInSecond = 1000000000

	// The value comes from `C.sysconf(C._SC_CLK_TCK)`, which is 100 on
	// every Linux architecture the runtime is built for.
	clockTicks = 100
)

type CpuacctGroup struct{}

func (s *CpuacctGroup) Name() string {
	return "cpuacct"
}

func (s *CpuacctGroup) Set(_ string, _ *configs.Resources) error {
	return nil
}

func (s *CpuacctGroup) GetStats(path string, stats *cgroups.Stats) error {
	if !cgroups.PathExists(path) {
		return nil
	}
	total, err := cgroups.GetCgroupParamUint(path, "cpuacct.usage")
	if err != nil {
		return err
	}
	user, kernel, err := getCpuUsageBreakdown(path)
	if err != nil {
		return err
	}
	stats.CpuStats.CpuUsage.TotalUsage = total
	stats.CpuStats.CpuUsage.UsageInUsermode = user
	stats.CpuStats.CpuUsage.UsageInKernelmode = kernel
	return nil
}

// Returns user and kernel usage breakdown in nanoseconds.
func getCpuUsageBreakdown(path string) (uint64, uint64, error) {
	const file = "cpuacct.stat"
	f, err := cgroups.OpenFile(path, file, os.O_RDONLY)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	var user, kernel uint64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		t, v, err := cgroups.ParseKeyValue(sc.Text())
		if err != nil {
			return 0, 0, &cgroups.ParseError{Path: path, File: file, Err: err}
		}
		switch t {
		case "user":
			user = v * nanosecondsInSecond / clockTicks
		case "system":
			kernel = v * nanosecondsInSecond / clockTicks
		}
	}
	return user, kernel, sc.Err()
}

package fs

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/vortex/libcontainer/cgroups"
	"github.com/vortex/libcontainer/configs"
)

const (
	cgroupMemorySwapLimit = "memory.memsw.limit_in_bytes"
	cgroupMemoryLimit     = "memory.limit_in_bytes"
)

type MemoryGroup struct{}

func (s *MemoryGroup) Name() string {
	return "memory"
}

func (s *MemoryGroup) Set(path string, r *configs.Resources) error {
	if r.Memory != 0 {
		if err := cgroups.WriteFile(path, cgroupMemoryLimit, strconv.FormatInt(r.Memory, 10)); err != nil {
			return err
		}
	}
	if r.MemorySwap != 0 {
		if err := cgroups.WriteFile(path, cgroupMemorySwapLimit, strconv.FormatInt(r.MemorySwap, 10)); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("swap limit requested but swap accounting is disabled: %w", err)
			}
			return err
		}
	}
	return nil
}

func (s *MemoryGroup) GetStats(path string, stats *cgroups.Stats) error {
	if !cgroups.PathExists(path) {
		return nil
	}
	usage, err := getMemoryData(path, "")
	if err != nil {
		return err
	}
	stats.MemoryStats.Usage = usage
	swap, err := getMemoryData(path, "memsw")
	if err != nil {
		return err
	}
	stats.MemoryStats.SwapUsage = swap
	return nil
}

func getMemoryData(path, name string) (cgroups.MemoryData, error) {
	memoryData := cgroups.MemoryData{}

	moduleName := "memory"
	if name != "" {
		moduleName = "memory." + name
	}
	var (
		usage    = moduleName + ".usage_in_bytes"
		maxUsage = moduleName + ".max_usage_in_bytes"
		limit    = moduleName + ".limit_in_bytes"
	)

	value, err := cgroups.GetCgroupParamUint(path, usage)
	if err != nil {
		if name != "" && os.IsNotExist(err) {
			// Ignore ENOENT as swap accounting may be disabled.
			return cgroups.MemoryData{}, nil
		}
		return cgroups.MemoryData{}, err
	}
	memoryData.Usage = value
	value, err = cgroups.GetCgroupParamUint(path, maxUsage)
	if err != nil {
		return cgroups.MemoryData{}, err
	}
	memoryData.MaxUsage = value
	value, err = cgroups.GetCgroupParamUint(path, limit)
	if err != nil {
		return cgroups.MemoryData{}, err
	}
	memoryData.Limit = value

	return memoryData, nil
}

package fs2

import (
	"errors"
	"os"
	"strconv"

	"github.com/vortex/libcontainer/cgroups"
	"github.com/vortex/libcontainer/configs"
)

// numToStr converts an int64 value to a string for writing to a
// cgroupv2 files with .min, .max, .low, or .high suffix.
// The value of -1 is converted to "max" for cgroupv1 compatibility
// (which used to write -1 to remove the limit).
func numToStr(value int64) (ret string) {
	switch {
	case value == 0:
		ret = ""
	case value == -1:
		ret = "max"
	default:
		ret = strconv.FormatInt(value, 10)
	}

	return ret
}

// memorySwapToV2 converts the memory+swap limit used by the configuration
// into the swap-only limit kept by memory.swap.max.
func memorySwapToV2(swap, memory int64) int64 {
	if swap == -1 || swap == 0 {
		return swap
	}
	return swap - memory
}

func setMemory(dirPath string, r *configs.Resources) error {
	if swap := numToStr(memorySwapToV2(r.MemorySwap, r.Memory)); swap != "" {
		if err := cgroups.WriteFile(dirPath, "memory.swap.max", swap); err != nil {
			// If swap is not enabled, silently ignore setting to max or disabling it.
			if !(errors.Is(err, os.ErrNotExist) && (swap == "max" || swap == "0")) {
				return err
			}
		}
	}
	if val := numToStr(r.Memory); val != "" {
		if err := cgroups.WriteFile(dirPath, "memory.max", val); err != nil {
			return err
		}
	}
	return nil
}

func statMemory(dirPath string, stats *cgroups.Stats) error {
	current, err := cgroups.GetCgroupParamUint(dirPath, "memory.current")
	if err != nil {
		return err
	}
	// memory.peak only exists since Linux 5.19.
	peak, err := cgroups.GetCgroupParamUint(dirPath, "memory.peak")
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		peak = current
	}
	limit, err := cgroups.GetCgroupParamUint(dirPath, "memory.max")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	stats.MemoryStats.Usage = cgroups.MemoryData{
		Usage:    current,
		MaxUsage: peak,
		Limit:    limit,
	}

	swap, err := cgroups.GetCgroupParamUint(dirPath, "memory.swap.current")
	if err != nil {
		// swap accounting may be disabled
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	swapLimit, err := cgroups.GetCgroupParamUint(dirPath, "memory.swap.max")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	stats.MemoryStats.SwapUsage = cgroups.MemoryData{
		Usage: swap,
		Limit: swapLimit,
	}
	return nil
}

package cgroups

import (
	"math"
	"os"
	"time"
)

type ThrottlingData struct {
	// Number of periods with throttling active
	Periods uint64 `json:"periods,omitempty"`
	// Number of periods when the container hit its throttling limit.
	ThrottledPeriods uint64 `json:"throttled_periods,omitempty"`
	// Aggregate time the container was throttled for in nanoseconds.
	ThrottledTime uint64 `json:"throttled_time,omitempty"`
}

// CpuUsage denotes the usage of a CPU.
// All CPU stats are aggregate since container inception.
type CpuUsage struct {
	// Total CPU time consumed.
	// Units: nanoseconds.
	TotalUsage uint64 `json:"total_usage,omitempty"`
	// Time spent by tasks of the cgroup in kernel mode.
	// Units: nanoseconds.
	UsageInKernelmode uint64 `json:"usage_in_kernelmode"`
	// Time spent by tasks of the cgroup in user mode.
	// Units: nanoseconds.
	UsageInUsermode uint64 `json:"usage_in_usermode"`
}

type CpuStats struct {
	CpuUsage       CpuUsage       `json:"cpu_usage,omitempty"`
	ThrottlingData ThrottlingData `json:"throttling_data,omitempty"`
}

type MemoryData struct {
	Usage    uint64 `json:"usage,omitempty"`
	MaxUsage uint64 `json:"max_usage,omitempty"`
	Limit    uint64 `json:"limit"`
}

type MemoryStats struct {
	Usage     MemoryData `json:"usage,omitempty"`
	SwapUsage MemoryData `json:"swap_usage,omitempty"`
}

type IOStats struct {
	ReadBytes  uint64 `json:"read_bytes"`
	WriteBytes uint64 `json:"write_bytes"`
}

type PidsStats struct {
	// number of pids in the cgroup
	Current uint64 `json:"current,omitempty"`
	// active pids hard limit
	Limit uint64 `json:"limit,omitempty"`
}

type Stats struct {
	CpuStats    CpuStats    `json:"cpu_stats,omitempty"`
	MemoryStats MemoryStats `json:"memory_stats,omitempty"`
	IOStats     IOStats     `json:"io_stats,omitempty"`
	PidsStats   PidsStats   `json:"pids_stats,omitempty"`
}

// unlimitedV1 is what cgroup v1 reports for a memory limit that was never
// set: the largest page aligned int64.
var unlimitedV1 = uint64(int64(math.MaxInt64) &^ int64(os.Getpagesize()-1))

// IsUnlimited reports whether a memory limit read from either hierarchy
// means no limit.
func IsUnlimited(limit uint64) bool {
	return limit == 0 || limit >= unlimitedV1
}

func NewStats() *Stats {
	return &Stats{}
}

// CpuTime returns the total cpu time consumed by the cgroup.
func (s *Stats) CpuTime() time.Duration {
	return time.Duration(s.CpuStats.CpuUsage.TotalUsage)
}

// ThrottledTime returns the aggregate time the cgroup was throttled for.
func (s *Stats) ThrottledTime() time.Duration {
	return time.Duration(s.CpuStats.ThrottlingData.ThrottledTime)
}

// MemoryPercent returns the memory usage as a percentage of the limit, or
// zero when the cgroup has no memory limit.
func (s *Stats) MemoryPercent() float64 {
	limit := s.MemoryStats.Usage.Limit
	if IsUnlimited(limit) {
		return 0
	}
	return float64(s.MemoryStats.Usage.Usage) / float64(limit) * 100
}

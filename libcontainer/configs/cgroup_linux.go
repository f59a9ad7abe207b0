package configs

import (
	systemdDbus "github.com/coreos/go-systemd/v22/dbus"
)

// DefaultCgroupRoot is the directory under the cgroup mountpoint that holds
// one subdirectory per container.
const DefaultCgroupRoot = "vortex"

// DefaultCpuPeriod is the CFS period in microseconds used when converting a
// fractional CPU share into a quota.
const DefaultCpuPeriod uint64 = 100000

type Cgroup struct {
	// Name specifies the name of the cgroup
	Name string `json:"name,omitempty"`

	// Parent specifies the name of parent of cgroup or slice
	Parent string `json:"parent,omitempty"`

	// Path specifies the path to cgroups that are created and/or joined by the container.
	// The path is assumed to be relative to the host system cgroup mountpoint.
	Path string `json:"path"`

	// ScopePrefix describes prefix for the scope name
	ScopePrefix string `json:"scope_prefix"`

	// Resources contains various cgroups settings to apply
	*Resources

	// Systemd tells if systemd should be used to manage cgroups.
	Systemd bool

	// SystemdProps are any additional properties for systemd,
	// derived from org.systemd.property.xxx annotations.
	// Ignored unless systemd is used for managing cgroups.
	SystemdProps []systemdDbus.Property `json:"-"`
}

// Resources are written once, right after the cgroup is created. Zero values
// leave the corresponding limit untouched.
type Resources struct {
	// CPU hardcap limit (in usecs). Allowed cpu time in a given period.
	CpuQuota int64 `json:"cpu_quota"`

	// CPU period to be used for hardcapping (in usecs).
	CpuPeriod uint64 `json:"cpu_period"`

	// Memory limit (in bytes)
	Memory int64 `json:"memory"`

	// Total memory usage (memory + swap); set `-1` to enable unlimited swap
	MemorySwap int64 `json:"memory_swap"`
}

// Unconstrained reports whether no limit is set at all.
func (r *Resources) Unconstrained() bool {
	return r == nil || (r.CpuQuota == 0 && r.Memory == 0 && r.MemorySwap == 0)
}

// Template returns a copy of the cgroup settings with the container specific
// fields cleared, suitable for enumerating siblings.
func (c *Cgroup) Template() *Cgroup {
	return &Cgroup{
		Parent:      c.Parent,
		ScopePrefix: c.ScopePrefix,
		Systemd:     c.Systemd,
	}
}

// ForID returns a copy of the template naming the cgroup of container id.
func (c *Cgroup) ForID(id string) *Cgroup {
	t := c.Template()
	t.Name = id
	return t
}

package systemd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	systemdDbus "github.com/coreos/go-systemd/v22/dbus"
	dbus "github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/vortex/libcontainer/cgroups"
	"github.com/vortex/libcontainer/configs"
)

const (
	// DefaultSlice holds the container scopes unless the config names a
	// different parent.
	DefaultSlice = configs.DefaultCgroupRoot + ".slice"
	// DefaultScopePrefix prefixes every container scope name.
	DefaultScopePrefix = configs.DefaultCgroupRoot

	scopeSuffix = ".scope"
)

var (
	isRunningSystemdOnce sync.Once
	isRunningSystemd     bool
)

func IsRunningSystemd() bool {
	isRunningSystemdOnce.Do(func() {
		fi, err := os.Lstat("/run/systemd/system")
		isRunningSystemd = err == nil && fi.IsDir()
	})
	return isRunningSystemd
}

// ExpandSlice expands a systemd slice name into its cgroup path, e.g.
// "vortex-web.slice" becomes "/vortex.slice/vortex-web.slice".
func ExpandSlice(slice string) (string, error) {
	suffix := ".slice"
	// Name has to end with ".slice", but can't be just ".slice".
	if len(slice) < len(suffix) || !strings.HasSuffix(slice, suffix) {
		return "", fmt.Errorf("invalid slice name: %s", slice)
	}

	// Path-separators are not allowed.
	if strings.Contains(slice, "/") {
		return "", fmt.Errorf("invalid slice name: %s", slice)
	}

	var path, prefix string
	sliceName := strings.TrimSuffix(slice, suffix)
	// if input was -.slice, we should just return root now
	if sliceName == "-" {
		return "/", nil
	}
	for _, component := range strings.Split(sliceName, "-") {
		// test--a.slice isn't permitted, nor is -test.slice.
		if component == "" {
			return "", fmt.Errorf("invalid slice name: %s", slice)
		}

		// Append the component to the path and to the prefix.
		path += "/" + prefix + component + suffix
		prefix += component + "-"
	}
	return path, nil
}

func newProp(name string, units interface{}) systemdDbus.Property {
	return systemdDbus.Property{
		Name:  name,
		Value: dbus.MakeVariant(units),
	}
}

func scopePrefix(c *configs.Cgroup) string {
	if c.ScopePrefix != "" {
		return c.ScopePrefix
	}
	return DefaultScopePrefix
}

func getUnitName(c *configs.Cgroup) string {
	return scopePrefix(c) + "-" + c.Name + scopeSuffix
}

// containerName is the inverse of getUnitName. It reports false for units
// that are not container scopes.
func containerName(c *configs.Cgroup, unit string) (string, bool) {
	prefix := scopePrefix(c) + "-"
	if !strings.HasPrefix(unit, prefix) || !strings.HasSuffix(unit, scopeSuffix) {
		return "", false
	}
	name := strings.TrimSuffix(strings.TrimPrefix(unit, prefix), scopeSuffix)
	return name, name != ""
}

func getSlice(c *configs.Cgroup) string {
	if c.Parent != "" {
		return c.Parent
	}
	return DefaultSlice
}

// resourceProperties converts the container limits into unit properties so
// that systemd itself keeps them if it ever rewrites the cgroup files.
func resourceProperties(r *configs.Resources) []systemdDbus.Property {
	if r == nil {
		return nil
	}
	var props []systemdDbus.Property
	if r.CpuQuota > 0 {
		period := r.CpuPeriod
		if period == 0 {
			period = configs.DefaultCpuPeriod
		}
		// systemd converts CPUQuotaPerSecUSec (microseconds per CPU second) to
		// CPUQuota (integer percentage of CPU) internally. This means that if a
		// fractional percent of CPU is indicated by Resources.CpuQuota, we need
		// to round up to the nearest 10ms (1% of a second) such that child
		// cgroups can set the cpu.cfs_quota_us they expect.
		cpuQuotaPerSecUSec := uint64(r.CpuQuota) * 1000000 / period
		if cpuQuotaPerSecUSec%10000 != 0 {
			cpuQuotaPerSecUSec = ((cpuQuotaPerSecUSec / 10000) + 1) * 10000
		}
		props = append(props, newProp("CPUQuotaPerSecUSec", cpuQuotaPerSecUSec))
	}
	if r.Memory > 0 {
		props = append(props, newProp("MemoryMax", uint64(r.Memory)))
	}
	switch {
	case r.MemorySwap == -1:
		props = append(props, newProp("MemorySwapMax", uint64(cgroups.MaxUint64)))
	case r.MemorySwap > 0 && r.MemorySwap >= r.Memory:
		props = append(props, newProp("MemorySwapMax", uint64(r.MemorySwap-r.Memory)))
	}
	return props
}

func resetFailedUnit(cm *dbusConnManager, name string) {
	err := cm.retryOnDisconnect(func(c *systemdDbus.Conn) error {
		return c.ResetFailedUnitContext(context.TODO(), name)
	})
	if err != nil {
		logrus.Warnf("unable to reset failed unit: %v", err)
	}
}

// startUnit starts a transient unit. A unit of the same name already being
// around is reported as cgroups.ErrCgroupExists.
func startUnit(cm *dbusConnManager, unitName string, properties []systemdDbus.Property) error {
	statusChan := make(chan string, 1)
	err := cm.retryOnDisconnect(func(c *systemdDbus.Conn) error {
		_, err := c.StartTransientUnitContext(context.TODO(), unitName, "fail", properties, statusChan)
		return err
	})
	if err != nil {
		if isUnitExists(err) {
			return fmt.Errorf("%w: unit %s", cgroups.ErrCgroupExists, unitName)
		}
		return err
	}

	timeout := time.NewTimer(30 * time.Second)
	defer timeout.Stop()

	select {
	case s := <-statusChan:
		close(statusChan)
		// Please refer to https://pkg.go.dev/github.com/coreos/go-systemd/v22/dbus#Conn.StartUnit
		if s != "done" {
			resetFailedUnit(cm, unitName)
			return fmt.Errorf("error creating systemd unit `%s`: got `%s`", unitName, s)
		}
	case <-timeout.C:
		resetFailedUnit(cm, unitName)
		return errors.New("Timeout waiting for systemd to create " + unitName)
	}
	return nil
}

func stopUnit(cm *dbusConnManager, unitName string) error {
	statusChan := make(chan string, 1)
	err := cm.retryOnDisconnect(func(c *systemdDbus.Conn) error {
		_, err := c.StopUnitContext(context.TODO(), unitName, "replace", statusChan)
		return err
	})
	if err == nil {
		timeout := time.NewTimer(30 * time.Second)
		defer timeout.Stop()

		select {
		case s := <-statusChan:
			close(statusChan)
			// Please refer to https://godoc.org/github.com/coreos/go-systemd/v22/dbus#Conn.StartUnit
			if s != "done" {
				logrus.Warnf("error removing unit `%s`: got `%s`. Continuing...", unitName, s)
			}
		case <-timeout.C:
			return errors.New("Timed out while waiting for systemd to remove " + unitName)
		}
	}

	// In case of a failed unit, let systemd remove it.
	resetFailedUnit(cm, unitName)

	return nil
}

// isDbusError returns true if the error is a specific dbus error.
func isDbusError(err error, name string) bool {
	if err != nil {
		var derr dbus.Error
		if errors.As(err, &derr) {
			return strings.Contains(derr.Name, name)
		}
	}
	return false
}

// isUnitExists returns true if the error is that a systemd unit already exists.
func isUnitExists(err error) bool {
	return isDbusError(err, "org.freedesktop.systemd1.UnitExists")
}

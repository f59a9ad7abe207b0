package validate

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/sirupsen/logrus"

	"github.com/vortex/libcontainer/configs"
)

const (
	maxIDLength = 64

	// MaxCPUs is the largest fractional CPU share accepted for a container.
	MaxCPUs = 128
	// MaxMemory is the largest memory limit accepted for a container (1 TiB).
	MaxMemory int64 = 1 << 40

	minCpuQuota  = 1000
	minCpuPeriod = 1000
	maxCpuPeriod = 1000000
)

var idRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ErrInvalidID is returned for container ids that cannot be used as a cgroup
// directory name.
var ErrInvalidID = errors.New("invalid container id")

type check func(config *configs.Config) error

func Validate(config *configs.Config) error {
	checks := []check{
		id,
		args,
		hostname,
		namespaces,
		resources,
	}
	for _, c := range checks {
		if err := c(config); err != nil {
			return err
		}
	}
	return nil
}

// ID checks that id is non-empty, at most 64 characters long and made of
// ASCII letters, digits, '-' and '_' only.
func ID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidID)
	case len(id) > maxIDLength:
		return fmt.Errorf("%w: id %q is longer than %d characters", ErrInvalidID, id, maxIDLength)
	case !idRegex.MatchString(id):
		return fmt.Errorf("%w: id %q may only contain letters, digits, '-' and '_'", ErrInvalidID, id)
	}
	return nil
}

func id(config *configs.Config) error {
	return ID(config.ID)
}

func args(config *configs.Config) error {
	if len(config.Args) == 0 || config.Args[0] == "" {
		return errors.New("no command specified")
	}
	return nil
}

// hostname is only meaningful in a private UTS namespace. Without one the
// value is ignored, which is not an error.
func hostname(config *configs.Config) error {
	if config.Hostname != "" && !config.Namespaces.Contains(configs.NEWUTS) {
		logrus.WithField("hostname", config.Hostname).Warn("hostname ignored without a private UTS namespace")
	}
	return nil
}

func namespaces(config *configs.Config) error {
	want := config.NamespaceMode.Namespaces()
	for _, ns := range config.Namespaces {
		if !want.Contains(ns.Type) {
			return fmt.Errorf("namespace %s is not part of the %s mode", ns.Type, config.NamespaceMode)
		}
	}
	return nil
}

func resources(config *configs.Config) error {
	if config.Cgroups == nil {
		return errors.New("cgroups config is missing")
	}
	r := config.Cgroups.Resources
	if r == nil {
		return nil
	}
	if r.CpuQuota < 0 {
		return fmt.Errorf("invalid cpu quota %d", r.CpuQuota)
	}
	if r.CpuQuota > 0 {
		if r.CpuPeriod < minCpuPeriod || r.CpuPeriod > maxCpuPeriod {
			return fmt.Errorf("cpu period %d is outside [%d, %d]", r.CpuPeriod, minCpuPeriod, maxCpuPeriod)
		}
		if r.CpuQuota < minCpuQuota {
			return fmt.Errorf("cpu quota %d is below the minimum of %d", r.CpuQuota, minCpuQuota)
		}
		if r.CpuQuota > int64(r.CpuPeriod)*MaxCPUs {
			return fmt.Errorf("cpu quota %d exceeds %d cpus", r.CpuQuota, MaxCPUs)
		}
	}
	if r.Memory < 0 || r.Memory > MaxMemory {
		return fmt.Errorf("memory limit %d is outside (0, %d]", r.Memory, MaxMemory)
	}
	if r.MemorySwap != 0 && r.MemorySwap != -1 {
		if r.Memory == 0 {
			return errors.New("memory swap limit requires a memory limit")
		}
		if r.MemorySwap < r.Memory {
			return fmt.Errorf("memory+swap limit %d is lower than the memory limit %d", r.MemorySwap, r.Memory)
		}
	}
	return nil
}

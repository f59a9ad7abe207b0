package specconv

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	systemdDbus "github.com/coreos/go-systemd/v22/dbus"
	dbus "github.com/godbus/dbus/v5"
	"github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"

	"github.com/vortex/libcontainer/configs"
)

const (
	// MinCpuQuota is the smallest quota the kernel accepts, in microseconds.
	MinCpuQuota = 1000
	// MaxCPUs is the largest fractional CPU share a container may ask for.
	MaxCPUs = 128
)

var namespaceMapping = map[specs.LinuxNamespaceType]configs.NamespaceType{
	specs.PIDNamespace:     configs.NEWPID,
	specs.NetworkNamespace: configs.NEWNET,
	specs.MountNamespace:   configs.NEWNS,
	specs.UserNamespace:    configs.NEWUSER,
	specs.IPCNamespace:     configs.NEWIPC,
	specs.UTSNamespace:     configs.NEWUTS,
	specs.CgroupNamespace:  configs.NEWCGROUP,
}

type CreateOpts struct {
	CgroupName string
	// CgroupRoot is the directory (or, with systemd, the slice prefix) that
	// holds one cgroup per container.
	CgroupRoot       string
	Spec             *specs.Spec
	UseSystemdCgroup bool
}

// Example returns an example spec file, with the namespaces of an isolated
// container and no resource limits.
func Example() *specs.Spec {
	return &specs.Spec{
		Version: specs.Version,
		Process: &specs.Process{
			Args: []string{"sh"},
			Env: []string{
				"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
				"TERM=xterm",
			},
			Cwd: "/",
		},
		Hostname: "vortex",
		Linux: &specs.Linux{
			Namespaces: []specs.LinuxNamespace{
				{Type: specs.PIDNamespace},
				{Type: specs.UTSNamespace},
				{Type: specs.MountNamespace},
				{Type: specs.IPCNamespace},
			},
		},
	}
}

// CPUQuota converts a fractional CPU share into a CFS quota for the given
// period, e.g. 0.5 with a 100000us period becomes 50000us.
func CPUQuota(cpus float64, period uint64) (int64, error) {
	if math.IsNaN(cpus) || cpus <= 0 || cpus > MaxCPUs {
		return 0, fmt.Errorf("cpu limit %v must be in (0, %d]", cpus, MaxCPUs)
	}
	if period == 0 {
		period = configs.DefaultCpuPeriod
	}
	quota := int64(math.Round(cpus * float64(period)))
	if quota < MinCpuQuota {
		quota = MinCpuQuota
	}
	return quota, nil
}

func linuxResources(spec *specs.Spec) *specs.LinuxResources {
	if spec.Linux == nil {
		spec.Linux = &specs.Linux{}
	}
	if spec.Linux.Resources == nil {
		spec.Linux.Resources = &specs.LinuxResources{}
	}
	return spec.Linux.Resources
}

// SetCPU limits the spec to a fractional number of CPUs.
func SetCPU(spec *specs.Spec, cpus float64, period uint64) error {
	if period == 0 {
		period = configs.DefaultCpuPeriod
	}
	quota, err := CPUQuota(cpus, period)
	if err != nil {
		return err
	}
	linuxResources(spec).CPU = &specs.LinuxCPU{Quota: &quota, Period: &period}
	return nil
}

// SetMemory limits the spec to limit bytes of memory.
func SetMemory(spec *specs.Spec, limit int64) error {
	if limit <= 0 {
		return fmt.Errorf("memory limit %d must be positive", limit)
	}
	r := linuxResources(spec)
	if r.Memory == nil {
		r.Memory = &specs.LinuxMemory{}
	}
	r.Memory.Limit = &limit
	return nil
}

// SetFlat removes every namespace from the spec.
func SetFlat(spec *specs.Spec) {
	if spec.Linux != nil {
		spec.Linux.Namespaces = nil
	}
}

// getwd is a wrapper similar to os.Getwd, except it always gets
// the value from the kernel, which guarantees the returned value
// to be absolute and clean.
func getwd() (wd string, err error) {
	for {
		wd, err = unix.Getwd()
		//nolint:errorlint // unix errors are bare
		if err != unix.EINTR {
			break
		}
	}
	return wd, os.NewSyscallError("getwd", err)
}

// CreateLibcontainerConfig creates a new libcontainer configuration from a
// given specification and a cgroup name
func CreateLibcontainerConfig(opts *CreateOpts) (*configs.Config, error) {
	spec := opts.Spec
	if spec == nil {
		return nil, errors.New("spec must be specified")
	}
	if spec.Process == nil {
		return nil, errors.New("process must be specified")
	}
	// The process runs from the caller's directory unless told otherwise.
	cwd := spec.Process.Cwd
	if cwd == "" {
		var err error
		if cwd, err = getwd(); err != nil {
			return nil, err
		}
	}
	labels := []string{}
	for k, v := range spec.Annotations {
		labels = append(labels, k+"="+v)
	}
	sort.Strings(labels)
	config := &configs.Config{
		ID:       opts.CgroupName,
		Hostname: spec.Hostname,
		Args:     spec.Process.Args,
		Env:      spec.Process.Env,
		Cwd:      cwd,
		Labels:   labels,
	}

	mode, namespaces, err := createNamespaces(spec)
	if err != nil {
		return nil, err
	}
	config.NamespaceMode = mode
	config.Namespaces = namespaces

	c, err := CreateCgroupConfig(opts)
	if err != nil {
		return nil, err
	}
	config.Cgroups = c
	return config, nil
}

// createNamespaces maps the namespaces of the spec onto one of the two
// namespace modes. Any other combination is rejected.
func createNamespaces(spec *specs.Spec) (configs.NamespaceMode, configs.Namespaces, error) {
	var namespaces configs.Namespaces
	if spec.Linux != nil {
		for _, ns := range spec.Linux.Namespaces {
			t, exists := namespaceMapping[ns.Type]
			if !exists {
				return 0, nil, fmt.Errorf("namespace %q does not exist", ns.Type)
			}
			if ns.Path != "" {
				return 0, nil, fmt.Errorf("joining the %s namespace at %s is not supported", ns.Type, ns.Path)
			}
			if namespaces.Contains(t) {
				return 0, nil, fmt.Errorf("malformed spec file: duplicated ns %q", ns)
			}
			namespaces.Add(t, "")
		}
	}
	for _, mode := range []configs.NamespaceMode{configs.Isolated, configs.Flat} {
		want := mode.Namespaces()
		if len(want) != len(namespaces) {
			continue
		}
		match := true
		for _, ns := range namespaces {
			if !want.Contains(ns.Type) {
				match = false
				break
			}
		}
		if match {
			return mode, want, nil
		}
	}
	return 0, nil, fmt.Errorf("namespace set %v matches neither the %s nor the %s mode", namespaces, configs.Isolated, configs.Flat)
}

// CreateCgroupConfig returns the cgroup settings of the container named by
// opts. Without a spec the result has no resources, which is what looking up
// an existing container needs.
func CreateCgroupConfig(opts *CreateOpts) (*configs.Cgroup, error) {
	root := opts.CgroupRoot
	if root == "" {
		root = configs.DefaultCgroupRoot
	}
	c := &configs.Cgroup{
		Name:      opts.CgroupName,
		Parent:    root,
		Systemd:   opts.UseSystemdCgroup,
		Resources: &configs.Resources{},
	}
	if opts.UseSystemdCgroup {
		if strings.Contains(root, "/") {
			return nil, fmt.Errorf("cgroup root %q cannot be used as a systemd slice", root)
		}
		c.Parent = root + ".slice"
		c.ScopePrefix = root
	}

	spec := opts.Spec
	if spec == nil {
		return c, nil
	}
	if opts.UseSystemdCgroup {
		sp, err := initSystemdProps(spec)
		if err != nil {
			return nil, err
		}
		c.SystemdProps = sp
	}
	if spec.Linux == nil || spec.Linux.Resources == nil {
		return c, nil
	}
	r := spec.Linux.Resources
	if r.CPU != nil {
		if r.CPU.Quota != nil {
			c.Resources.CpuQuota = *r.CPU.Quota
		}
		if r.CPU.Period != nil {
			c.Resources.CpuPeriod = *r.CPU.Period
		}
	}
	if r.Memory != nil {
		if r.Memory.Limit != nil {
			c.Resources.Memory = *r.Memory.Limit
		}
		if r.Memory.Swap != nil {
			c.Resources.MemorySwap = *r.Memory.Swap
		}
	}
	return c, nil
}

// checkPropertyName checks if systemd property name is valid. A valid name
// should consist of latin letters only, and have least 3 of them.
func checkPropertyName(s string) error {
	if len(s) < 3 {
		return errors.New("too short")
	}
	// Check ASCII characters rather than Unicode runes,
	// so we have to use indexes rather than range.
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') {
			continue
		}
		return errors.New("contains non-alphabetic character")
	}
	return nil
}

// Some systemd properties are documented as having "Sec" suffix
// (e.g. TimeoutStopSec) but are expected to have "USec" suffix
// here, so let's provide conversion to improve compatibility.
func convertSecToUSec(value dbus.Variant) (dbus.Variant, error) {
	var sec uint64
	const M = 1000000
	vi := value.Value()
	switch value.Signature().String() {
	case "y":
		sec = uint64(vi.(byte)) * M
	case "n":
		sec = uint64(vi.(int16)) * M
	case "q":
		sec = uint64(vi.(uint16)) * M
	case "i":
		sec = uint64(vi.(int32)) * M
	case "u":
		sec = uint64(vi.(uint32)) * M
	case "x":
		sec = uint64(vi.(int64)) * M
	case "t":
		sec = vi.(uint64) * M
	case "d":
		sec = uint64(vi.(float64) * M)
	default:
		return value, errors.New("not a number")
	}
	return dbus.MakeVariant(sec), nil
}

// initSystemdProps turns "org.systemd.property.<Name>" annotations into
// properties of the container's scope unit.
func initSystemdProps(spec *specs.Spec) ([]systemdDbus.Property, error) {
	const keyPrefix = "org.systemd.property."
	var sp []systemdDbus.Property

	keys := make([]string, 0, len(spec.Annotations))
	for k := range spec.Annotations {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := spec.Annotations[k]
		name := strings.TrimPrefix(k, keyPrefix)
		if len(name) == len(k) { // prefix not there
			continue
		}
		if err := checkPropertyName(name); err != nil {
			return nil, fmt.Errorf("annotation %s name incorrect: %w", k, err)
		}
		value, err := dbus.ParseVariant(v, dbus.Signature{})
		if err != nil {
			return nil, fmt.Errorf("annotation %s=%s value parse error: %w", k, v, err)
		}
		// Check for Sec suffix.
		if trimName := strings.TrimSuffix(name, "Sec"); len(trimName) < len(name) {
			// Check for a lowercase ascii a-z just before Sec.
			if ch := trimName[len(trimName)-1]; ch >= 'a' && ch <= 'z' {
				// Convert from Sec to USec.
				name = trimName + "USec"
				value, err = convertSecToUSec(value)
				if err != nil {
					return nil, fmt.Errorf("annotation %s=%s value parse error: %w", k, v, err)
				}
			}
		}
		sp = append(sp, systemdDbus.Property{Name: name, Value: value})
	}

	return sp, nil
}

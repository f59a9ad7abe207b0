package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/vortex/libcontainer/cgroups"
	"github.com/vortex/libcontainer/configs"
)

// primary is the hierarchy whose directory decides whether the container
// exists. Its mkdir is the one that claims the id.
const primary = "cpu"

type Manager struct {
	mu      sync.Mutex
	cgroups *configs.Cgroup
	paths   map[string]string
}

var subsystems = []subsystem{
	&CpuGroup{},
	&CpuacctGroup{},
	&MemoryGroup{},
	&PidsGroup{},
	&BlkioGroup{},
}

func init() {
	// If using cgroups-hybrid mode then add a "" controller indicating
	// it should join the cgroups v2.
	if cgroups.IsCgroup2HybridMode() {
		subsystems = append(subsystems, &NameGroup{GroupName: ""})
	}
}

type subsystem interface {
	// Name returns the name of the subsystem.
	Name() string
	// GetStats fills in the stats for the subsystem.
	GetStats(path string, stats *cgroups.Stats) error
	// Set sets the cgroup resources.
	Set(path string, r *configs.Resources) error
}

func NewManager(cg *configs.Cgroup, paths map[string]string) (*Manager, error) {
	if cg == nil {
		return nil, errors.New("cgroup config is nil")
	}
	if paths == nil {
		var err error
		paths, err = initPaths(cg)
		if err != nil {
			return nil, err
		}
	}
	if paths[primary] == "" {
		return nil, fmt.Errorf("cgroup v1 %s hierarchy is required", primary)
	}
	return &Manager{
		cgroups: cg,
		paths:   paths,
	}, nil
}

// isIgnorableError returns whether err is a permission error (in the loose
// sense of the word). This includes EROFS (which for an unprivileged user is
// basically a permission error) and EACCES (for similar reasons) as well as
// the normal EPERM. Only optional hierarchies may ignore them.
func isIgnorableError(name string, err error) bool {
	if name != "" {
		return false
	}
	return errors.Is(err, os.ErrPermission) || errors.Is(err, os.ErrExist)
}

// uniquePaths returns the distinct directories of the manager, primary
// first. Co-mounted hierarchies such as cpu,cpuacct share one directory.
func (m *Manager) uniquePaths() []string {
	seen := map[string]bool{}
	out := []string{}
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	add(m.paths[primary])
	for _, sys := range subsystems {
		add(m.paths[sys.Name()])
	}
	return out
}

func (m *Manager) Create() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.paths[primary]
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	if err := os.Mkdir(p, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", cgroups.ErrCgroupExists, p)
		}
		return err
	}
	for name, path := range m.paths {
		if path == p {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			if isIgnorableError(name, err) {
				logrus.WithError(err).Debugf("ignoring %q hierarchy", name)
				delete(m.paths, name)
				continue
			}
			return multierror.Append(fmt.Errorf("create %s cgroup: %w", name, err), m.destroy())
		}
	}
	return nil
}

func (m *Manager) Apply(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.uniquePaths() {
		if err := cgroups.WriteCgroupProc(p, pid); err != nil {
			if p != m.paths[""] {
				return err
			}
			logrus.WithError(err).Debug("unable to join the unified hierarchy")
		}
	}
	return nil
}

func (m *Manager) Set(r *configs.Resources) error {
	if r == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sys := range subsystems {
		path := m.paths[sys.Name()]
		if path == "" {
			if sys.Name() == "memory" && (r.Memory != 0 || r.MemorySwap != 0) {
				return errors.New("memory limit set but the memory cgroup hierarchy is not mounted")
			}
			continue
		}
		if err := sys.Set(path, r); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) GetPids() ([]int, error) {
	return cgroups.GetPids(m.Path(primary))
}

func (m *Manager) GetStats() (*cgroups.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !cgroups.PathExists(m.paths[primary]) {
		return nil, cgroups.ErrCgroupNotExist
	}
	stats := cgroups.NewStats()
	for _, sys := range subsystems {
		path := m.paths[sys.Name()]
		if path == "" {
			continue
		}
		if err := sys.GetStats(path, stats); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

func (m *Manager) Kill() error {
	return cgroups.KillAll(m.Path(primary))
}

func (m *Manager) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroy()
}

func (m *Manager) destroy() error {
	var result *multierror.Error
	pids, err := cgroups.GetPids(m.paths[primary])
	if err != nil {
		result = multierror.Append(result, err)
	}
	if len(pids) > 0 {
		if err := cgroups.KillAll(m.paths[primary]); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, p := range m.uniquePaths() {
		if err := cgroups.RemovePathRetry(p); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (m *Manager) Exists() bool {
	return cgroups.PathExists(m.Path(primary))
}

func (m *Manager) Path(subsys string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paths[subsys]
}

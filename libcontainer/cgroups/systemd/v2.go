package systemd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	systemdDbus "github.com/coreos/go-systemd/v22/dbus"
	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/vortex/libcontainer/cgroups"
	"github.com/vortex/libcontainer/cgroups/fs2"
	"github.com/vortex/libcontainer/configs"
)

// UnifiedManager runs every container as a transient scope unit. The
// cgroup itself is owned by systemd, the files below it are accessed through
// an fs2 manager.
type UnifiedManager struct {
	mu      sync.Mutex
	cgroups *configs.Cgroup
	// path is like "/sys/fs/cgroup/vortex.slice/vortex-demo.scope"
	path      string
	dbus      *dbusConnManager
	fsMgr     cgroups.Manager
	resources *configs.Resources
	started   bool
	// lost is set when Apply found the unit started by someone else.
	lost bool
}

func NewUnifiedManager(config *configs.Cgroup, path string) (*UnifiedManager, error) {
	m := &UnifiedManager{
		cgroups: config,
		path:    path,
		dbus:    newDbusConnManager(),
	}
	if err := m.initPath(); err != nil {
		return nil, err
	}

	fsMgr, err := fs2.NewManager(config, m.path)
	if err != nil {
		return nil, err
	}
	m.fsMgr = fsMgr
	return m, nil
}

func (m *UnifiedManager) initPath() error {
	if m.path != "" {
		return nil
	}
	if m.cgroups.Name == "" {
		return errors.New("cgroup name is empty")
	}
	slice, err := ExpandSlice(getSlice(m.cgroups))
	if err != nil {
		return err
	}
	m.path, err = securejoin.SecureJoin(fs2.UnifiedMountpoint, filepath.Join(slice, getUnitName(m.cgroups)))
	return err
}

// Create only checks for a conflict. The scope cannot exist without a
// process, so the claim itself happens when Apply starts the unit.
func (m *UnifiedManager) Create() error {
	if m.fsMgr.Exists() {
		return fmt.Errorf("%w: %s", cgroups.ErrCgroupExists, m.path)
	}
	return nil
}

func (m *UnifiedManager) Apply(pid int) error {
	var (
		c          = m.cgroups
		unitName   = getUnitName(c)
		properties []systemdDbus.Property
	)
	m.mu.Lock()
	defer m.mu.Unlock()

	properties = append(properties,
		systemdDbus.PropDescription("vortex container "+c.Name),
		systemdDbus.PropSlice(getSlice(c)),
		// Assume scopes always support delegation (supported since systemd v218).
		newProp("Delegate", true),
	)

	// only add pid if its valid, -1 is used w/ general slice creation.
	if pid != -1 {
		properties = append(properties, newProp("PIDs", []uint32{uint32(pid)}))
	}

	// Always enable accounting, this gets us the same behaviour as the fs implementation,
	// plus the kernel has some problems with joining the memory cgroup at a later time.
	properties = append(properties,
		newProp("MemoryAccounting", true),
		newProp("CPUAccounting", true),
		newProp("IOAccounting", true),
		newProp("TasksAccounting", true),
	)

	// Assume DefaultDependencies= will always work (the check for it was previously broken.)
	properties = append(properties,
		newProp("DefaultDependencies", false))

	properties = append(properties, resourceProperties(m.resources)...)
	properties = append(properties, c.SystemdProps...)

	if err := startUnit(m.dbus, unitName, properties); err != nil {
		m.lost = errors.Is(err, cgroups.ErrCgroupExists)
		return fmt.Errorf("unable to start unit %q (properties %+v): %w", unitName, properties, err)
	}
	m.started = true

	// systemd rounds the quota, the exact value goes to the files.
	if err := m.fsMgr.Set(m.resources); err != nil {
		return err
	}
	return nil
}

// Set keeps the limits for the unit properties. Once the unit is running
// they are written to the cgroup files directly.
func (m *UnifiedManager) Set(r *configs.Resources) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources = r
	if !m.started {
		return nil
	}
	return m.fsMgr.Set(r)
}

func (m *UnifiedManager) GetPids() ([]int, error) {
	return m.fsMgr.GetPids()
}

func (m *UnifiedManager) GetStats() (*cgroups.Stats, error) {
	return m.fsMgr.GetStats()
}

func (m *UnifiedManager) Kill() error {
	return m.fsMgr.Kill()
}

func (m *UnifiedManager) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	unitName := getUnitName(m.cgroups)
	if m.lost {
		// The unit and its cgroup belong to the manager that started it.
		logrus.Debugf("not destroying %s, it was started by another process", unitName)
		return nil
	}
	var result *multierror.Error
	if err := stopUnit(m.dbus, unitName); err != nil {
		result = multierror.Append(result, err)
	}
	// systemd normally removes the cgroup with the unit. A scope that was
	// never started, or one stopped already, leaves nothing behind.
	if err := m.fsMgr.Destroy(); err != nil {
		result = multierror.Append(result, err)
	}
	m.started = false
	if err := result.ErrorOrNil(); err != nil {
		logrus.WithError(err).Debugf("destroying %s", unitName)
		return err
	}
	return nil
}

func (m *UnifiedManager) Exists() bool {
	return m.fsMgr.Exists()
}

func (m *UnifiedManager) Path(_ string) string {
	return m.path
}

// List returns the names of the containers that have a scope in the slice
// of c.
func List(c *configs.Cgroup) ([]string, error) {
	slice, err := ExpandSlice(getSlice(c))
	if err != nil {
		return nil, err
	}
	dir, err := securejoin.SecureJoin(fs2.UnifiedMountpoint, slice)
	if err != nil {
		return nil, err
	}
	units, err := cgroups.ListChildren(dir)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, unit := range units {
		if strings.HasSuffix(unit, ".slice") {
			continue
		}
		if name, ok := containerName(c, unit); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

package libcontainer

import (
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/vortex/libcontainer/cgroups"
	"github.com/vortex/libcontainer/cgroups/manager"
	"github.com/vortex/libcontainer/configs"
	"github.com/vortex/libcontainer/configs/validate"
)

var (
	// InitPath is the binary re-executed as the container's init process.
	InitPath = "/proc/self/exe"
	// InitArgs are the arguments of the init process. The binary must
	// call StartInitialization when run with them.
	InitArgs = []string{os.Args[0], "init"}
)

var newCgroupManager = manager.New

// Create claims the container id by creating its cgroup and writes the
// resource limits. The cgroup is removed again when the limits can not be
// written.
func Create(id string, config *configs.Config) (*Container, error) {
	if err := validate.ID(id); err != nil {
		return nil, err
	}
	if config.ID == "" {
		config.ID = id
	}
	if config.ID != id {
		return nil, fmt.Errorf("container id %q does not match config id %q", id, config.ID)
	}
	if config.Cgroups == nil {
		return nil, errors.New("cgroup config must be specified")
	}
	if config.Cgroups.Name == "" && config.Cgroups.Path == "" {
		config.Cgroups.Name = id
	}
	if err := validate.Validate(config); err != nil {
		return nil, err
	}

	cm, err := newCgroupManager(config.Cgroups)
	if err != nil {
		return nil, &ControllerCreateError{ID: id, Err: err}
	}
	if err := cm.Create(); err != nil {
		if errors.Is(err, cgroups.ErrCgroupExists) {
			err = fmt.Errorf("%w: %v", ErrExist, err)
		}
		return nil, &ControllerCreateError{ID: id, Err: err}
	}
	if err := cm.Set(config.Cgroups.Resources); err != nil {
		if derr := cm.Destroy(); derr != nil {
			err = multierror.Append(err, derr)
		}
		return nil, &ControllerCreateError{ID: id, Err: err}
	}
	logrus.WithFields(logrus.Fields{"id": id, "path": cm.Path("")}).Debug("container created")
	return newContainer(id, config, cm, Created), nil
}

// Load returns the container id found below the cgroup root described by
// template. Only the cgroup is consulted.
func Load(id string, template *configs.Cgroup) (*Container, error) {
	if err := validate.ID(id); err != nil {
		return nil, err
	}
	cm, err := newCgroupManager(template.ForID(id))
	if err != nil {
		return nil, err
	}
	if !cm.Exists() {
		return nil, &ControllerLookupError{ID: id}
	}
	state := Stopped
	if pids, err := cm.GetPids(); err == nil && len(pids) > 0 {
		state = Running
	}
	config := &configs.Config{ID: id, Cgroups: template.ForID(id)}
	return newContainer(id, config, cm, state), nil
}

func newContainer(id string, config *configs.Config, cm cgroups.Manager, state Status) *Container {
	return &Container{
		id:            id,
		config:        config,
		cgroupManager: cm,
		initPath:      InitPath,
		initArgs:      InitArgs,
		clock:         clockwork.NewRealClock(),
		stopTimeout:   DefaultStopTimeout,
		state:         state,
	}
}

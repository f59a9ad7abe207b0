package libcontainer

import (
	"errors"
	"fmt"

	"github.com/vortex/libcontainer/configs/validate"
)

var (
	ErrExist     = errors.New("container with given ID already exists")
	ErrNotExist  = errors.New("container does not exist")
	ErrInvalidID = validate.ErrInvalidID
)

// ControllerCreateError is returned when the cgroup of a new container can
// not be created or its limits can not be written.
type ControllerCreateError struct {
	ID  string
	Err error
}

func (e *ControllerCreateError) Error() string {
	return fmt.Sprintf("failed to create controller for container %s: %v", e.ID, e.Err)
}

func (e *ControllerCreateError) Unwrap() error { return e.Err }

// ControllerLookupError is returned for a container whose cgroup does not
// exist, either because it was never created or because it is already gone.
type ControllerLookupError struct {
	ID string
}

func (e *ControllerLookupError) Error() string {
	return fmt.Sprintf("failed to create controller for container %s: %v", e.ID, ErrNotExist)
}

func (e *ControllerLookupError) Unwrap() error { return ErrNotExist }

// NamespaceError is returned when a namespace can not be created or set up.
type NamespaceError struct {
	Op  string
	Err error
}

func (e *NamespaceError) Error() string {
	return fmt.Sprintf("namespace %s: %v", e.Op, e.Err)
}

func (e *NamespaceError) Unwrap() error { return e.Err }

// ExecError is returned when the container's command can not be executed.
type ExecError struct {
	Path string
	Err  error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("exec %s: %v", e.Path, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// SupervisionError is returned by Stop when processes of the container are
// still alive after SIGKILL.
type SupervisionError struct {
	ID   string
	Pids []int
	Err  error
}

func (e *SupervisionError) Error() string {
	return fmt.Sprintf("container %s: processes %v still running: %v", e.ID, e.Pids, e.Err)
}

func (e *SupervisionError) Unwrap() error { return e.Err }

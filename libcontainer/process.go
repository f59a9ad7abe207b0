package libcontainer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/vortex/libcontainer/utils"
)

var errInvalidProcess = errors.New("invalid process")

type processOperations interface {
	wait() (*os.ProcessState, error)
	signal(sig os.Signal) error
	pid() int
}

// Process specifies the configuration and IO for the container's process.
// Empty Args, Env and Cwd are taken from the container's config.
type Process struct {
	// The command to be run followed by any arguments.
	Args []string

	// Env specifies the environment variables for the process.
	Env []string

	// Cwd will change the processes current working directory inside the container's rootfs.
	Cwd string

	// Stdin is a pointer to a reader which provides the standard input stream.
	Stdin io.Reader

	// Stdout is a pointer to a writer which receives the standard output stream.
	Stdout io.Writer

	// Stderr is a pointer to a writer which receives the standard error stream.
	Stderr io.Writer

	// ExtraFiles specifies additional open files to be inherited by the container
	ExtraFiles []*os.File

	ops processOperations
}

// Wait waits for the process to exit.
// Wait releases any resources associated with the Process
func (p Process) Wait() (*os.ProcessState, error) {
	if p.ops == nil {
		return nil, errInvalidProcess
	}
	return p.ops.wait()
}

// Pid returns the process ID
func (p Process) Pid() (int, error) {
	// math.MinInt32 is returned here, because it's invalid value
	// for the kill() system call.
	if p.ops == nil {
		return -1 << 31, errInvalidProcess
	}
	return p.ops.pid(), nil
}

// Signal sends a signal to the Process.
func (p Process) Signal(sig os.Signal) error {
	if p.ops == nil {
		return errInvalidProcess
	}
	return p.ops.signal(sig)
}

// ExitOutcome is how the container's process ended: with an exit code or
// killed by a signal.
type ExitOutcome struct {
	Code   int         `json:"code"`
	Signal unix.Signal `json:"signal,omitempty"`
}

func newExitOutcome(state *os.ProcessState) ExitOutcome {
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		return ExitOutcome{Code: state.ExitCode()}
	}
	if ws.Signaled() {
		return ExitOutcome{Signal: unix.Signal(ws.Signal())}
	}
	return ExitOutcome{Code: utils.ExitStatus(unix.WaitStatus(ws))}
}

// Exited reports whether the process exited on its own.
func (o ExitOutcome) Exited() bool { return o.Signal == 0 }

// Killed reports whether the process was terminated by a signal.
func (o ExitOutcome) Killed() bool { return o.Signal != 0 }

// ExitCode returns the code a shell would report: the exit code, or
// 128 plus the signal number.
func (o ExitOutcome) ExitCode() int {
	if o.Killed() {
		return 128 + int(o.Signal)
	}
	return o.Code
}

func (o ExitOutcome) String() string {
	if o.Killed() {
		return fmt.Sprintf("killed by signal %d (%s)", int(o.Signal), unix.SignalName(o.Signal))
	}
	return fmt.Sprintf("exited with code %d", o.Code)
}

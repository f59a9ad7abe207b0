package libcontainer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/vortex/libcontainer/cgroups"
	"github.com/vortex/libcontainer/utils"
)

var errInitNotReady = errors.New("init process exited before it was ready to exec")

type filePair struct {
	parent *os.File
	child  *os.File
}

type parentProcess interface {
	// pid returns the pid for the running process.
	pid() int

	// start starts the process execution.
	start() error

	// send a SIGKILL to the process and wait for the exit.
	terminate() error

	// wait waits on the process returning the process state.
	wait() (*os.ProcessState, error)

	// exited reports whether the process has been reaped.
	exited() bool

	signal(os.Signal) error
}

type initProcess struct {
	cmd             *exec.Cmd
	messageSockPair filePair
	manager         cgroups.Manager
	config          *initConfig
	cloneFlags      uintptr

	waitOnce sync.Once
	waitDone chan struct{}
	waitErr  error
}

func newInitProcess(cmd *exec.Cmd, pair filePair, manager cgroups.Manager, config *initConfig, cloneFlags uintptr) *initProcess {
	return &initProcess{
		cmd:             cmd,
		messageSockPair: pair,
		manager:         manager,
		config:          config,
		cloneFlags:      cloneFlags,
		waitDone:        make(chan struct{}),
	}
}

func (p *initProcess) pid() int {
	return p.cmd.Process.Pid
}

func (p *initProcess) start() (retErr error) {
	defer p.messageSockPair.parent.Close()
	err := p.cmd.Start()
	_ = p.messageSockPair.child.Close()
	if err != nil {
		return cloneError(p.cmd.Path, p.cloneFlags, err)
	}
	waitInit := initWaiter(p.messageSockPair.parent)
	defer func() {
		if retErr != nil {
			if err := ignoreTerminateErrors(p.terminate()); err != nil {
				logrus.WithError(err).Warn("unable to terminate initProcess")
			}
		}
	}()

	// The child blocks on the pipe until it gets its config, so it is in
	// the cgroup before it execs.
	if err := p.manager.Apply(p.pid()); err != nil {
		return fmt.Errorf("unable to apply cgroup configuration: %w", err)
	}
	if err := utils.WriteJSON(p.messageSockPair.parent, p.config); err != nil {
		// A child that died early closed the pipe; its report explains why.
		if ierr := p.initError(<-waitInit); ierr != nil {
			return ierr
		}
		return fmt.Errorf("can't copy bootstrap data to pipe: %w", err)
	}

	return p.initError(<-waitInit)
}

func (p *initProcess) initError(err error) error {
	if errors.Is(err, errInitNotReady) {
		return &ExecError{Path: p.cmd.Path, Err: err}
	}
	return err
}

// initWaiter reports the outcome of the init process' setup: nil once the
// pipe is closed by exec after the ready message, or the error the child
// sent. A pipe closed before the child was ready yields errInitNotReady.
func initWaiter(r io.Reader) chan error {
	ch := make(chan error, 1)
	go func() {
		defer close(ch)

		dec := json.NewDecoder(r)
		ready := false
		for {
			var perr procError
			if err := dec.Decode(&perr); err != nil {
				switch {
				case errors.Is(err, io.EOF) && ready:
					ch <- nil
				case errors.Is(err, io.EOF):
					ch <- errInitNotReady
				default:
					ch <- fmt.Errorf("waiting for init preliminary setup: %w", err)
				}
				return
			}
			if perr.Stage == stageReady {
				ready = true
				continue
			}
			ch <- perr.err()
			return
		}
	}()
	return ch
}

// wait is safe to call more than once; the process is reaped only once.
func (p *initProcess) wait() (*os.ProcessState, error) {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// A non-zero exit is an outcome, not an error.
			err = nil
		}
		p.waitErr = err
		close(p.waitDone)
	})
	<-p.waitDone
	return p.cmd.ProcessState, p.waitErr
}

func (p *initProcess) exited() bool {
	select {
	case <-p.waitDone:
		return true
	default:
		return false
	}
}

func (p *initProcess) terminate() error {
	if p.cmd.Process == nil {
		return nil
	}
	err := p.cmd.Process.Kill()
	if _, werr := p.wait(); err == nil {
		err = werr
	}
	return err
}

func (p *initProcess) signal(sig os.Signal) error {
	s, ok := sig.(unix.Signal)
	if !ok {
		return errors.New("os: unsupported signal type")
	}
	return unix.Kill(p.pid(), s)
}

func ignoreTerminateErrors(err error) error {
	if err == nil || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

package libcontainer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/vortex/libcontainer/cgroups"
	"github.com/vortex/libcontainer/configs"
	"github.com/vortex/libcontainer/utils"
)

const (
	// DefaultStopTimeout is how long Stop waits after SIGTERM before
	// escalating to SIGKILL.
	DefaultStopTimeout = 5 * time.Second

	stopPollInterval = 50 * time.Millisecond
)

// killTimeout is how long Stop waits for the processes to vanish after SIGKILL.
var killTimeout = 2 * time.Second

var errSurvivedKill = errors.New("processes survived SIGKILL")

// Sampler runs alongside a supervised container until its context is
// cancelled.
type Sampler interface {
	Run(ctx context.Context) error
}

type Container struct {
	id            string
	config        *configs.Config
	cgroupManager cgroups.Manager
	initProcess   parentProcess
	initPath      string
	initArgs      []string
	clock         clockwork.Clock
	stopTimeout   time.Duration
	m             sync.Mutex
	state         Status
}

// ID returns the container's unique ID
func (c *Container) ID() string {
	return c.id
}

// Config returns the container's configuration
func (c *Container) Config() configs.Config {
	return *c.config
}

// Status returns the current status of the container.
func (c *Container) Status() Status {
	c.m.Lock()
	defer c.m.Unlock()
	return c.state
}

// SetStopTimeout changes the grace period Stop and Supervise give the
// container's processes between SIGTERM and SIGKILL.
func (c *Container) SetStopTimeout(d time.Duration) {
	c.m.Lock()
	defer c.m.Unlock()
	c.stopTimeout = d
}

// Processes returns the pids of the processes in the container's cgroup.
func (c *Container) Processes() ([]int, error) {
	pids, err := c.cgroupManager.GetPids()
	if err != nil {
		return nil, fmt.Errorf("unable to get all container pids: %w", err)
	}
	return pids, nil
}

// Stats returns the resource usage of the container. It fails with a
// ControllerLookupError once the container's cgroup is gone.
func (c *Container) Stats() (*cgroups.Stats, error) {
	if !c.cgroupManager.Exists() {
		return nil, &ControllerLookupError{ID: c.id}
	}
	stats, err := c.cgroupManager.GetStats()
	if err != nil {
		if errors.Is(err, cgroups.ErrCgroupNotExist) {
			return nil, &ControllerLookupError{ID: c.id}
		}
		return nil, fmt.Errorf("unable to get container cgroup stats: %w", err)
	}
	return stats, nil
}

// Create new init process.
func (c *Container) newInitProcess(p *Process, cmd *exec.Cmd, messageSockPair filePair, cloneFlags uintptr) *initProcess {
	cfg := &initConfig{
		Args:       c.config.Args,
		Env:        c.config.Env,
		Cwd:        c.config.Cwd,
		Hostname:   c.config.Hostname,
		Namespaces: c.config.Namespaces,
	}
	if len(p.Args) > 0 {
		cfg.Args = p.Args
	}
	if p.Env != nil {
		cfg.Env = p.Env
	}
	if p.Cwd != "" {
		cfg.Cwd = p.Cwd
	}
	return newInitProcess(cmd, messageSockPair, c.cgroupManager, cfg, cloneFlags)
}

func (c *Container) newParentProcess(p *Process) (parentProcess, error) {
	cloneFlags, err := prepareNamespaces(c.config)
	if err != nil {
		return nil, err
	}
	parentInitPipe, childInitPipe, err := utils.NewSockPair("init")
	if err != nil {
		return nil, fmt.Errorf("unable to create init pipe: %w", err)
	}
	messageSockPair := filePair{parentInitPipe, childInitPipe}

	cmd := exec.Command(c.initPath, c.initArgs[1:]...)
	cmd.Args[0] = c.initArgs[0]
	cmd.Stdin = p.Stdin
	cmd.Stdout = p.Stdout
	cmd.Stderr = p.Stderr
	cmd.ExtraFiles = append(cmd.ExtraFiles, p.ExtraFiles...)
	cmd.ExtraFiles = append(cmd.ExtraFiles, childInitPipe)
	cmd.Env = []string{
		fmt.Sprintf("%s=%d", initPipeEnv, 3+len(cmd.ExtraFiles)-1),
	}
	cmd.SysProcAttr = sysProcAttr(cloneFlags)
	return c.newInitProcess(p, cmd, messageSockPair, cloneFlags), nil
}

// Start starts the container's process. The container must be in the
// Created state.
func (c *Container) Start(process *Process) error {
	c.m.Lock()
	defer c.m.Unlock()
	if c.state != Created {
		return fmt.Errorf("container %s is %s, not %s", c.id, c.state, Created)
	}
	if err := c.start(process); err != nil {
		c.state = Failed
		return err
	}
	c.state = Running
	return nil
}

func (c *Container) start(process *Process) error {
	parent, err := c.newParentProcess(process)
	if err != nil {
		return fmt.Errorf("unable to create new parent process: %w", err)
	}
	if err := parent.start(); err != nil {
		if errors.Is(err, cgroups.ErrCgroupExists) {
			// Drivers that claim the cgroup when the process joins it
			// detect a duplicate id only here.
			return &ControllerCreateError{ID: c.id, Err: fmt.Errorf("%w: %v", ErrExist, err)}
		}
		return fmt.Errorf("unable to start container process: %w", err)
	}
	c.initProcess = parent
	process.ops = parent
	logrus.WithFields(logrus.Fields{"id": c.id, "pid": parent.pid()}).Debug("container process started")
	return nil
}

// Signal sends sig to every process of the container.
func (c *Container) Signal(sig unix.Signal) error {
	c.m.Lock()
	defer c.m.Unlock()
	pids, err := c.livePids()
	if err != nil {
		return err
	}
	return signalAll(pids, sig)
}

// livePids returns the processes of the cgroup plus the container's own
// process while this Container still owns it.
func (c *Container) livePids() ([]int, error) {
	pids, err := c.cgroupManager.GetPids()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if c.initProcess != nil && !c.initProcess.exited() {
		own := c.initProcess.pid()
		found := false
		for _, pid := range pids {
			if pid == own {
				found = true
				break
			}
		}
		if !found {
			pids = append(pids, own)
		}
	}
	sort.Ints(pids)
	return pids, nil
}

func signalAll(pids []int, sig unix.Signal) error {
	var result *multierror.Error
	for _, pid := range pids {
		if err := unix.Kill(pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
			result = multierror.Append(result, fmt.Errorf("kill %d: %w", pid, err))
		}
	}
	return result.ErrorOrNil()
}

// Stop terminates the container: SIGTERM, up to timeout for the processes
// to exit, then SIGKILL. The cgroup is destroyed afterwards. Stopping a
// container without processes only destroys it.
func (c *Container) Stop(timeout time.Duration) error {
	c.m.Lock()
	defer c.m.Unlock()
	if c.initProcess != nil {
		// Reap our own process so it does not linger as a zombie.
		go func() { _, _ = c.initProcess.wait() }()
	}

	pids, err := c.livePids()
	if err != nil {
		return err
	}
	log := logrus.WithField("id", c.id)
	if len(pids) > 0 {
		log.WithField("pids", pids).Debug("sending SIGTERM")
		if err := signalAll(pids, unix.SIGTERM); err != nil {
			log.WithError(err).Warn("unable to signal container processes")
		}
		remaining, err := c.waitDrained(timeout)
		if err != nil {
			return err
		}
		if len(remaining) > 0 {
			log.WithField("pids", remaining).Warnf("still running after %s, sending SIGKILL", timeout)
			if err := c.kill(remaining); err != nil {
				log.WithError(err).Warn("unable to kill container processes")
			}
			if remaining, err = c.waitDrained(killTimeout); err != nil {
				return err
			}
			if len(remaining) > 0 {
				serr := &SupervisionError{ID: c.id, Pids: remaining, Err: errSurvivedKill}
				if err := c.destroy(); err != nil {
					serr.Err = multierror.Append(errSurvivedKill, err)
				}
				return serr
			}
		}
	}
	if err := c.destroy(); err != nil {
		return err
	}
	c.state = Stopped
	return nil
}

func (c *Container) kill(pids []int) error {
	err := c.cgroupManager.Kill()
	if c.initProcess != nil && !c.initProcess.exited() {
		if kerr := c.initProcess.signal(unix.SIGKILL); kerr != nil && !errors.Is(kerr, unix.ESRCH) {
			err = multierror.Append(err, kerr)
		}
	}
	if err != nil {
		// Fall back to the pids we know about.
		return signalAll(pids, unix.SIGKILL)
	}
	return nil
}

// waitDrained polls until no process is left or d has passed, and returns
// the processes still alive.
func (c *Container) waitDrained(d time.Duration) ([]int, error) {
	deadline := c.clock.Now().Add(d)
	for {
		pids, err := c.livePids()
		if err != nil {
			return nil, err
		}
		if len(pids) == 0 || !c.clock.Now().Before(deadline) {
			return pids, nil
		}
		c.clock.Sleep(stopPollInterval)
	}
}

// Destroy kills every process of the container and removes its cgroup.
// Destroying a container that is already gone is not an error.
func (c *Container) Destroy() error {
	c.m.Lock()
	defer c.m.Unlock()
	return c.destroy()
}

func (c *Container) destroy() error {
	if err := c.cgroupManager.Destroy(); err != nil {
		return fmt.Errorf("unable to destroy container %s: %w", c.id, err)
	}
	if c.state == Created || c.state == Running {
		c.state = Stopped
	}
	return nil
}

// Run starts the container's process, waits for it to exit and destroys
// the container.
func (c *Container) Run(process *Process) (ExitOutcome, error) {
	return c.Supervise(context.Background(), process, nil)
}

type waitResult struct {
	state *os.ProcessState
	err   error
}

// Supervise starts the container's process and waits for it. The sampler,
// when given, runs until the process exits and has returned before
// Supervise does. Cancelling ctx stops the container. The container is
// destroyed in every case but a lost claim on the id, which leaves the
// cgroup to its owner.
func (c *Container) Supervise(ctx context.Context, process *Process, sampler Sampler) (outcome ExitOutcome, retErr error) {
	defer func() {
		var cerr *ControllerCreateError
		if errors.As(retErr, &cerr) {
			// The cgroup belongs to the container holding the id.
			return
		}
		if err := c.Destroy(); err != nil {
			if retErr == nil {
				retErr = err
				return
			}
			logrus.WithError(err).WithField("id", c.id).Warn("unable to destroy container")
		}
	}()
	if err := c.Start(process); err != nil {
		return ExitOutcome{}, err
	}

	sampleCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	if sampler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sampler.Run(sampleCtx); err != nil && !errors.Is(err, context.Canceled) {
				logrus.WithError(err).WithField("id", c.id).Warn("sampler stopped")
			}
		}()
	}

	done := make(chan waitResult, 1)
	go func() {
		state, err := process.Wait()
		done <- waitResult{state, err}
	}()

	var res waitResult
	stopped := false
	select {
	case res = <-done:
	case <-ctx.Done():
		stopped = true
		logrus.WithField("id", c.id).Info("stopping container")
		c.m.Lock()
		timeout := c.stopTimeout
		c.m.Unlock()
		if err := c.Stop(timeout); err != nil {
			logrus.WithError(err).WithField("id", c.id).Warn("unable to stop container")
		}
		res = <-done
	}
	cancel()
	wg.Wait()

	if res.err != nil {
		return ExitOutcome{}, fmt.Errorf("unable to wait for container process: %w", res.err)
	}
	outcome = newExitOutcome(res.state)
	c.m.Lock()
	if stopped {
		c.state = Stopped
	} else {
		c.state = Exited
	}
	c.m.Unlock()
	logrus.WithFields(logrus.Fields{"id": c.id, "outcome": outcome.String()}).Debug("container process returned")
	return outcome, nil
}

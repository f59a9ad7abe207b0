package libcontainer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/vortex/libcontainer/configs"
	"github.com/vortex/libcontainer/utils"
)

const initPipeEnv = "_VORTEX_INITPIPE"

// initConfig is sent by the parent over the init pipe.
type initConfig struct {
	Args       []string           `json:"args"`
	Env        []string           `json:"env"`
	Cwd        string             `json:"cwd"`
	Hostname   string             `json:"hostname,omitempty"`
	Namespaces configs.Namespaces `json:"namespaces"`
}

const (
	stageNamespace = "namespace"
	stageExec      = "exec"
	// stageReady is sent right before exec. It carries no error.
	stageReady = "ready"
)

// procError is what the init process writes to the pipe when it fails. The
// pipe being closed after a ready message without one means the exec
// succeeded.
type procError struct {
	Stage   string     `json:"stage"`
	Op      string     `json:"op,omitempty"`
	Path    string     `json:"path,omitempty"`
	Errno   unix.Errno `json:"errno,omitempty"`
	Message string     `json:"message"`
}

func newProcError(err error) *procError {
	p := &procError{Message: err.Error()}
	var (
		nsErr   *NamespaceError
		execErr *ExecError
	)
	switch {
	case errors.As(err, &nsErr):
		p.Stage, p.Op = stageNamespace, nsErr.Op
	case errors.As(err, &execErr):
		p.Stage, p.Path = stageExec, execErr.Path
	default:
		p.Stage, p.Op = stageExec, "setup"
	}
	_ = errors.As(err, &p.Errno)
	return p
}

func (p *procError) err() error {
	var cause error = p.Errno
	if p.Errno == 0 {
		cause = errors.New(p.Message)
	}
	switch p.Stage {
	case stageNamespace:
		return &NamespaceError{Op: p.Op, Err: cause}
	case stageExec:
		if p.Path == "" {
			return fmt.Errorf("init %s: %w", p.Op, cause)
		}
		return &ExecError{Path: p.Path, Err: cause}
	}
	return fmt.Errorf("init failed at stage %q: %w", p.Stage, cause)
}

// StartInitialization is run by the re-executed "init" process. It reads its
// config from the init pipe, finishes the namespace setup and execs the
// container's command. It only returns on failure, which has already been
// reported to the parent.
func StartInitialization() (retErr error) {
	// The namespace setup must happen on the thread that execs.
	runtime.LockOSThread()

	pipefd, err := utils.FdFromEnv(initPipeEnv)
	if err != nil {
		return fmt.Errorf("unable to get init pipe: %w", err)
	}
	pipe := os.NewFile(uintptr(pipefd), "pipe")
	defer pipe.Close()
	os.Unsetenv(initPipeEnv)

	defer func() {
		if retErr == nil {
			return
		}
		if err := utils.WriteJSON(pipe, newProcError(retErr)); err != nil {
			logrus.WithError(err).Debug("unable to report init error")
		}
	}()

	var config initConfig
	if err := json.NewDecoder(pipe).Decode(&config); err != nil {
		return fmt.Errorf("unable to read init config: %w", err)
	}
	if len(config.Args) == 0 {
		return &ExecError{Path: "", Err: errors.New("no command given")}
	}
	if err := applyNamespaces(&config); err != nil {
		return err
	}
	return finalizeExec(pipe, &config)
}

func finalizeExec(pipe *os.File, config *initConfig) error {
	if config.Cwd != "" {
		if err := unix.Chdir(config.Cwd); err != nil {
			return &ExecError{Path: config.Args[0], Err: fmt.Errorf("chdir to cwd (%q): %w", config.Cwd, err)}
		}
	}
	// Look the command up with the container's PATH, not ours.
	os.Clearenv()
	for _, kv := range config.Env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			os.Setenv(k, v)
		}
	}
	name, err := exec.LookPath(config.Args[0])
	if err != nil {
		var errno unix.Errno
		if !errors.As(err, &errno) {
			err = unix.ENOENT
		}
		return &ExecError{Path: config.Args[0], Err: err}
	}
	if err := utils.WriteJSON(pipe, &procError{Stage: stageReady}); err != nil {
		return fmt.Errorf("unable to report ready: %w", err)
	}
	// The parent sees EOF on the pipe once exec succeeds.
	unix.CloseOnExec(int(pipe.Fd()))
	if err := unix.Exec(name, config.Args, config.Env); err != nil {
		return &ExecError{Path: name, Err: err}
	}
	return nil
}

package libcontainer

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/vortex/libcontainer/configs"
)

var errNamespaceUnsupported = errors.New("not supported by the kernel")

// prepareNamespaces checks that the kernel knows every namespace the
// container asks for and returns the clone flags creating them.
func prepareNamespaces(config *configs.Config) (uintptr, error) {
	for _, ns := range config.Namespaces {
		if ns.Path != "" {
			return 0, &NamespaceError{Op: "join " + configs.NsName(ns.Type), Err: unix.EINVAL}
		}
		if _, err := os.Stat("/proc/self/ns/" + configs.NsName(ns.Type)); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				err = errNamespaceUnsupported
			}
			return 0, &NamespaceError{Op: "unshare " + configs.NsName(ns.Type), Err: err}
		}
	}
	return config.Namespaces.CloneFlags(), nil
}

func sysProcAttr(cloneFlags uintptr) *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Cloneflags: cloneFlags,
		Pdeathsig:  unix.SIGKILL,
	}
}

// cloneError classifies an error from starting the init process. The kernel
// rejects unsupported or exhausted namespaces at clone time.
func cloneError(path string, cloneFlags uintptr, err error) error {
	var errno unix.Errno
	if cloneFlags != 0 && errors.As(err, &errno) {
		switch errno {
		case unix.EPERM, unix.EINVAL, unix.ENOSPC, unix.EUSERS:
			return &NamespaceError{Op: "clone", Err: errno}
		}
	}
	return &ExecError{Path: path, Err: err}
}

// applyNamespaces runs in the init process, after clone and before exec.
func applyNamespaces(config *initConfig) error {
	ns := config.Namespaces
	if ns.Contains(configs.NEWUTS) && config.Hostname != "" {
		if err := unix.Sethostname([]byte(config.Hostname)); err != nil {
			return &NamespaceError{Op: "sethostname", Err: err}
		}
	}
	if !ns.Contains(configs.NEWNS) {
		return nil
	}
	// Keep mount events from propagating back to the host.
	if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return &NamespaceError{Op: "remount / private", Err: err}
	}
	if ns.Contains(configs.NEWPID) {
		flags := uintptr(unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOEXEC)
		if err := unix.Mount("proc", "/proc", "proc", flags, ""); err != nil {
			return &NamespaceError{Op: "mount proc", Err: err}
		}
	}
	return nil
}

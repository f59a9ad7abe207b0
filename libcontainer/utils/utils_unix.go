package utils

import (
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

func NewSockPair(name string) (parent *os.File, child *os.File, err error) {
	fds, err := unix.Socketpair(unix.AF_LOCAL, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, err
	}
	return os.NewFile(uintptr(fds[1]), name+"-p"), os.NewFile(uintptr(fds[0]), name+"-c"), nil
}

// FdFromEnv returns the file descriptor number stored in the environment
// variable name.
func FdFromEnv(name string) (int, error) {
	fd, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		return -1, &os.SyscallError{Syscall: "getenv " + name, Err: unix.EBADF}
	}
	return fd, nil
}

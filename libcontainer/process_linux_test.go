package libcontainer

import (
	"errors"
	"os/exec"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/vortex/libcontainer/utils"
)

func TestStartMissingInit(t *testing.T) {
	parent, child, err := utils.NewSockPair("init")
	if err != nil {
		t.Fatal(err)
	}
	cmd := exec.Command("/nonexistent/vortex-init", "init")
	p := newInitProcess(cmd, filePair{parent, child}, &fakeManager{}, &initConfig{Args: []string{"true"}}, 0)
	err = p.start()
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected an ExecError, got %v", err)
	}
	if !errors.Is(err, unix.ENOENT) {
		t.Errorf("expected ENOENT, got %v", err)
	}
}

func TestInitWaiterExec(t *testing.T) {
	parent, child, err := utils.NewSockPair("init")
	if err != nil {
		t.Fatal(err)
	}
	defer parent.Close()
	ch := initWaiter(parent)
	if err := utils.WriteJSON(child, &procError{Stage: stageReady}); err != nil {
		t.Fatal(err)
	}
	// exec closes the child's end of the pipe.
	child.Close()
	if err := <-ch; err != nil {
		t.Fatalf("expected success on EOF, got %v", err)
	}
}

func TestInitWaiterNotReady(t *testing.T) {
	parent, child, err := utils.NewSockPair("init")
	if err != nil {
		t.Fatal(err)
	}
	defer parent.Close()
	ch := initWaiter(parent)
	// The child died before it read its config.
	child.Close()
	if err := <-ch; !errors.Is(err, errInitNotReady) {
		t.Fatalf("expected errInitNotReady, got %v", err)
	}
}

func TestInitWaiterErrorAfterReady(t *testing.T) {
	parent, child, err := utils.NewSockPair("init")
	if err != nil {
		t.Fatal(err)
	}
	defer parent.Close()
	ch := initWaiter(parent)
	for _, msg := range []*procError{
		{Stage: stageReady},
		newProcError(&ExecError{Path: "/bin/sh", Err: unix.EACCES}),
	} {
		if err := utils.WriteJSON(child, msg); err != nil {
			t.Fatal(err)
		}
	}
	child.Close()
	var execErr *ExecError
	if err := <-ch; !errors.As(err, &execErr) || !errors.Is(err, unix.EACCES) {
		t.Fatalf("expected an ExecError with EACCES, got %v", err)
	}
}

func TestStartInitDiesEarly(t *testing.T) {
	parent, child, err := utils.NewSockPair("init")
	if err != nil {
		t.Fatal(err)
	}
	// An init that exits without reading its config.
	cmd := exec.Command("/bin/sh", "-c", "exit 1")
	p := newInitProcess(cmd, filePair{parent, child}, &fakeManager{}, &initConfig{Args: []string{"true"}}, 0)
	err = p.start()
	var execErr *ExecError
	if !errors.As(err, &execErr) || !errors.Is(err, errInitNotReady) {
		t.Fatalf("expected an ExecError for an init that never got ready, got %v", err)
	}
}

func TestInitWaiterError(t *testing.T) {
	testCases := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{
			name: "namespace",
			err:  &NamespaceError{Op: "sethostname", Err: unix.EPERM},
			check: func(err error) bool {
				var nsErr *NamespaceError
				return errors.As(err, &nsErr) && nsErr.Op == "sethostname" && errors.Is(err, unix.EPERM)
			},
		},
		{
			name: "exec",
			err:  &ExecError{Path: "/bin/nothing", Err: unix.ENOENT},
			check: func(err error) bool {
				var execErr *ExecError
				return errors.As(err, &execErr) && execErr.Path == "/bin/nothing" && errors.Is(err, unix.ENOENT)
			},
		},
		{
			name: "other",
			err:  errors.New("unable to read init config"),
			check: func(err error) bool {
				return err != nil && err.Error() == "init setup: unable to read init config"
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			parent, child, err := utils.NewSockPair("init")
			if err != nil {
				t.Fatal(err)
			}
			defer parent.Close()
			ch := initWaiter(parent)
			if err := utils.WriteJSON(child, newProcError(tc.err)); err != nil {
				t.Fatal(err)
			}
			child.Close()
			if got := <-ch; !tc.check(got) {
				t.Errorf("unexpected error %v", got)
			}
		})
	}
}

func TestCloneError(t *testing.T) {
	var nsErr *NamespaceError
	if err := cloneError("/proc/self/exe", unix.CLONE_NEWPID, unix.EPERM); !errors.As(err, &nsErr) {
		t.Errorf("expected a NamespaceError, got %v", err)
	}
	var execErr *ExecError
	if err := cloneError("/proc/self/exe", 0, unix.EPERM); !errors.As(err, &execErr) {
		t.Errorf("expected an ExecError without clone flags, got %v", err)
	}
	if err := cloneError("/proc/self/exe", unix.CLONE_NEWPID, unix.ENOENT); !errors.As(err, &execErr) {
		t.Errorf("expected an ExecError, got %v", err)
	}
}

package utils

import (
	"bytes"
	"testing"

	"golang.org/x/sys/unix"
)

func TestExitStatus(t *testing.T) {
	status := unix.WaitStatus(0)
	if ExitStatus(status) != 0 {
		t.Errorf("expected 0, got %d", ExitStatus(status))
	}
	// exit code lives in the second byte of the wait status
	status = unix.WaitStatus(3 << 8)
	if ExitStatus(status) != 3 {
		t.Errorf("expected 3, got %d", ExitStatus(status))
	}
}

func TestExitStatusSignaled(t *testing.T) {
	status := unix.WaitStatus(unix.SIGKILL)
	if !status.Signaled() {
		t.Fatal("expected a signaled status")
	}
	if got := ExitStatus(status); got != 137 {
		t.Errorf("expected 137, got %d", got)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, map[string]int{"pid": 1}); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != `{"pid":1}` {
		t.Errorf("unexpected output %s", got)
	}
}

func TestCleanPath(t *testing.T) {
	testCases := map[string]string{
		"":              "",
		"rootfs":        "rootfs",
		"../../../var":  "var",
		"/../../../var": "/var",
		"/foo/../bar":   "/bar",
		"vortex/../..":  ".",
	}
	for in, want := range testCases {
		if got := CleanPath(in); got != want {
			t.Errorf("CleanPath(%q): expected %q, got %q", in, want, got)
		}
	}
}

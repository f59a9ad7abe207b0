package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunChecks(t *testing.T) {
	var buf bytes.Buffer
	err := runChecks(&buf, []healthCheck{
		{name: "good", run: func() error { return nil }},
		{name: "soft", advisory: true, run: func() error { return errors.New("meh") }},
		{name: "bad", run: func() error { return errors.New("broken") }},
	})
	if err == nil || !strings.Contains(err.Error(), "1 of 3") {
		t.Errorf("expected a failure for one check, got %v", err)
	}
	want := "[OK]   good\n[WARN] soft: meh\n[FAIL] bad: broken\n"
	if got := buf.String(); got != want {
		t.Errorf("expected output %q, got %q", want, got)
	}

	buf.Reset()
	if err := runChecks(&buf, []healthCheck{{name: "good", run: func() error { return nil }}}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCheckControllers(t *testing.T) {
	testCases := []struct {
		name        string
		controllers string
		errMsg      string
	}{
		{name: "all", controllers: "cpuset cpu io memory hugetlb pids rdma misc\n"},
		{name: "missing", controllers: "cpu memory\n", errMsg: "missing controllers: io, pids"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "cgroup.controllers"), []byte(tc.controllers), 0o644); err != nil {
				t.Fatal(err)
			}
			err := checkControllers(dir)
			if tc.errMsg == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || err.Error() != tc.errMsg {
				t.Errorf("expected %q, got %v", tc.errMsg, err)
			}
		})
	}

	if err := checkControllers(t.TempDir()); err == nil {
		t.Error("expected an error without cgroup.controllers")
	}
}

func TestHostChecksSystemd(t *testing.T) {
	without := hostChecks(false)
	with := hostChecks(true)
	if len(with) != len(without)+1 {
		t.Errorf("expected one extra check with systemd, got %d and %d", len(without), len(with))
	}
	if name := with[len(with)-1].name; name != "systemd running" {
		t.Errorf("unexpected last check %q", name)
	}
}

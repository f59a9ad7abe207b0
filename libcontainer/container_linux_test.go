package libcontainer

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/vortex/libcontainer/cgroups"
	"github.com/vortex/libcontainer/configs"
)

type fakeManager struct {
	mu        sync.Mutex
	exists    bool
	procs     []*trackedProc
	createErr error
	applyErr  error
	setErr    error
	killNoop  bool
	stats     *cgroups.Stats
	killed    int
	destroyed int
}

type trackedProc struct {
	pid  int
	done chan struct{}
}

func (m *fakeManager) Create() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.exists = true
	return nil
}

func (m *fakeManager) Apply(pid int) error { return m.applyErr }

func (m *fakeManager) Set(r *configs.Resources) error { return m.setErr }

func (m *fakeManager) GetPids() ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pids []int
	for _, p := range m.procs {
		select {
		case <-p.done:
		default:
			pids = append(pids, p.pid)
		}
	}
	return pids, nil
}

func (m *fakeManager) GetStats() (*cgroups.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.exists {
		return nil, cgroups.ErrCgroupNotExist
	}
	return m.stats, nil
}

func (m *fakeManager) Kill() error {
	m.mu.Lock()
	m.killed++
	noop := m.killNoop
	m.mu.Unlock()
	if noop {
		return nil
	}
	pids, _ := m.GetPids()
	for _, pid := range pids {
		_ = unix.Kill(pid, unix.SIGKILL)
	}
	return nil
}

func (m *fakeManager) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyed++
	m.exists = false
	return nil
}

func (m *fakeManager) Exists() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exists
}

func (m *fakeManager) Path(_ string) string { return "/sys/fs/cgroup/vortex/fake" }

// startProc starts a process tracked by m and waits until it runs comm.
func startProc(t *testing.T, m *fakeManager, comm string, args ...string) int {
	t.Helper()
	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	p := &trackedProc{pid: cmd.Process.Pid, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		<-p.done
	})
	deadline := time.Now().Add(5 * time.Second)
	for {
		data, err := os.ReadFile("/proc/" + strconv.Itoa(p.pid) + "/comm")
		if err == nil && strings.TrimSpace(string(data)) == comm {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("process %d never became %q", p.pid, comm)
		}
		time.Sleep(10 * time.Millisecond)
	}
	m.mu.Lock()
	m.procs = append(m.procs, p)
	m.mu.Unlock()
	return p.pid
}

func testConfig(id string) *configs.Config {
	return &configs.Config{
		ID:            id,
		Args:          []string{"true"},
		NamespaceMode: configs.Flat,
		Cgroups: &configs.Cgroup{
			Name:      id,
			Parent:    configs.DefaultCgroupRoot,
			Resources: &configs.Resources{CpuQuota: 50000, CpuPeriod: 100000},
		},
	}
}

func withManager(t *testing.T, m *fakeManager) {
	t.Helper()
	saved := newCgroupManager
	newCgroupManager = func(*configs.Cgroup) (cgroups.Manager, error) { return m, nil }
	t.Cleanup(func() { newCgroupManager = saved })
}

func TestCreate(t *testing.T) {
	m := &fakeManager{}
	withManager(t, m)
	c, err := Create("web", testConfig("web"))
	if err != nil {
		t.Fatal(err)
	}
	if c.ID() != "web" || c.Status() != Created {
		t.Errorf("unexpected container %s in state %s", c.ID(), c.Status())
	}
	if !m.Exists() {
		t.Error("expected the cgroup to be created")
	}
}

func TestCreateConflict(t *testing.T) {
	withManager(t, &fakeManager{createErr: cgroups.ErrCgroupExists})
	_, err := Create("web", testConfig("web"))
	var cerr *ControllerCreateError
	if !errors.As(err, &cerr) || cerr.ID != "web" {
		t.Fatalf("expected a ControllerCreateError, got %v", err)
	}
	if !errors.Is(err, ErrExist) {
		t.Errorf("expected ErrExist, got %v", err)
	}
}

func TestCreateRollback(t *testing.T) {
	m := &fakeManager{setErr: errors.New("write cpu.max: invalid argument")}
	withManager(t, m)
	_, err := Create("web", testConfig("web"))
	var cerr *ControllerCreateError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected a ControllerCreateError, got %v", err)
	}
	if m.destroyed != 1 || m.Exists() {
		t.Errorf("expected the cgroup to be removed, destroyed %d times", m.destroyed)
	}
}

func TestCreateInvalid(t *testing.T) {
	m := &fakeManager{}
	withManager(t, m)
	if _, err := Create("bad id", testConfig("bad id")); !errors.Is(err, ErrInvalidID) {
		t.Errorf("expected ErrInvalidID, got %v", err)
	}
	config := testConfig("web")
	config.Args = nil
	if _, err := Create("web", config); err == nil {
		t.Error("expected an error without a command")
	}
	if _, err := Create("db", testConfig("web")); err == nil {
		t.Error("expected an error for mismatched ids")
	}
	if m.Exists() {
		t.Error("invalid configs must not create a cgroup")
	}
}

func TestStatsLookupError(t *testing.T) {
	m := &fakeManager{}
	c := newContainer("web", testConfig("web"), m, Stopped)
	_, err := c.Stats()
	var lerr *ControllerLookupError
	if !errors.As(err, &lerr) || lerr.ID != "web" {
		t.Fatalf("expected a ControllerLookupError, got %v", err)
	}
	if !strings.Contains(err.Error(), "failed to create controller") {
		t.Errorf("unexpected message %q", err)
	}
	if !errors.Is(err, ErrNotExist) {
		t.Error("expected the error to wrap ErrNotExist")
	}

	m.exists = true
	m.stats = cgroups.NewStats()
	if _, err := c.Stats(); err != nil {
		t.Fatal(err)
	}
}

func TestStopWithoutProcesses(t *testing.T) {
	m := &fakeManager{exists: true}
	c := newContainer("web", testConfig("web"), m, Created)
	if err := c.Stop(time.Second); err != nil {
		t.Fatal(err)
	}
	if m.destroyed != 1 || m.killed != 0 {
		t.Errorf("expected a plain destroy, got destroyed=%d killed=%d", m.destroyed, m.killed)
	}
	if c.Status() != Stopped {
		t.Errorf("expected stopped, got %s", c.Status())
	}
	// Stopping again is harmless.
	if err := c.Stop(time.Second); err != nil {
		t.Fatal(err)
	}
}

func TestStopTerminates(t *testing.T) {
	m := &fakeManager{exists: true}
	startProc(t, m, "sleep", "sleep", "30")
	c := newContainer("web", testConfig("web"), m, Running)
	if err := c.Stop(5 * time.Second); err != nil {
		t.Fatal(err)
	}
	if m.killed != 0 {
		t.Error("SIGTERM should have been enough")
	}
	if m.destroyed != 1 {
		t.Errorf("expected destroy, got %d", m.destroyed)
	}
}

func TestStopEscalates(t *testing.T) {
	m := &fakeManager{exists: true}
	startProc(t, m, "sleep", "sh", "-c", `trap "" TERM; exec sleep 30`)
	c := newContainer("web", testConfig("web"), m, Running)
	if err := c.Stop(200 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if m.killed != 1 {
		t.Errorf("expected one SIGKILL round, got %d", m.killed)
	}
	if pids, _ := m.GetPids(); len(pids) != 0 {
		t.Errorf("processes left: %v", pids)
	}
}

func TestStopSupervisionError(t *testing.T) {
	saved := killTimeout
	killTimeout = 200 * time.Millisecond
	defer func() { killTimeout = saved }()

	m := &fakeManager{exists: true, killNoop: true}
	pid := startProc(t, m, "sleep", "sh", "-c", `trap "" TERM; exec sleep 30`)
	c := newContainer("web", testConfig("web"), m, Running)
	err := c.Stop(100 * time.Millisecond)
	var serr *SupervisionError
	if !errors.As(err, &serr) || len(serr.Pids) != 1 || serr.Pids[0] != pid {
		t.Fatalf("expected a SupervisionError for %d, got %v", pid, err)
	}
	if m.destroyed != 1 {
		t.Errorf("expected a destroy attempt, got %d", m.destroyed)
	}
	if m.killed != 1 {
		t.Errorf("expected one SIGKILL round, got %d", m.killed)
	}
}

func TestExitOutcome(t *testing.T) {
	testCases := []struct {
		outcome ExitOutcome
		code    int
		exited  bool
	}{
		{outcome: ExitOutcome{}, code: 0, exited: true},
		{outcome: ExitOutcome{Code: 3}, code: 3, exited: true},
		{outcome: ExitOutcome{Signal: unix.SIGKILL}, code: 137, exited: false},
		{outcome: ExitOutcome{Signal: unix.SIGTERM}, code: 143, exited: false},
	}
	for _, tc := range testCases {
		if got := tc.outcome.ExitCode(); got != tc.code {
			t.Errorf("%s: expected exit code %d, got %d", tc.outcome, tc.code, got)
		}
		if tc.outcome.Exited() != tc.exited || tc.outcome.Killed() == tc.exited {
			t.Errorf("%s: unexpected exited/killed", tc.outcome)
		}
	}
}

func TestProcessWithoutStart(t *testing.T) {
	var p Process
	if _, err := p.Wait(); !errors.Is(err, errInvalidProcess) {
		t.Errorf("expected errInvalidProcess, got %v", err)
	}
	if _, err := p.Pid(); !errors.Is(err, errInvalidProcess) {
		t.Errorf("expected errInvalidProcess, got %v", err)
	}
	if err := p.Signal(unix.SIGTERM); !errors.Is(err, errInvalidProcess) {
		t.Errorf("expected errInvalidProcess, got %v", err)
	}
}

func TestStartTwice(t *testing.T) {
	c := newContainer("web", testConfig("web"), &fakeManager{exists: true}, Running)
	if err := c.Start(&Process{}); err == nil {
		t.Error("expected an error starting a running container")
	}
}

func TestRunLostClaim(t *testing.T) {
	// Like a systemd scope: Create succeeds, the unit is taken at Apply.
	m := &fakeManager{applyErr: fmt.Errorf("%w: unit vortex-dup.scope", cgroups.ErrCgroupExists)}
	withManager(t, m)
	c, err := Create("dup", testConfig("dup"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Run(&Process{})
	var cerr *ControllerCreateError
	if !errors.As(err, &cerr) || cerr.ID != "dup" {
		t.Fatalf("expected a ControllerCreateError, got %v", err)
	}
	if !errors.Is(err, ErrExist) {
		t.Errorf("expected ErrExist, got %v", err)
	}
	if m.destroyed != 0 || !m.Exists() {
		t.Errorf("the cgroup of the other container must survive, destroyed %d times", m.destroyed)
	}
	if c.Status() != Failed {
		t.Errorf("expected failed, got %s", c.Status())
	}
}

package libcontainer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/moby/sys/mountinfo"

	"github.com/vortex/libcontainer/cgroups"
	"github.com/vortex/libcontainer/configs"
)

func TestMain(m *testing.M) {
	if len(os.Args) > 1 && os.Args[1] == "init" {
		if err := StartInitialization(); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// newTestRoot returns a cgroup root private to this test binary, below
// every mounted hierarchy. The tests using it need root.
func newTestRoot(t *testing.T) string {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("test requires root")
	}
	mounts, err := mountinfo.GetMounts(func(info *mountinfo.Info) (skip, stop bool) {
		return info.FSType != "cgroup" && info.FSType != "cgroup2", false
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(mounts) == 0 {
		t.Skip("test requires a mounted cgroup hierarchy")
	}
	root := fmt.Sprintf("vortex-test-%d", os.Getpid())
	t.Cleanup(func() {
		for _, m := range mounts {
			if err := cgroups.RemovePath(filepath.Join(m.Mountpoint, root)); err != nil {
				t.Logf("unable to remove %s below %s: %v", root, m.Mountpoint, err)
			}
		}
	})
	return root
}

// cpuLimit reads the CFS quota and period of c back as "quota period".
func cpuLimit(t *testing.T, c *Container) string {
	t.Helper()
	if cgroups.IsCgroup2UnifiedMode() {
		data, err := os.ReadFile(filepath.Join(c.cgroupManager.Path(""), "cpu.max"))
		if err != nil {
			t.Fatal(err)
		}
		return strings.TrimSpace(string(data))
	}
	dir := c.cgroupManager.Path("cpu")
	var values []string
	for _, file := range []string{"cpu.cfs_quota_us", "cpu.cfs_period_us"} {
		v, err := cgroups.ReadFile(dir, file)
		if err != nil {
			t.Fatal(err)
		}
		values = append(values, strings.TrimSpace(v))
	}
	return strings.Join(values, " ")
}

func newTestConfig(root, id string, args ...string) *configs.Config {
	return &configs.Config{
		ID:            id,
		Args:          args,
		Env:           []string{"PATH=/usr/local/bin:/usr/bin:/bin:/usr/sbin:/sbin"},
		Cwd:           "/",
		NamespaceMode: configs.Flat,
		Cgroups: &configs.Cgroup{
			Name:      id,
			Parent:    root,
			Resources: &configs.Resources{},
		},
	}
}

func runContainer(t *testing.T, config *configs.Config) (ExitOutcome, string, error) {
	t.Helper()
	c, err := Create(config.ID, config)
	if err != nil {
		t.Fatal(err)
	}
	var stdout bytes.Buffer
	outcome, err := c.Run(&Process{Stdout: &stdout, Stderr: os.Stderr})
	return outcome, stdout.String(), err
}

func TestRunExitCode(t *testing.T) {
	root := newTestRoot(t)
	config := newTestConfig(root, "exit", "sh", "-c", "echo hello; exit 3")
	outcome, out, err := runContainer(t, config)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Code != 3 || !outcome.Exited() {
		t.Errorf("expected exit code 3, got %s", outcome)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Errorf("unexpected output %q", out)
	}

	// The container is gone once Run returns.
	template := &configs.Cgroup{Parent: root}
	_, err = Load("exit", template)
	var lerr *ControllerLookupError
	if !errors.As(err, &lerr) {
		t.Errorf("expected a ControllerLookupError after the run, got %v", err)
	}
	ids, err := ListRunning(template)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no running containers, got %v", ids)
	}

	// The id can be used again.
	if _, _, err := runContainer(t, newTestConfig(root, "exit", "true")); err != nil {
		t.Fatal(err)
	}
}

func TestRunSignaled(t *testing.T) {
	root := newTestRoot(t)
	outcome, _, err := runContainer(t, newTestConfig(root, "signaled", "sh", "-c", "kill -9 $$"))
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Killed() || outcome.ExitCode() != 137 {
		t.Errorf("expected SIGKILL, got %s", outcome)
	}
}

func TestLoadNeverCreated(t *testing.T) {
	root := newTestRoot(t)
	_, err := Load("never-created", &configs.Cgroup{Parent: root})
	var lerr *ControllerLookupError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected a ControllerLookupError, got %v", err)
	}
	exists, err := Exists(&configs.Cgroup{Parent: root}, "never-created")
	if err != nil || exists {
		t.Errorf("expected the container to be unknown, got %v %v", exists, err)
	}
}

func TestCPULimit(t *testing.T) {
	root := newTestRoot(t)
	config := newTestConfig(root, "cpu", "true")
	config.Cgroups.Resources = &configs.Resources{CpuQuota: 50000, CpuPeriod: 100000}
	c, err := Create("cpu", config)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Destroy() //nolint:errcheck
	if got := cpuLimit(t, c); got != "50000 100000" {
		t.Errorf("expected a cpu limit of 50000 100000, got %q", got)
	}
	ids, err := List(&configs.Cgroup{Parent: root})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "cpu" {
		t.Errorf("unexpected containers %v", ids)
	}
}

func TestConcurrentCreate(t *testing.T) {
	root := newTestRoot(t)
	const n = 8
	var (
		wg      sync.WaitGroup
		winners int32
		mu      sync.Mutex
		created *Container
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := Create("race", newTestConfig(root, "race", "true"))
			if err != nil {
				if !errors.Is(err, ErrExist) {
					t.Errorf("unexpected error %v", err)
				}
				return
			}
			atomic.AddInt32(&winners, 1)
			mu.Lock()
			created = c
			mu.Unlock()
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	if err := created.Destroy(); err != nil {
		t.Fatal(err)
	}
}

func TestHostname(t *testing.T) {
	root := newTestRoot(t)
	host, err := os.Hostname()
	if err != nil {
		t.Fatal(err)
	}
	testCases := []struct {
		name string
		mode configs.NamespaceMode
		want string
	}{
		{name: "isolated", mode: configs.Isolated, want: "box"},
		{name: "flat", mode: configs.Flat, want: host},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := newTestConfig(root, "hostname-"+tc.name, "cat", "/proc/sys/kernel/hostname")
			config.Hostname = "box"
			config.NamespaceMode = tc.mode
			config.Namespaces = tc.mode.Namespaces()
			outcome, out, err := runContainer(t, config)
			if err != nil {
				t.Fatal(err)
			}
			if outcome.ExitCode() != 0 {
				t.Fatalf("unexpected outcome %s", outcome)
			}
			if got := strings.TrimSpace(out); got != tc.want {
				t.Errorf("expected hostname %q, got %q", tc.want, got)
			}
		})
	}
}

func TestExecFailure(t *testing.T) {
	root := newTestRoot(t)
	_, _, err := runContainer(t, newTestConfig(root, "noexec", "/nonexistent/binary"))
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected an ExecError, got %v", err)
	}
	if exists, _ := Exists(&configs.Cgroup{Parent: root}, "noexec"); exists {
		t.Error("the cgroup must be removed after a failed start")
	}
}

type countingSampler struct {
	returned int32
}

func (s *countingSampler) Run(ctx context.Context) error {
	<-ctx.Done()
	atomic.StoreInt32(&s.returned, 1)
	return ctx.Err()
}

func TestSuperviseSampler(t *testing.T) {
	root := newTestRoot(t)
	c, err := Create("sampled", newTestConfig(root, "sampled", "true"))
	if err != nil {
		t.Fatal(err)
	}
	s := &countingSampler{}
	if _, err := c.Supervise(context.Background(), &Process{}, s); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&s.returned) != 1 {
		t.Error("the sampler must return before Supervise does")
	}
	if c.Status() != Exited {
		t.Errorf("expected exited, got %s", c.Status())
	}
}

func TestSuperviseCancel(t *testing.T) {
	root := newTestRoot(t)
	c, err := Create("cancelled", newTestConfig(root, "cancelled", "sleep", "30"))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Process{}
	c.SetStopTimeout(DefaultStopTimeout)
	go func() {
		for {
			if pids, _ := c.Processes(); len(pids) > 0 {
				cancel()
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()
	outcome, err := c.Supervise(ctx, p, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Killed() {
		t.Errorf("expected the process to be killed, got %s", outcome)
	}
	if c.Status() != Stopped {
		t.Errorf("expected stopped, got %s", c.Status())
	}
}

package fs2

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vortex/libcontainer/cgroups"
	"github.com/vortex/libcontainer/configs"
)

// fakeRoot points the unified mountpoint at a temporary directory that
// advertises the usual controllers.
func fakeRoot(t *testing.T) string {
	t.Helper()
	cgroups.TestMode = true
	root := t.TempDir()
	saved := UnifiedMountpoint
	UnifiedMountpoint = root
	t.Cleanup(func() { UnifiedMountpoint = saved })
	if err := os.WriteFile(filepath.Join(root, cgCtlFile), []byte("cpuset cpu io memory hugetlb pids rdma misc\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func newTestManager(t *testing.T, id string) *Manager {
	t.Helper()
	m, err := NewManager(&configs.Cgroup{Name: id, Parent: configs.DefaultCgroupRoot}, "")
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestCreateCgroupPath(t *testing.T) {
	root := fakeRoot(t)
	m := newTestManager(t, "demo")
	if m.Path("") != filepath.Join(root, "vortex", "demo") {
		t.Fatalf("unexpected path %s", m.Path(""))
	}
	if err := m.Create(); err != nil {
		t.Fatal(err)
	}
	if !m.Exists() {
		t.Fatal("cgroup was not created")
	}
	got, err := cgroups.ReadFile(root, cgStCtlFile)
	if err != nil {
		t.Fatal(err)
	}
	if got != "+cpu +memory +io +pids" {
		t.Errorf("unexpected subtree_control %q", got)
	}

	err = newTestManager(t, "demo").Create()
	if !errors.Is(err, cgroups.ErrCgroupExists) {
		t.Fatalf("expected ErrCgroupExists, got %v", err)
	}
}

func TestCreateCgroupPathInvalid(t *testing.T) {
	fakeRoot(t)
	if err := CreateCgroupPath("/elsewhere/demo"); err == nil {
		t.Fatal("expected an error for a path outside the unified hierarchy")
	}
}

func TestCreateConcurrent(t *testing.T) {
	fakeRoot(t)
	const n = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		others  []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := NewManager(&configs.Cgroup{Name: "race", Parent: configs.DefaultCgroupRoot}, "")
			if err == nil {
				err = m.Create()
			}
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners++
			} else if !errors.Is(err, cgroups.ErrCgroupExists) {
				others = append(others, err)
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Errorf("expected exactly one winner, got %d", winners)
	}
	if len(others) != 0 {
		t.Errorf("unexpected errors: %v", others)
	}
}

func TestCpuMax(t *testing.T) {
	testCases := []struct {
		quota  int64
		period uint64
		want   string
	}{
		{quota: 50000, period: 100000, want: "50000 100000"},
		{quota: 150000, period: 100000, want: "150000 100000"},
		{quota: 0, period: 100000, want: "max 100000"},
		{quota: 25000, period: 0, want: "25000 100000"},
		{quota: -1, period: 50000, want: "max 50000"},
	}
	for _, tc := range testCases {
		if got := cpuMax(tc.quota, tc.period); got != tc.want {
			t.Errorf("cpuMax(%d, %d): expected %q, got %q", tc.quota, tc.period, tc.want, got)
		}
	}
}

func TestSet(t *testing.T) {
	fakeRoot(t)
	m := newTestManager(t, "limits")
	if err := m.Create(); err != nil {
		t.Fatal(err)
	}
	err := m.Set(&configs.Resources{
		CpuQuota:   50000,
		CpuPeriod:  100000,
		Memory:     512 << 20,
		MemorySwap: 1 << 30,
	})
	if err != nil {
		t.Fatal(err)
	}
	for file, want := range map[string]string{
		"cpu.max":         "50000 100000",
		"memory.max":      "536870912",
		"memory.swap.max": "536870912",
	} {
		got, err := cgroups.ReadFile(m.Path(""), file)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("%s: expected %q, got %q", file, want, got)
		}
	}
}

func TestSetUnconstrained(t *testing.T) {
	fakeRoot(t)
	m := newTestManager(t, "free")
	if err := m.Create(); err != nil {
		t.Fatal(err)
	}
	if err := m.Set(&configs.Resources{}); err != nil {
		t.Fatal(err)
	}
	for _, file := range []string{"cpu.max", "memory.max", "memory.swap.max"} {
		if cgroups.PathExists(filepath.Join(m.Path(""), file)) {
			t.Errorf("%s must not be written without a limit", file)
		}
	}
}

func writeFixture(t *testing.T, dir, file, data string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, file), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestGetStats(t *testing.T) {
	fakeRoot(t)
	m := newTestManager(t, "stats")
	if err := m.Create(); err != nil {
		t.Fatal(err)
	}
	dir := m.Path("")
	writeFixture(t, dir, "cpu.stat", `usage_usec 2500000
user_usec 2000000
system_usec 500000
nr_periods 40
nr_throttled 12
throttled_usec 350000
`)
	writeFixture(t, dir, "memory.current", "104857600\n")
	writeFixture(t, dir, "memory.max", "536870912\n")
	writeFixture(t, dir, "io.stat", "8:0 rbytes=4096 wbytes=8192 rios=1 wios=2 dbytes=0 dios=0\n259:0 rbytes=1024 wbytes=0 rios=1 wios=0 dbytes=0 dios=0\n")
	writeFixture(t, dir, "pids.current", "2\n")
	writeFixture(t, dir, "pids.max", "max\n")

	stats, err := m.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	want := &cgroups.Stats{
		CpuStats: cgroups.CpuStats{
			CpuUsage: cgroups.CpuUsage{
				TotalUsage:        2500000000,
				UsageInUsermode:   2000000000,
				UsageInKernelmode: 500000000,
			},
			ThrottlingData: cgroups.ThrottlingData{
				Periods:          40,
				ThrottledPeriods: 12,
				ThrottledTime:    350000000,
			},
		},
		MemoryStats: cgroups.MemoryStats{
			// memory.peak is missing, so the current usage stands in
			Usage: cgroups.MemoryData{Usage: 104857600, MaxUsage: 104857600, Limit: 536870912},
		},
		IOStats:   cgroups.IOStats{ReadBytes: 5120, WriteBytes: 8192},
		PidsStats: cgroups.PidsStats{Current: 2},
	}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("unexpected stats (-want +got):\n%s", diff)
	}

	writeFixture(t, dir, "memory.peak", "209715200\n")
	stats, err = m.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.MemoryStats.Usage.MaxUsage != 209715200 {
		t.Errorf("expected the peak from memory.peak, got %d", stats.MemoryStats.Usage.MaxUsage)
	}
}

func TestGetStatsMissingFiles(t *testing.T) {
	fakeRoot(t)
	m := newTestManager(t, "bare")
	if err := m.Create(); err != nil {
		t.Fatal(err)
	}
	stats, err := m.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(cgroups.NewStats(), stats); diff != "" {
		t.Errorf("expected empty stats (-want +got):\n%s", diff)
	}
}

func TestDestroy(t *testing.T) {
	fakeRoot(t)
	m := newTestManager(t, "gone")
	if err := m.Create(); err != nil {
		t.Fatal(err)
	}
	if err := m.Destroy(); err != nil {
		t.Fatal(err)
	}
	if m.Exists() {
		t.Fatal("cgroup still exists")
	}
	if _, err := m.GetStats(); !errors.Is(err, cgroups.ErrCgroupNotExist) {
		t.Fatalf("expected ErrCgroupNotExist, got %v", err)
	}
	if err := m.Apply(os.Getpid()); !errors.Is(err, cgroups.ErrCgroupNotExist) {
		t.Fatalf("expected ErrCgroupNotExist, got %v", err)
	}
	if err := m.Destroy(); err != nil {
		t.Fatalf("destroy must be idempotent: %v", err)
	}
	if err := m.Create(); err != nil {
		t.Fatalf("id should be reusable: %v", err)
	}
}

func TestList(t *testing.T) {
	fakeRoot(t)
	template := &configs.Cgroup{Parent: configs.DefaultCgroupRoot}
	names, err := List(template)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Fatalf("expected no containers, got %v", names)
	}
	for _, id := range []string{"web", "db"} {
		if err := newTestManager(t, id).Create(); err != nil {
			t.Fatal(err)
		}
	}
	names, err = List(template)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"db", "web"}, names); diff != "" {
		t.Errorf("unexpected names (-want +got):\n%s", diff)
	}
}

func TestDefaultDirPath(t *testing.T) {
	root := fakeRoot(t)
	for _, c := range []*configs.Cgroup{
		{Name: "../../../etc", Parent: "vortex"},
		{Name: "demo", Parent: "../.."},
		{Path: "/../../x"},
	} {
		p, err := defaultDirPath(c)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(p, root+"/") {
			t.Errorf("%+v escaped the hierarchy: %s", c, p)
		}
	}
	if _, err := defaultDirPath(&configs.Cgroup{Name: "a", Path: "/b"}); err == nil {
		t.Error("expected an error for both Name and Path")
	}
	if _, err := defaultDirPath(&configs.Cgroup{Parent: "vortex"}); err == nil {
		t.Error("expected an error for an empty name")
	}
}

package main

import (
	"testing"

	units "github.com/docker/go-units"
	"github.com/google/go-cmp/cmp"
	"github.com/opencontainers/runtime-spec/specs-go"
)

func TestBuildSpec(t *testing.T) {
	spec, err := buildSpec(runOptions{
		hostname:    "box",
		cpus:        0.5,
		cpuPeriod:   100000,
		memory:      "256",
		annotations: []string{"team=infra"},
		args:        []string{"sh", "-c", "true"},
		env:         []string{"PATH=/bin"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"sh", "-c", "true"}, spec.Process.Args); diff != "" {
		t.Errorf("unexpected args (-want +got):\n%s", diff)
	}
	if spec.Process.Cwd != "" {
		t.Errorf("expected an empty cwd, got %q", spec.Process.Cwd)
	}
	if spec.Hostname != "box" {
		t.Errorf("expected hostname box, got %q", spec.Hostname)
	}
	if len(spec.Linux.Namespaces) != 4 {
		t.Errorf("expected 4 namespaces, got %v", spec.Linux.Namespaces)
	}
	quota, period := int64(50000), uint64(100000)
	limit := int64(256 * units.MiB)
	want := &specs.LinuxResources{
		CPU:    &specs.LinuxCPU{Quota: &quota, Period: &period},
		Memory: &specs.LinuxMemory{Limit: &limit},
	}
	if diff := cmp.Diff(want, spec.Linux.Resources); diff != "" {
		t.Errorf("unexpected resources (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"team": "infra"}, spec.Annotations); diff != "" {
		t.Errorf("unexpected annotations (-want +got):\n%s", diff)
	}
}

func TestBuildSpecFlat(t *testing.T) {
	spec, err := buildSpec(runOptions{flat: true, args: []string{"true"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(spec.Linux.Namespaces) != 0 {
		t.Errorf("expected no namespaces, got %v", spec.Linux.Namespaces)
	}
	if spec.Linux.Resources != nil {
		t.Errorf("expected no resources, got %+v", spec.Linux.Resources)
	}
}

func TestBuildSpecInvalid(t *testing.T) {
	testCases := []struct {
		name string
		opts runOptions
	}{
		{name: "negative cpu", opts: runOptions{cpus: -1}},
		{name: "too many cpus", opts: runOptions{cpus: 129}},
		{name: "zero memory", opts: runOptions{memory: "0"}},
		{name: "huge memory", opts: runOptions{memory: "2t"}},
		{name: "annotation", opts: runOptions{annotations: []string{"bad"}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.opts.args = []string{"true"}
			if _, err := buildSpec(tc.opts); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

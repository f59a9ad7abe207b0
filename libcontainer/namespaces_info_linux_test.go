package libcontainer

import (
	"os"
	"strings"
	"testing"

	"github.com/vortex/libcontainer/configs"
)

func TestNamespacesForPid(t *testing.T) {
	infos, err := NamespacesForPid(os.Getpid())
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, info := range infos {
		if info.Type == configs.NEWPID {
			found = true
			if !strings.HasPrefix(info.Link, "pid:[") {
				t.Errorf("unexpected pid namespace link %q", info.Link)
			}
		}
	}
	if !found {
		t.Error("expected a pid namespace")
	}
	if _, err := NamespacesForPid(1 << 30); err == nil {
		t.Error("expected an error for a missing process")
	}
}

func TestIsIsolated(t *testing.T) {
	isolated := []NamespaceInfo{
		{Type: configs.NEWPID, Link: "pid:[2]", Host: "pid:[1]"},
		{Type: configs.NEWUTS, Link: "uts:[2]", Host: "uts:[1]"},
		{Type: configs.NEWNS, Link: "mnt:[2]", Host: "mnt:[1]"},
		{Type: configs.NEWIPC, Link: "ipc:[2]", Host: "ipc:[1]"},
		{Type: configs.NEWNET, Link: "net:[1]", Host: "net:[1]"},
	}
	if !IsIsolated(isolated) {
		t.Error("expected isolated")
	}
	shared := append([]NamespaceInfo{}, isolated...)
	shared[1].Link = shared[1].Host
	if IsIsolated(shared) {
		t.Error("a shared uts namespace is not isolated")
	}
	unknown := append([]NamespaceInfo{}, isolated...)
	unknown[0].Host = ""
	if IsIsolated(unknown) {
		t.Error("an unreadable host namespace must not count as private")
	}
}

package libcontainer

import (
	"errors"
	"fmt"
	"os"

	"github.com/vortex/libcontainer/configs"
)

// NamespaceInfo describes one namespace of a process.
type NamespaceInfo struct {
	Type configs.NamespaceType `json:"type"`
	// Link is the target of /proc/<pid>/ns/<type>, e.g. "pid:[4026531836]".
	Link string `json:"link"`
	// Host is the same link of pid 1, empty when it can not be read.
	Host string `json:"host,omitempty"`
}

// Private reports whether the namespace differs from the one of pid 1.
func (n NamespaceInfo) Private() bool {
	return n.Host != "" && n.Link != n.Host
}

// NamespacesForPid returns the namespaces of pid the kernel supports, in
// the order of configs.NamespaceTypes.
func NamespacesForPid(pid int) ([]NamespaceInfo, error) {
	var infos []NamespaceInfo
	for _, t := range configs.NamespaceTypes() {
		ns := configs.Namespace{Type: t}
		link, err := os.Readlink(ns.GetPath(pid))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && pid != 0 {
				if _, serr := os.Stat(fmt.Sprintf("/proc/%d", pid)); serr == nil {
					// The kernel lacks this namespace type.
					continue
				}
			}
			return nil, fmt.Errorf("unable to read namespaces of %d: %w", pid, err)
		}
		host, _ := os.Readlink(ns.GetPath(1))
		infos = append(infos, NamespaceInfo{Type: t, Link: link, Host: host})
	}
	return infos, nil
}

// IsIsolated reports whether the process owning infos has private pid, uts,
// mount and ipc namespaces, the set of an isolated container.
func IsIsolated(infos []NamespaceInfo) bool {
	private := map[configs.NamespaceType]bool{}
	for _, info := range infos {
		private[info.Type] = info.Private()
	}
	for _, ns := range configs.Isolated.Namespaces() {
		if !private[ns.Type] {
			return false
		}
	}
	return true
}

package configs

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	NEWNET    NamespaceType = "NEWNET"
	NEWPID    NamespaceType = "NEWPID"
	NEWNS     NamespaceType = "NEWNS"
	NEWUTS    NamespaceType = "NEWUTS"
	NEWIPC    NamespaceType = "NEWIPC"
	NEWUSER   NamespaceType = "NEWUSER"
	NEWCGROUP NamespaceType = "NEWCGROUP"
)

type NamespaceType string

var namespaceInfo = map[NamespaceType]struct {
	file string
	flag uintptr
}{
	NEWNET:    {"net", unix.CLONE_NEWNET},
	NEWPID:    {"pid", unix.CLONE_NEWPID},
	NEWNS:     {"mnt", unix.CLONE_NEWNS},
	NEWUTS:    {"uts", unix.CLONE_NEWUTS},
	NEWIPC:    {"ipc", unix.CLONE_NEWIPC},
	NEWUSER:   {"user", unix.CLONE_NEWUSER},
	NEWCGROUP: {"cgroup", unix.CLONE_NEWCGROUP},
}

// NsName converts the namespace type to its filename in /proc/<pid>/ns.
func NsName(ns NamespaceType) string {
	return namespaceInfo[ns].file
}

// NamespaceTypes returns every namespace type known to the runtime, in the
// order they are listed under /proc/<pid>/ns.
func NamespaceTypes() []NamespaceType {
	return []NamespaceType{
		NEWCGROUP,
		NEWIPC,
		NEWNS,
		NEWNET,
		NEWPID,
		NEWUSER,
		NEWUTS,
	}
}

// Namespace defines configuration for each namespace.  It specifies an
// alternate path that is able to be joined via setns.
type Namespace struct {
	Type NamespaceType `json:"type"`
	Path string        `json:"path"`
}

func (n *Namespace) GetPath(pid int) string {
	return fmt.Sprintf("/proc/%d/ns/%s", pid, NsName(n.Type))
}

type Namespaces []Namespace

func (n *Namespaces) Add(t NamespaceType, path string) {
	if n.index(t) == -1 {
		*n = append(*n, Namespace{Type: t, Path: path})
	}
}

func (n *Namespaces) Remove(t NamespaceType) bool {
	i := n.index(t)
	if i == -1 {
		return false
	}
	*n = append((*n)[:i], (*n)[i+1:]...)
	return true
}

func (n *Namespaces) index(t NamespaceType) int {
	for i, ns := range *n {
		if ns.Type == t {
			return i
		}
	}
	return -1
}

func (n *Namespaces) Contains(t NamespaceType) bool {
	return n.index(t) != -1
}

// CloneFlags parses the container's Namespaces options to set the correct
// flags on clone.
func (n *Namespaces) CloneFlags() uintptr {
	var flag uintptr
	for _, v := range *n {
		if v.Path != "" {
			continue
		}
		flag |= namespaceInfo[v.Type].flag
	}
	return flag
}

// NamespaceMode is either Isolated or Flat. Every consumer asks the mode for
// its namespace set instead of special casing the flat variant.
type NamespaceMode int

const (
	// Isolated gives the container private pid, uts, mount and ipc namespaces.
	Isolated NamespaceMode = iota
	// Flat runs the container in the host's namespaces.
	Flat
)

func (m NamespaceMode) String() string {
	switch m {
	case Isolated:
		return "isolated"
	case Flat:
		return "flat"
	}
	return fmt.Sprintf("NamespaceMode(%d)", int(m))
}

// Namespaces returns the namespaces to unshare for the mode.
func (m NamespaceMode) Namespaces() Namespaces {
	if m != Isolated {
		return Namespaces{}
	}
	return Namespaces{
		{Type: NEWPID},
		{Type: NEWUTS},
		{Type: NEWNS},
		{Type: NEWIPC},
	}
}

func ParseNamespaceMode(s string) (NamespaceMode, error) {
	switch s {
	case "isolated", "":
		return Isolated, nil
	case "flat":
		return Flat, nil
	}
	return 0, fmt.Errorf("unknown namespace mode %q", s)
}

package libcontainer

import "fmt"

// Status is the status of a container.
type Status int

const (
	// Created is the status that denotes the container's cgroup exists but
	// its process has not been started.
	Created Status = iota
	// Running is the status that denotes the container exists and is running.
	Running
	// Stopped is the status that denotes the container was stopped and
	// its cgroup removed.
	Stopped
	// Exited is the status that denotes the container's process returned.
	Exited
	// Failed is the status that denotes the container's process could not
	// be started.
	Failed
)

func (s Status) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Exited:
		return "exited"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

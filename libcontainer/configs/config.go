package configs

// Config defines configuration options for executing a process inside a contained environment.
type Config struct {
	// ID is the container's unique identifier. It doubles as the name of the
	// container's cgroup directory.
	ID string `json:"id"`

	// Hostname optionally sets the container's hostname if provided
	Hostname string `json:"hostname"`

	// Args is the command and its arguments to run as the container's init.
	Args []string `json:"args"`

	// Env is the environment passed to the container's process.
	Env []string `json:"env,omitempty"`

	// Cwd is the working directory of the container's process.
	Cwd string `json:"cwd,omitempty"`

	// Cgroups specifies specific cgroup settings for the various subsystems that the container is
	// placed into to limit the resources the container has available
	Cgroups *Cgroup `json:"cgroups"`

	// Labels are user defined metadata that is stored in the config and populated on the state
	Labels []string `json:"labels"`

	// NamespaceMode selects between a fully isolated container and one sharing
	// every namespace with the host.
	NamespaceMode NamespaceMode `json:"namespace_mode"`

	// Namespaces specifies the container's namespaces that it should setup when cloning the init process
	// If a namespace is not provided that namespace is shared from the container's parent process
	Namespaces Namespaces `json:"namespaces"`
}

package main

import (
	"os"
	"runtime"

	"github.com/urfave/cli"

	"github.com/vortex/libcontainer"
)

func init() {
	if len(os.Args) > 1 && os.Args[1] == "init" {
		// This is the golang entry point for the container's process. The
		// namespaces it is started in are bound to the OS thread.
		runtime.GOMAXPROCS(1)
		runtime.LockOSThread()
	}
}

// isInit reports whether the app runs as the re-executed init process.
func isInit(context *cli.Context) bool {
	return context.Args().First() == initCommand.Name
}

var initCommand = cli.Command{
	Name:   "init",
	Usage:  `initialize the namespaces and launch the process (do not call it outside of vortex)`,
	Hidden: true,
	Action: func(context *cli.Context) error {
		if err := libcontainer.StartInitialization(); err != nil {
			// as the error is sent back to the parent there is no need to log
			// or write it to stderr because the parent process will handle this
			os.Exit(1)
		}
		panic("libcontainer: container init failed to exec")
	},
}

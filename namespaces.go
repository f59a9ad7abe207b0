package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	ps "github.com/mitchellh/go-ps"
	"github.com/urfave/cli"

	"github.com/vortex/libcontainer"
	"github.com/vortex/libcontainer/configs"
)

var namespacesCommand = cli.Command{
	Name:  "namespaces",
	Usage: "show the namespaces of a process and whether it is isolated",
	Flags: []cli.Flag{
		cli.IntFlag{
			Name:  "pid",
			Usage: "process to inspect (default: vortex itself)",
		},
	},
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 0, exactArgs); err != nil {
			return err
		}
		pid := context.Int("pid")
		if pid == 0 {
			pid = os.Getpid()
		}
		if pid < 0 {
			return fmt.Errorf("invalid pid %d", pid)
		}
		infos, err := libcontainer.NamespacesForPid(pid)
		if err != nil {
			return err
		}
		name := "-"
		if p, err := ps.FindProcess(pid); err == nil && p != nil {
			name = p.Executable()
		}
		if err := formatNamespaces(os.Stdout, pid, name, infos); err != nil {
			return err
		}
		if pid == os.Getpid() {
			hostname, err := os.Hostname()
			if err != nil {
				return err
			}
			fmt.Printf("hostname: %s\n", hostname)
		}
		return nil
	},
}

func formatNamespaces(w io.Writer, pid int, name string, infos []libcontainer.NamespaceInfo) error {
	fmt.Fprintf(w, "process: %d (%s)\n", pid, name)
	tw := tabwriter.NewWriter(w, 8, 1, 3, ' ', 0)
	fmt.Fprint(tw, "TYPE\tNAMESPACE\tPRIVATE\n")
	for _, info := range infos {
		private := "no"
		switch {
		case info.Host == "":
			private = "unknown"
		case info.Private():
			private = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", configs.NsName(info.Type), info.Link, private)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	verdict := "not isolated"
	if libcontainer.IsIsolated(infos) {
		verdict = "isolated"
	}
	_, err := fmt.Fprintf(w, "verdict: %s\n", verdict)
	return err
}

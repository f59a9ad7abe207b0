package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	imagespecs "github.com/opencontainers/image-spec/specs-go"
	"github.com/opencontainers/runc/libcontainer/seccomp"
	"github.com/opencontainers/runtime-spec/specs-go"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/vortex/libcontainer/configs"
)

// version will be populated by the Makefile, read from
// VERSION file of the source code.
var version = "0.1.0"

// gitCommit will be the hash that the binary was built from
// and will be populated by the Makefile
var gitCommit = ""

const (
	defaultConfigPath = "/etc/vortex/config.yaml"
	usage             = `a minimal Linux container runtime

vortex runs a single command in its own cgroup, optionally isolated in
private pid, uts, mount and ipc namespaces. The cgroup directory is the
container's only state: it exists exactly as long as the container does.

To run a command in a new container:

    # vortex run --id web --cpu 0.5 --memory 256 -- sh -c 'echo hello'`
)

func versionString() string {
	v := []string{version}

	if gitCommit != "" {
		v = append(v, "commit: "+gitCommit)
	}
	v = append(v, "spec: "+specs.Version)
	v = append(v, "image-spec: "+imagespecs.Version)
	v = append(v, "go: "+runtime.Version())
	major, minor, micro := seccomp.Version()
	if major+minor+micro > 0 {
		v = append(v, fmt.Sprintf("libseccomp: %d.%d.%d", major, minor, micro))
	}
	return strings.Join(v, "\n")
}

func main() {
	app := cli.NewApp()
	app.Name = "vortex"
	app.Usage = usage
	app.Version = versionString()

	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug logging",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "set the log file to write vortex logs to (default is '/dev/stderr')",
		},
		cli.StringFlag{
			Name:  "log-format",
			Value: "text",
			Usage: "set the log format ('text' (default), or 'json')",
		},
		cli.StringFlag{
			Name:  "root",
			Value: configs.DefaultCgroupRoot,
			Usage: "cgroup directory (or, with --systemd-cgroup, slice prefix) holding one cgroup per container",
		},
		cli.BoolFlag{
			Name:  "systemd-cgroup",
			Usage: "create the container cgroups as transient systemd scopes in the <root>.slice slice",
		},
		cli.StringFlag{
			Name:  "config",
			Value: defaultConfigPath,
			Usage: "path to the YAML configuration file; a missing file is ignored",
		},
	}
	app.Commands = []cli.Command{
		healthCommand,
		initCommand,
		listCommand,
		namespacesCommand,
		runCommand,
		statsCommand,
		stopCommand,
		versionCommand,
	}
	app.Before = before
	// If the command returns an error, cli takes upon itself to print
	// the error on cli.ErrWriter and exit.
	// Use our own writer here to ensure the log gets sent to the right location.
	cli.ErrWriter = &FatalWriter{cli.ErrWriter}
	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

// before loads the config file and sets up logging for every command but
// the re-executed init.
func before(context *cli.Context) error {
	if isInit(context) {
		// init keeps the logging of the parent's stderr and never reads
		// the config file.
		return nil
	}
	cfg, err := loadConfig(context.GlobalString("config"))
	if err != nil {
		return err
	}
	context.App.Metadata = map[string]interface{}{configKey: cfg}
	return configLogrus(context, cfg)
}

type FatalWriter struct {
	cliErrWriter io.Writer
}

func (f *FatalWriter) Write(p []byte) (n int, err error) {
	logrus.Error(string(p))
	if !logrusToStderr() {
		return f.cliErrWriter.Write(p)
	}
	return len(p), nil
}

// configLogrus applies the logging flags, falling back to the log section
// of the config file for the ones not given.
func configLogrus(context *cli.Context, cfg *Config) error {
	if lvl := cfg.Log.Level; lvl != "" {
		level, err := logrus.ParseLevel(lvl)
		if err != nil {
			return fmt.Errorf("invalid log.level in config: %w", err)
		}
		logrus.SetLevel(level)
	}
	if context.GlobalBool("debug") {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.SetReportCaller(true)
		// Shorten function and file names reported by the logger, by
		// trimming common "github.com/vortex" prefix.
		// This is only done for text formatter.
		_, file, _, _ := runtime.Caller(0)
		prefix := filepath.Dir(file) + "/"
		logrus.SetFormatter(&logrus.TextFormatter{
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				function := strings.TrimPrefix(f.Function, prefix) + "()"
				fileLine := strings.TrimPrefix(f.File, prefix) + ":" + strconv.Itoa(f.Line)
				return function, fileLine
			},
		})
	}

	format := context.GlobalString("log-format")
	if !context.GlobalIsSet("log-format") && cfg.Log.Format != "" {
		format = cfg.Log.Format
	}
	switch format {
	case "":
		// do nothing
	case "text":
		// do nothing
	case "json":
		logrus.SetFormatter(new(logrus.JSONFormatter))
	default:
		return errors.New("invalid log-format: " + format)
	}

	file := context.GlobalString("log")
	if file == "" {
		file = cfg.Log.File
	}
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_SYNC, 0o644)
		if err != nil {
			return err
		}
		logrus.SetOutput(f)
	}

	return nil
}

package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	units "github.com/docker/go-units"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/vortex/libcontainer/configs/validate"
)

const (
	exactArgs = iota
	minArgs
	maxArgs
)

func checkArgs(context *cli.Context, expected, checkType int) error {
	var err error
	cmdName := context.Command.Name
	switch checkType {
	case exactArgs:
		if context.NArg() != expected {
			err = fmt.Errorf("%s: %q requires exactly %d argument(s)", os.Args[0], cmdName, expected)
		}
	case minArgs:
		if context.NArg() < expected {
			err = fmt.Errorf("%s: %q requires a minimum of %d argument(s)", os.Args[0], cmdName, expected)
		}
	case maxArgs:
		if context.NArg() > expected {
			err = fmt.Errorf("%s: %q requires a maximum of %d argument(s)", os.Args[0], cmdName, expected)
		}
	}

	if err != nil {
		fmt.Printf("Incorrect Usage.\n\n")
		_ = cli.ShowCommandHelp(context, cmdName)
		return err
	}
	return nil
}

func logrusToStderr() bool {
	l, ok := logrus.StandardLogger().Out.(*os.File)
	return ok && l.Fd() == os.Stderr.Fd()
}

// fatal prints the error's details if it is a libcontainer specific error type
// then exits the program with an exit status of 1.
func fatal(err error) {
	fatalWithCode(err, 1)
}

func fatalWithCode(err error, ret int) {
	// Make sure the error is written to the logger.
	logrus.Error(err)
	if !logrusToStderr() {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(ret)
}

func requireRoot(context *cli.Context) error {
	if os.Geteuid() != 0 {
		return fmt.Errorf("vortex %s must be run as root", context.Command.Name)
	}
	return nil
}

func requireID(context *cli.Context) (string, error) {
	id := context.String("id")
	if id == "" {
		return "", errors.New("container id cannot be empty (use --id)")
	}
	if err := validate.ID(id); err != nil {
		return "", err
	}
	return id, nil
}

// parseMemory parses a memory limit given either as a plain number of
// megabytes or as a size with a unit suffix such as "512m" or "1g".
func parseMemory(s string) (int64, error) {
	s = strings.TrimSpace(s)
	var limit int64
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > validate.MaxMemory/units.MiB {
			return 0, fmt.Errorf("memory limit %sMB exceeds %s", s, units.BytesSize(float64(validate.MaxMemory)))
		}
		limit = n * units.MiB
	} else {
		limit, err = units.RAMInBytes(s)
		if err != nil {
			return 0, fmt.Errorf("invalid memory limit %q: %w", s, err)
		}
	}
	if limit <= 0 {
		return 0, fmt.Errorf("memory limit %q must be positive", s)
	}
	if limit > validate.MaxMemory {
		return 0, fmt.Errorf("memory limit %q exceeds %s", s, units.BytesSize(float64(validate.MaxMemory)))
	}
	return limit, nil
}

// parseAnnotations turns key=value pairs into a map.
func parseAnnotations(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	annotations := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid annotation %q, expected key=value", pair)
		}
		annotations[k] = v
	}
	return annotations, nil
}

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli"
	"gopkg.in/yaml.v3"

	"github.com/vortex/libcontainer"
	"github.com/vortex/libcontainer/configs"
	"github.com/vortex/libcontainer/monitor"
)

const configKey = "config"

// Config is the optional YAML configuration file. Flags given on the
// command line take precedence over it.
type Config struct {
	// Root is the cgroup root of the containers.
	Root string `yaml:"root"`
	// SystemdCgroup selects the systemd cgroup driver.
	SystemdCgroup bool `yaml:"systemd_cgroup"`
	// CpuPeriod is the CFS period a fractional --cpu is converted with.
	CpuPeriod time.Duration `yaml:"cpu_period"`
	// StopTimeout is the grace period between SIGTERM and SIGKILL.
	StopTimeout time.Duration `yaml:"stop_timeout"`
	// MonitorInterval is the time between two monitor samples.
	MonitorInterval time.Duration `yaml:"monitor_interval"`
	Log             LogConfig     `yaml:"log"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// loadConfig reads the config file at path. A missing file yields the
// zero Config.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("unable to read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unable to parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.CpuPeriod != 0 && (c.CpuPeriod < time.Millisecond || c.CpuPeriod > time.Second) {
		return fmt.Errorf("cpu_period %s must be between 1ms and 1s", c.CpuPeriod)
	}
	if c.StopTimeout < 0 {
		return fmt.Errorf("stop_timeout %s must not be negative", c.StopTimeout)
	}
	if c.MonitorInterval < 0 {
		return fmt.Errorf("monitor_interval %s must not be negative", c.MonitorInterval)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}
	return nil
}

func globalConfig(context *cli.Context) *Config {
	if context.App != nil {
		if cfg, ok := context.App.Metadata[configKey].(*Config); ok {
			return cfg
		}
	}
	return &Config{}
}

func cgroupRoot(context *cli.Context) string {
	if context.GlobalIsSet("root") {
		return context.GlobalString("root")
	}
	if root := globalConfig(context).Root; root != "" {
		return root
	}
	if root := context.GlobalString("root"); root != "" {
		return root
	}
	return configs.DefaultCgroupRoot
}

func useSystemd(context *cli.Context) bool {
	if context.GlobalIsSet("systemd-cgroup") {
		return context.GlobalBool("systemd-cgroup")
	}
	return globalConfig(context).SystemdCgroup
}

// cpuPeriod returns the CFS period in microseconds.
func cpuPeriod(context *cli.Context) uint64 {
	if d := globalConfig(context).CpuPeriod; d > 0 {
		return uint64(d / time.Microsecond)
	}
	return configs.DefaultCpuPeriod
}

func stopTimeout(context *cli.Context) time.Duration {
	if context.IsSet("timeout") {
		return context.Duration("timeout")
	}
	if d := globalConfig(context).StopTimeout; d > 0 {
		return d
	}
	return libcontainer.DefaultStopTimeout
}

func monitorInterval(context *cli.Context) time.Duration {
	if context.IsSet("monitor-interval") {
		return context.Duration("monitor-interval")
	}
	if d := globalConfig(context).MonitorInterval; d > 0 {
		return d
	}
	return monitor.DefaultInterval
}

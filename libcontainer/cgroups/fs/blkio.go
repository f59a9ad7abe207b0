package fs

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/vortex/libcontainer/cgroups"
	"github.com/vortex/libcontainer/configs"
)

type BlkioGroup struct{}

func (s *BlkioGroup) Name() string {
	return "blkio"
}

func (s *BlkioGroup) Set(_ string, _ *configs.Resources) error {
	return nil
}

// GetStats sums the per-device byte counters of
// blkio.throttle.io_service_bytes, whose lines look like "8:0 Read 4096".
func (s *BlkioGroup) GetStats(path string, stats *cgroups.Stats) error {
	const file = "blkio.throttle.io_service_bytes"
	f, err := cgroups.OpenFile(path, file, os.O_RDONLY)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 3 {
			// the trailing "Total <n>" line
			continue
		}
		v, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return &cgroups.ParseError{Path: path, File: file, Err: err}
		}
		switch fields[1] {
		case "Read":
			stats.IOStats.ReadBytes += v
		case "Write":
			stats.IOStats.WriteBytes += v
		}
	}
	return sc.Err()
}

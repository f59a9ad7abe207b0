package fs2

import (
	"bufio"
	"os"
	"strings"

	"github.com/vortex/libcontainer/cgroups"
)

// statIo sums the rbytes and wbytes counters over every device listed in
// io.stat, e.g. "8:0 rbytes=90430464 wbytes=299008000 rios=8950 wios=1252".
func statIo(dirPath string, stats *cgroups.Stats) error {
	const file = "io.stat"
	f, err := cgroups.OpenFile(dirPath, file, os.O_RDONLY)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		parts := strings.Fields(sc.Text())
		if len(parts) < 2 {
			continue
		}
		for _, kv := range parts[1:] {
			key, value, ok := strings.Cut(kv, "=")
			if !ok {
				continue
			}
			v, err := cgroups.ParseUint(value, 10, 64)
			if err != nil {
				return &cgroups.ParseError{Path: dirPath, File: file, Err: err}
			}
			switch key {
			case "rbytes":
				stats.IOStats.ReadBytes += v
			case "wbytes":
				stats.IOStats.WriteBytes += v
			}
		}
	}
	return sc.Err()
}

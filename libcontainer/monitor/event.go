package monitor

import (
	"fmt"
	"io"
	"sync"
	"time"

	units "github.com/docker/go-units"
	"github.com/sirupsen/logrus"

	"github.com/vortex/libcontainer/cgroups"
	"github.com/vortex/libcontainer/utils"
)

type Kind string

const (
	Started        Kind = "started"
	Sample         Kind = "stats"
	CPUThrottled   Kind = "cpu_throttled"
	MemoryPressure Kind = "memory_pressure"
	Exiting        Kind = "exiting"
)

type Event struct {
	Kind           Kind           `json:"event"`
	ID             string         `json:"id"`
	Time           time.Time      `json:"time"`
	Stats          *cgroups.Stats `json:"stats,omitempty"`
	ThrottledDelta time.Duration  `json:"throttled_delta,omitempty"`
	MemoryPercent  float64        `json:"memory_percent,omitempty"`
	// Outcome and ExitCode are only set on Exiting.
	Outcome  string `json:"outcome,omitempty"`
	ExitCode int    `json:"exit_code,omitempty"`
}

// Fields returns the event as structured log fields.
func (e Event) Fields() logrus.Fields {
	f := logrus.Fields{"id": e.ID, "event": string(e.Kind)}
	switch e.Kind {
	case Sample:
		if s := e.Stats; s != nil {
			f["cpu"] = s.CpuTime().String()
			f["throttled"] = s.ThrottledTime().String()
			f["memory"] = units.BytesSize(float64(s.MemoryStats.Usage.Usage))
			f["pids"] = s.PidsStats.Current
			f["io_read"] = units.BytesSize(float64(s.IOStats.ReadBytes))
			f["io_write"] = units.BytesSize(float64(s.IOStats.WriteBytes))
		}
	case CPUThrottled:
		f["throttled_delta"] = e.ThrottledDelta.String()
	case MemoryPressure:
		f["memory_percent"] = fmt.Sprintf("%.1f", e.MemoryPercent)
	case Exiting:
		f["outcome"] = e.Outcome
		f["exit_code"] = e.ExitCode
	}
	return f
}

type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// LogSink logs every event through logger, warnings for the pressure
// events and info for the rest.
type LogSink struct {
	Logger logrus.FieldLogger
}

func (s LogSink) Emit(e Event) {
	entry := s.Logger.WithFields(e.Fields())
	switch e.Kind {
	case CPUThrottled, MemoryPressure:
		entry.Warn("container " + string(e.Kind))
	default:
		entry.Info("container " + string(e.Kind))
	}
}

// JSONSink writes every event as one JSON line.
type JSONSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{w: w}
}

func (s *JSONSink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := utils.WriteJSON(s.w, e); err != nil {
		logrus.WithError(err).Debug("unable to write monitor event")
		return
	}
	_, _ = io.WriteString(s.w, "\n")
}

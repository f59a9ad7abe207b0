// Package monitor samples the resource usage of a running container at a
// fixed interval and reports noteworthy changes as events.
package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/vortex/libcontainer"
	"github.com/vortex/libcontainer/cgroups"
)

const (
	// DefaultInterval is the time between two samples.
	DefaultInterval = 2 * time.Second

	// ThrottleThreshold is how much throttled time has to accumulate between
	// two samples for a cpu_throttled event.
	ThrottleThreshold = 100 * time.Millisecond

	// MemoryPressureThreshold is the share of the memory limit, in percent,
	// above which a memory_pressure event is emitted.
	MemoryPressureThreshold = 80.0
)

// StatsSource is implemented by *libcontainer.Container.
type StatsSource interface {
	Stats() (*cgroups.Stats, error)
}

type Monitor struct {
	id       string
	source   StatsSource
	sink     Sink
	interval time.Duration
	clock    clockwork.Clock
}

type Option func(*Monitor)

// WithClock replaces the real clock, for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(m *Monitor) { m.clock = clock }
}

// WithInterval sets the sampling interval. Non-positive values keep the
// default.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

func New(id string, source StatsSource, sink Sink, opts ...Option) *Monitor {
	m := &Monitor{
		id:       id,
		source:   source,
		sink:     sink,
		interval: DefaultInterval,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run samples until ctx is cancelled or the container's cgroup is gone.
// No event is emitted once the cancellation has been observed.
func (m *Monitor) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	m.sink.Emit(Event{Kind: Started, ID: m.id, Time: m.clock.Now()})

	var prev *cgroups.Stats
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		}
		stats, err := m.source.Stats()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			var lerr *libcontainer.ControllerLookupError
			if errors.As(err, &lerr) {
				logrus.WithField("id", m.id).Debug("cgroup is gone, monitor exits")
				return nil
			}
			logrus.WithError(err).WithField("id", m.id).Warn("unable to sample container stats")
			continue
		}
		for _, ev := range m.events(prev, stats) {
			m.sink.Emit(ev)
		}
		prev = stats
	}
}

func (m *Monitor) events(prev, cur *cgroups.Stats) []Event {
	now := m.clock.Now()
	events := []Event{{Kind: Sample, ID: m.id, Time: now, Stats: cur}}
	if prev != nil {
		delta := cur.ThrottledTime() - prev.ThrottledTime()
		if delta > ThrottleThreshold {
			events = append(events, Event{Kind: CPUThrottled, ID: m.id, Time: now, ThrottledDelta: delta})
		}
	}
	if pct := cur.MemoryPercent(); pct > MemoryPressureThreshold {
		events = append(events, Event{Kind: MemoryPressure, ID: m.id, Time: now, MemoryPercent: pct})
	}
	return events
}

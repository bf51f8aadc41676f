// Package cronwindow evaluates recurring time windows described by a cron
// start spec and a duration, used by schedule triggers to raise a pool's
// replica floor during known busy periods.
package cronwindow

import (
	"context"
	"fmt"
	"strings"
	"time"

	cron "github.com/netresearch/go-cron"

	"github.com/poolwarden/poolwarden/internal/logic/signal"
)

var _parser = cron.MustNewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Window is a recurring interval: it opens at every cron occurrence and
// stays active for the configured duration.
type Window struct {
	schedule cron.Schedule
	duration time.Duration
}

// New parses the window definition. If tz is non-empty and the spec has no
// CRON_TZ=/TZ= prefix, it prepends CRON_TZ=<tz>; defaults to UTC otherwise.
func New(spec, tz string, duration time.Duration) (*Window, error) {
	schedule, err := _parser.Parse(buildSpec(spec, tz))
	if err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}

	if duration <= 0 {
		return nil, fmt.Errorf("window duration must be positive, got %s", duration)
	}

	return &Window{
		schedule: schedule,
		duration: duration,
	}, nil
}

// Active reports whether `at` falls inside an occurrence of the window.
func (w *Window) Active(at time.Time) bool {
	// Walk occurrences starting just before the longest relevant lookback.
	// An occurrence that started within `duration` before `at` is active.
	probe := at.Add(-w.duration)

	for {
		next := w.schedule.Next(probe)
		if next.IsZero() || next.After(at) {
			return false
		}

		if !at.After(next.Add(w.duration)) {
			return true
		}

		probe = next
	}
}

func buildSpec(spec, tz string) string {
	hasTZPrefix := strings.HasPrefix(spec, "CRON_TZ=") ||
		strings.HasPrefix(spec, "TZ=")

	if tz != "" && !hasTZPrefix {
		return "CRON_TZ=" + tz + " " + spec
	}

	if !hasTZPrefix {
		return "CRON_TZ=UTC " + spec
	}

	return spec
}

// Source adapts a window into a schedule-kind signal source: it reads 1
// inside the window and 0 outside.
type Source struct {
	name   string
	window *Window
	now    func() time.Time
}

// NewSource creates a schedule signal source for the given trigger name.
func NewSource(name string, window *Window) *Source {
	return &Source{
		name:   name,
		window: window,
		now:    time.Now,
	}
}

var _ signal.Source = (*Source)(nil)

func (s *Source) Name() string {
	return s.name
}

func (s *Source) Kind() signal.Kind {
	return signal.KindSchedule
}

func (s *Source) Query(_ context.Context) (signal.Reading, error) {
	now := s.now()

	value := 0.0
	if s.window.Active(now) {
		value = 1.0
	}

	return signal.Reading{Value: value, At: now}, nil
}

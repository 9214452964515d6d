package policy

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ClockTime is a wall-clock point within a day, configured as "HH:MM".
// Presence is tracked separately from the value so a configured "00:00"
// is not mistaken for an unset field.
type ClockTime struct {
	Hour   int
	Minute int

	set bool
}

// UnmarshalYAML implements custom YAML unmarshaling for ClockTime.
func (c *ClockTime) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}

	var h, m int
	if _, err := fmt.Sscanf(str, "%d:%d", &h, &m); err != nil {
		return fmt.Errorf("invalid clock time '%s': expected HH:MM", str)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return fmt.Errorf("invalid clock time '%s': out of range", str)
	}

	c.Hour = h
	c.Minute = m
	c.set = true
	return nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// on returns the clock point on the same calendar day as t, in t's location.
func (c ClockTime) on(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), c.Hour, c.Minute, 0, 0, t.Location())
}

// isSet reports whether the value was provided in configuration.
func (c ClockTime) isSet() bool {
	return c.set
}

// nextMidnight returns the first midnight after t, in t's location.
func nextMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
}

// clamp keeps a computed "until" duration from going negative when the
// target point has already passed.
func clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// PageSchedule is the smart-TTL schedule used by the foreground report
// gateway. Field crews enter data on weekday mornings, so entries cached
// before the morning cutoff stay short-lived; after that the day's data is
// considered settled until evening.
type PageSchedule struct {
	MorningEnd   ClockTime     `yaml:"morning_end"`   // data entry considered done
	EveningStart ClockTime     `yaml:"evening_start"` // working day over
	MorningTTL   time.Duration `yaml:"morning_ttl"`
	EveningTTL   time.Duration `yaml:"evening_ttl"`
	DaytimeCap   time.Duration `yaml:"daytime_cap"`
}

// TTLAt evaluates the page schedule at the given wall-clock time.
// Pure function: no side effects, always returns a non-negative duration.
func (s PageSchedule) TTLAt(now time.Time) time.Duration {
	morningEnd := s.MorningEnd.on(now)
	eveningStart := s.EveningStart.on(now)

	if now.Before(morningEnd) {
		return s.MorningTTL
	}
	if !now.Before(eveningStart) {
		return s.EveningTTL
	}

	untilEvening := clamp(eveningStart.Sub(now))
	if untilEvening > s.DaytimeCap {
		return s.DaytimeCap
	}
	return untilEvening
}

// WorkerSchedule is the smart-TTL schedule used by the interception proxy.
// It is tuned independently from the page schedule: the active data-entry
// window is 06:30-09:00 on weekdays, weekends see no entry at all.
type WorkerSchedule struct {
	WindowStart ClockTime     `yaml:"window_start"`
	WindowEnd   ClockTime     `yaml:"window_end"`
	WindowTTL   time.Duration `yaml:"window_ttl"`
}

// TTLAt evaluates the worker schedule at the given wall-clock time.
func (s WorkerSchedule) TTLAt(now time.Time) time.Duration {
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return clamp(nextMidnight(now).Sub(now))
	}

	windowStart := s.WindowStart.on(now)
	windowEnd := s.WindowEnd.on(now)

	if now.Before(windowStart) {
		return clamp(windowStart.Sub(now))
	}
	if now.Before(windowEnd) {
		return s.WindowTTL
	}

	// Tomorrow's window start is computed on the next calendar day so a
	// daylight saving shift overnight does not skew it by an hour.
	untilNextWindow := s.WindowStart.on(nextMidnight(now)).Sub(now)
	untilMidnight := nextMidnight(now).Sub(now)
	if untilMidnight < untilNextWindow {
		return clamp(untilMidnight)
	}
	return clamp(untilNextWindow)
}

// Schedules bundles the two independently tuned TTL schedules. They cover
// the same real-world process but are configured separately per subsystem.
type Schedules struct {
	Page   PageSchedule   `yaml:"page_schedule"`
	Worker WorkerSchedule `yaml:"worker_schedule"`
}

// Default returns the built-in schedules used when no schedule file is
// configured.
func Default() Schedules {
	return Schedules{
		Page: PageSchedule{
			MorningEnd:   ClockTime{Hour: 8},
			EveningStart: ClockTime{Hour: 18},
			MorningTTL:   30 * time.Minute,
			EveningTTL:   4 * time.Hour,
			DaytimeCap:   10 * time.Hour,
		},
		Worker: WorkerSchedule{
			WindowStart: ClockTime{Hour: 6, Minute: 30},
			WindowEnd:   ClockTime{Hour: 9},
			WindowTTL:   5 * time.Minute,
		},
	}
}

// applyDefaults fills unset fields from the built-in schedules.
func (s *Schedules) applyDefaults() {
	def := Default()

	if !s.Page.MorningEnd.isSet() {
		s.Page.MorningEnd = def.Page.MorningEnd
	}
	if !s.Page.EveningStart.isSet() {
		s.Page.EveningStart = def.Page.EveningStart
	}
	if s.Page.MorningTTL == 0 {
		s.Page.MorningTTL = def.Page.MorningTTL
	}
	if s.Page.EveningTTL == 0 {
		s.Page.EveningTTL = def.Page.EveningTTL
	}
	if s.Page.DaytimeCap == 0 {
		s.Page.DaytimeCap = def.Page.DaytimeCap
	}

	if !s.Worker.WindowStart.isSet() {
		s.Worker.WindowStart = def.Worker.WindowStart
	}
	if !s.Worker.WindowEnd.isSet() {
		s.Worker.WindowEnd = def.Worker.WindowEnd
	}
	if s.Worker.WindowTTL == 0 {
		s.Worker.WindowTTL = def.Worker.WindowTTL
	}
}

// validate checks that the configured points within the day are ordered.
func (s *Schedules) validate() error {
	pageEnd := s.Page.MorningEnd.Hour*60 + s.Page.MorningEnd.Minute
	pageEvening := s.Page.EveningStart.Hour*60 + s.Page.EveningStart.Minute
	if pageEnd >= pageEvening {
		return fmt.Errorf("page schedule: morning_end %s must precede evening_start %s",
			s.Page.MorningEnd, s.Page.EveningStart)
	}

	workerStart := s.Worker.WindowStart.Hour*60 + s.Worker.WindowStart.Minute
	workerEnd := s.Worker.WindowEnd.Hour*60 + s.Worker.WindowEnd.Minute
	if workerStart >= workerEnd {
		return fmt.Errorf("worker schedule: window_start %s must precede window_end %s",
			s.Worker.WindowStart, s.Worker.WindowEnd)
	}

	return nil
}

// Package schedule generates the bookable slot grid for a calendar day from
// the clinic's fixed business hours. Slots are plain "HH:MM" strings; they
// are never persisted and are recomputed per request.
package schedule

import (
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

type Config struct {
	OpenHour        int
	CloseHour       int
	IntervalMinutes int
	ClosedWeekdays  map[time.Weekday]bool
}

func DefaultConfig() Config {
	return Config{
		OpenHour:        9,
		CloseHour:       19,
		IntervalMinutes: 60,
		ClosedWeekdays:  map[time.Weekday]bool{time.Sunday: true},
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.OpenHour <= 0 && c.CloseHour <= 0 {
		c.OpenHour, c.CloseHour = d.OpenHour, d.CloseHour
	}
	if c.IntervalMinutes <= 0 {
		c.IntervalMinutes = d.IntervalMinutes
	}
	if c.CloseHour <= c.OpenHour {
		c.CloseHour = c.OpenHour
	}
	return c
}

// DaySlots returns the ordered candidate slots for date. A closed weekday or
// a malformed date yields no slots.
func DaySlots(date string, cfg Config) []string {
	cfg = cfg.normalized()

	day, err := time.Parse(DateLayout, date)
	if err != nil {
		return nil
	}
	if cfg.ClosedWeekdays[day.Weekday()] {
		return nil
	}

	var slots []string
	for m := cfg.OpenHour * 60; m < cfg.CloseHour*60; m += cfg.IntervalMinutes {
		slots = append(slots, fmt.Sprintf("%02d:%02d", m/60, m%60))
	}
	return slots
}

// At resolves a (date, clock) pair into an instant in loc.
func At(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout+" "+ClockLayout, strings.TrimSpace(date)+" "+strings.TrimSpace(clock), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid slot %q %q: %w", date, clock, err)
	}
	return t, nil
}

// IsPast reports whether the slot's local timestamp is strictly before now.
// It is used to disable past slots in the UI; a slot that cannot be parsed
// is left enabled and rejected later by submission validation.
func IsPast(date, clock string, now time.Time) bool {
	t, err := At(date, clock, now.Location())
	if err != nil {
		return false
	}
	return t.Before(now)
}

// ParseClosedWeekdays accepts a comma list of weekday numbers (0=Sunday) or
// English names, e.g. "0" or "sunday,monday".
func ParseClosedWeekdays(raw string) map[time.Weekday]bool {
	out := map[time.Weekday]bool{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "" {
			continue
		}
		if len(part) == 1 && part[0] >= '0' && part[0] <= '6' {
			out[time.Weekday(part[0]-'0')] = true
			continue
		}
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			if strings.ToLower(wd.String()) == part {
				out[wd] = true
			}
		}
	}
	return out
}

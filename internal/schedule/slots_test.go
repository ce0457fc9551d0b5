package schedule

import (
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		OpenHour:        9,
		CloseHour:       19,
		IntervalMinutes: 60,
		ClosedWeekdays:  map[time.Weekday]bool{time.Sunday: true},
	}
}

func TestDaySlots_ClosedWeekday(t *testing.T) {
	// 2026-09-06 is a Sunday.
	slots := DaySlots("2026-09-06", testConfig())
	if len(slots) != 0 {
		t.Fatalf("expected no slots on a closed weekday, got %v", slots)
	}
}

func TestDaySlots_OpenDay(t *testing.T) {
	// 2026-09-01 is a Tuesday.
	slots := DaySlots("2026-09-01", testConfig())
	if len(slots) != 10 {
		t.Fatalf("expected 10 slots, got %d: %v", len(slots), slots)
	}
	if slots[0] != "09:00" {
		t.Fatalf("expected first slot 09:00, got %s", slots[0])
	}
	if slots[9] != "18:00" {
		t.Fatalf("expected last slot 18:00, got %s", slots[9])
	}
	for i := 1; i < len(slots); i++ {
		if slots[i] <= slots[i-1] {
			t.Fatalf("slots not strictly increasing at %d: %s <= %s", i, slots[i], slots[i-1])
		}
	}
}

func TestDaySlots_HalfHourInterval(t *testing.T) {
	cfg := testConfig()
	cfg.IntervalMinutes = 30
	slots := DaySlots("2026-09-01", cfg)
	if len(slots) != 20 {
		t.Fatalf("expected 20 slots, got %d", len(slots))
	}
	if slots[1] != "09:30" {
		t.Fatalf("expected second slot 09:30, got %s", slots[1])
	}
}

func TestDaySlots_MalformedDate(t *testing.T) {
	if slots := DaySlots("not-a-date", testConfig()); len(slots) != 0 {
		t.Fatalf("expected no slots for malformed date, got %v", slots)
	}
}

func TestIsPast(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 30, 0, 0, time.UTC)

	if !IsPast("2026-09-01", "12:00", now) {
		t.Fatal("12:00 should be past at 12:30")
	}
	if IsPast("2026-09-01", "13:00", now) {
		t.Fatal("13:00 should not be past at 12:30")
	}
	if IsPast("2026-09-02", "09:00", now) {
		t.Fatal("tomorrow should not be past")
	}
	if IsPast("garbage", "09:00", now) {
		t.Fatal("unparseable slots are not marked past")
	}
}

func TestParseClosedWeekdays(t *testing.T) {
	days := ParseClosedWeekdays("0, saturday")
	if !days[time.Sunday] || !days[time.Saturday] {
		t.Fatalf("expected sunday and saturday closed, got %v", days)
	}
	if days[time.Monday] {
		t.Fatal("monday should be open")
	}
}

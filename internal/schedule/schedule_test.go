package schedule

import (
	"testing"
	"time"

	"alertbridge/internal/state"
)

func TestParseTimesDiscardsBadEntries(t *testing.T) {
	t.Parallel()

	times := ParseTimes("14:30, 6:00, 25:00, nonsense, 8:61, 08:15")
	want := []TimeOfDay{{6, 0}, {8, 15}, {14, 30}}
	if len(times) != len(want) {
		t.Fatalf("expected %d entries, got %+v", len(want), times)
	}
	for i := range want {
		if times[i] != want[i] {
			t.Fatalf("position %d: expected %+v, got %+v", i, want[i], times[i])
		}
	}
}

func TestDueFiresOncePerScheduledTime(t *testing.T) {
	t.Parallel()

	schedule := "08:00,16:00"
	day := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	trigger, due := Due(day.Add(8*time.Hour), schedule, state.SummaryMark{}, false)
	if !due || !trigger.Equal(day.Add(8*time.Hour)) {
		t.Fatalf("tick at 08:00 must fire, got due=%v trigger=%v", due, trigger)
	}

	// Mark persisted at fire time; five minutes later nothing is pending.
	mark := state.SummaryMark{At: day.Add(8 * time.Hour)}
	if _, due := Due(day.Add(8*time.Hour+5*time.Minute), schedule, mark, true); due {
		t.Fatalf("tick at 08:05 must not re-fire")
	}

	// Next day the same entry fires again.
	nextDay := day.Add(24 * time.Hour)
	trigger, due = Due(nextDay.Add(8*time.Hour), schedule, mark, true)
	if !due || !trigger.Equal(nextDay.Add(8*time.Hour)) {
		t.Fatalf("next-day tick must fire, got due=%v trigger=%v", due, trigger)
	}
}

func TestDueAfterDowntimeFiresEarliestMissedOnly(t *testing.T) {
	t.Parallel()

	schedule := "08:00,16:00"
	day := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	now := day.Add(17 * time.Hour)

	trigger, due := Due(now, schedule, state.SummaryMark{}, false)
	if !due || !trigger.Equal(day.Add(8*time.Hour)) {
		t.Fatalf("earliest missed entry must fire first, got due=%v trigger=%v", due, trigger)
	}

	// The mark is persisted as "now", which floors out the 16:00 entry.
	mark := state.SummaryMark{At: now}
	if _, due := Due(now.Add(time.Minute), schedule, mark, true); due {
		t.Fatalf("later missed entries must not catch up")
	}
}

func TestDueNotYetScheduled(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	if _, due := Due(day.Add(7*time.Hour), "08:00,16:00", state.SummaryMark{}, false); due {
		t.Fatalf("nothing scheduled before 08:00")
	}
}

func TestDueEmptyScheduleNeverFires(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	if _, due := Due(now, "garbage,entries", state.SummaryMark{}, false); due {
		t.Fatalf("unparseable schedule must never fire")
	}
}

func TestDueLegacyMinuteMark(t *testing.T) {
	t.Parallel()

	schedule := "06:00,14:30"
	day := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	// Mark from earlier today (06:00 = minute 360): 14:30 still fires.
	mark := state.SummaryMark{LegacyMinute: 360, Legacy: true}
	trigger, due := Due(day.Add(14*time.Hour+30*time.Minute), schedule, mark, true)
	if !due || !trigger.Equal(day.Add(14*time.Hour+30*time.Minute)) {
		t.Fatalf("later entry must fire past a legacy morning mark, got due=%v trigger=%v", due, trigger)
	}

	// Mark at yesterday's 14:30 (minute 870): at 06:00 today it is stale,
	// so the morning entry fires.
	stale := state.SummaryMark{LegacyMinute: 870, Legacy: true}
	trigger, due = Due(day.Add(6*time.Hour), schedule, stale, true)
	if !due || !trigger.Equal(day.Add(6*time.Hour)) {
		t.Fatalf("stale legacy mark must reset to never, got due=%v trigger=%v", due, trigger)
	}

	// Same minute value at 15:00 the same day is not stale: nothing pending.
	if _, due := Due(day.Add(15*time.Hour), schedule, stale, true); due {
		t.Fatalf("non-stale legacy mark must suppress re-fire")
	}
}

package schedule

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"alertbridge/internal/state"
)

// TimeOfDay is one parsed schedule entry.
// Params: UTC hour and minute.
// Returns: trigger point repeated every day.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// MinuteOfDay returns the entry position within one day.
// Params: none.
// Returns: minutes since midnight.
func (t TimeOfDay) MinuteOfDay() int {
	return t.Hour*60 + t.Minute
}

// At anchors the entry on one calendar day.
// Params: reference time supplying the UTC date.
// Returns: absolute trigger timestamp for that day.
func (t TimeOfDay) At(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, time.UTC)
}

// ParseTimes parses a comma-separated HH:MM schedule string.
// Params: schedule string like "6:00,14:30"; entries are UTC times of day.
// Returns: ascending entry list; unparseable entries are discarded.
func ParseTimes(schedule string) []TimeOfDay {
	parts := strings.Split(schedule, ",")
	out := make([]TimeOfDay, 0, len(parts))
	for _, part := range parts {
		entry, ok := parseTime(strings.TrimSpace(part))
		if !ok {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].MinuteOfDay() < out[j].MinuteOfDay()
	})
	return out
}

// parseTime parses one HH:MM entry.
// Params: trimmed entry string.
// Returns: parsed entry and validity flag.
func parseTime(entry string) (TimeOfDay, bool) {
	hourStr, minuteStr, ok := strings.Cut(entry, ":")
	if !ok {
		return TimeOfDay{}, false
	}
	hour, err := strconv.Atoi(strings.TrimSpace(hourStr))
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, false
	}
	minute, err := strconv.Atoi(strings.TrimSpace(minuteStr))
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, false
	}
	return TimeOfDay{Hour: hour, Minute: minute}, true
}

// Due decides whether a summary trigger is pending right now.
// Params: current time, schedule string, last-fired mark, and mark presence.
// Returns: the qualifying trigger timestamp and a due flag. At most one entry
// qualifies per call; after downtime only the earliest missed entry fires, the
// persisted mark then floors out the later ones for the rest of the day.
func Due(now time.Time, schedule string, mark state.SummaryMark, found bool) (time.Time, bool) {
	times := ParseTimes(schedule)
	if len(times) == 0 {
		return time.Time{}, false
	}

	lastFired := resolveMark(now, times, mark, found)
	for _, entry := range times {
		trigger := entry.At(now)
		if trigger.After(now) {
			break
		}
		if trigger.After(lastFired) {
			return trigger, true
		}
	}
	return time.Time{}, false
}

// resolveMark converts the stored mark into an absolute floor timestamp.
// Params: current time, parsed schedule, stored mark, and presence flag.
// Returns: floor timestamp; zero means "never fired".
func resolveMark(now time.Time, times []TimeOfDay, mark state.SummaryMark, found bool) time.Time {
	if !found {
		return time.Time{}
	}
	if !mark.Legacy {
		return mark.At
	}
	// Minute-of-day marks carry no date. A mark at or past the day's last
	// scheduled entry that is also ahead of the current minute can only come
	// from a previous day, so it resets to "never".
	lastScheduled := times[len(times)-1].MinuteOfDay()
	currentMinute := now.UTC().Hour()*60 + now.UTC().Minute()
	if mark.LegacyMinute >= lastScheduled && mark.LegacyMinute > currentMinute {
		return time.Time{}
	}
	day := now.UTC()
	return time.Date(day.Year(), day.Month(), day.Day(), mark.LegacyMinute/60, mark.LegacyMinute%60, 0, 0, time.UTC)
}

package collections

import (
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
	clockLayout = "15:04"
)

// IntervalKey builds the canonical interval key for a start/end pair. Slot
// interval maps are always keyed this way.
func IntervalKey(startTime, endTime string) string {
	return startTime + "-" + endTime
}

// SplitInterval breaks an interval key back into its start and end times.
func SplitInterval(interval string) (startTime, endTime string, err error) {
	parts := strings.Split(interval, "-")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed interval %q", interval)
	}
	return parts[0], parts[1], nil
}

// IntervalMinutes computes the duration of an "HH:MM-HH:MM" interval in
// minutes.
func IntervalMinutes(interval string) (int, error) {
	startTime, endTime, err := SplitInterval(interval)
	if err != nil {
		return 0, err
	}
	start, err := time.Parse(clockLayout, startTime)
	if err != nil {
		return 0, fmt.Errorf("malformed interval %q: %w", interval, err)
	}
	end, err := time.Parse(clockLayout, endTime)
	if err != nil {
		return 0, fmt.Errorf("malformed interval %q: %w", interval, err)
	}
	return int(end.Sub(start).Minutes()), nil
}

// MonthOf gives the "YYYY-MM" month bucket for an ISO "YYYY-MM-DD" date.
func MonthOf(date string) (string, error) {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return "", fmt.Errorf("malformed date %q: %w", date, err)
	}
	return day.Format(monthLayout), nil
}

// MonthKey gives the "YYYY-MM" bucket containing t.
func MonthKey(t time.Time) string {
	return t.Format(monthLayout)
}

// NextMonthKey gives the "YYYY-MM" bucket for the month after the one
// containing t. Anchored to the first of the month so late-month days can't
// skip over short months.
func NextMonthKey(t time.Time) string {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 1, 0).Format(monthLayout)
}

package parse

import (
	"fmt"
	"strconv"
	"strings"
)

// DayTime is a wall-clock time of day with second precision, detached from
// any date or timezone. Broadcast variant parameters carry these as
// "HH:MM:SS" strings.
type DayTime struct {
	Hour   int
	Minute int
	Second int
}

// ParseDayTime parses an "HH:MM:SS" string. Each component must be within
// its natural range; the string as a whole within 00:00:00..23:59:59.
func ParseDayTime(raw string) (DayTime, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 3 {
		return DayTime{}, fmt.Errorf("time must be in HH:MM:SS format, got %q", raw)
	}

	vals := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return DayTime{}, fmt.Errorf("time must be in HH:MM:SS format, got %q", raw)
		}
		vals[i] = n
	}

	d := DayTime{Hour: vals[0], Minute: vals[1], Second: vals[2]}
	if d.Hour < 0 || d.Hour > 23 {
		return DayTime{}, fmt.Errorf("hours must be within 0..23, got %d", d.Hour)
	}
	if d.Minute < 0 || d.Minute > 59 {
		return DayTime{}, fmt.Errorf("minutes must be within 0..59, got %d", d.Minute)
	}
	if d.Second < 0 || d.Second > 59 {
		return DayTime{}, fmt.Errorf("seconds must be within 0..59, got %d", d.Second)
	}
	return d, nil
}

// Seconds returns the offset from midnight.
func (d DayTime) Seconds() int {
	return d.Hour*3600 + d.Minute*60 + d.Second
}

// Before reports whether d is strictly earlier in the day than other.
func (d DayTime) Before(other DayTime) bool {
	return d.Seconds() < other.Seconds()
}

func (d DayTime) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", d.Hour, d.Minute, d.Second)
}

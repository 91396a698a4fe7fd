package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	isoLayout      = "2006-01-02T15:04:05"
	isoMicroLayout = "2006-01-02T15:04:05.000000"
	dateLayout     = "2006-01-02"
)

// Timestamp is an ISO 8601 date-time as written in tasks.json. Naive values (no
// offset) are read in the local zone and written back without an offset.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates to microseconds, the precision of the text format, so a
// value survives a write/read cycle unchanged.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.Truncate(time.Microsecond)}
}

// ParseTimestamp accepts RFC 3339, naive date-times (with or without fractional
// seconds or seconds at all) and plain dates.
func ParseTimestamp(s string) (Timestamp, error) {
	return ParseTimestampIn(s, time.Local)
}

// ParseTimestampIn is ParseTimestamp with naive values read as wall-clock times
// in loc.
func ParseTimestampIn(s string, loc *time.Location) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return NewTimestamp(t), nil
	}
	for _, layout := range []string{isoLayout, "2006-01-02T15:04", "2006-01-02 15:04:05", dateLayout} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return NewTimestamp(t), nil
		}
	}
	return Timestamp{}, fmt.Errorf("%w: %q is not an ISO 8601 date or date-time", ErrValidation, s)
}

// String renders the value the same way it is stored.
func (ts Timestamp) String() string {
	if ts.IsZero() {
		return ""
	}
	layout := isoLayout
	if ts.Nanosecond() != 0 {
		layout = isoMicroLayout
	}
	if ts.Location() != time.Local {
		layout += "-07:00"
	}
	return ts.Format(layout)
}

// DateString returns the YYYY-MM-DD part in the value's own zone.
func (ts Timestamp) DateString() string {
	return ts.Format(dateLayout)
}

// MarshalJSON writes a zero Timestamp as null.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + ts.String() + `"`), nil
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		ts.Time = time.Time{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

func (ts *Timestamp) clone() *Timestamp {
	if ts == nil {
		return nil
	}
	c := *ts
	return &c
}

package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidTimeFormat is returned when an endpoint cannot be parsed as a timestamp.
	ErrInvalidTimeFormat = errors.New("scheduler: invalid time format")
	// ErrInvalidInterval is returned when an endpoint is not aligned to the slot granularity.
	ErrInvalidInterval = errors.New("scheduler: time must be in 15-minute intervals")
	// ErrPastStartTime is returned when the range does not start in the future.
	ErrPastStartTime = errors.New("scheduler: start time must be in the future")
	// ErrInvalidOrdering is returned when the start is not strictly before the end.
	ErrInvalidOrdering = errors.New("scheduler: start time must be before end time")
)

// SlotMinutes is the granularity every booking endpoint must align to.
const SlotMinutes = 15

// Range is a half-open interval [Start, End).
type Range struct {
	Start time.Time
	End   time.Time
}

// Duration reports the length of the range.
func (r Range) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Overlaps reports whether two half-open ranges share any instant.
// Ranges that merely touch at an endpoint do not overlap.
func (r Range) Overlaps(other Range) bool {
	return r.Start.Before(other.End) && r.End.After(other.Start)
}

// UTC returns the range with both endpoints converted to UTC.
func (r Range) UTC() Range {
	return Range{Start: r.Start.UTC(), End: r.End.UTC()}
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Validator checks proposed booking ranges. Values without a UTC offset are
// interpreted in the configured location.
type Validator struct {
	now      func() time.Time
	location *time.Location
}

// NewValidator constructs a validator. A nil clock defaults to time.Now and a
// nil location defaults to UTC.
func NewValidator(now func() time.Time, location *time.Location) *Validator {
	if now == nil {
		now = time.Now
	}
	if location == nil {
		location = time.UTC
	}
	return &Validator{now: now, location: location}
}

// Parse converts a raw timestamp into an instant.
func (v *Validator) Parse(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidTimeFormat)
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	loc := time.UTC
	if v != nil && v.location != nil {
		loc = v.location
	}
	for _, layout := range naiveLayouts {
		if ts, err := time.ParseInLocation(layout, value, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, value)
}

// Validate parses both endpoints and applies the range rules in order:
// format, interval alignment, future start, then ordering.
func (v *Validator) Validate(start, end string) (Range, error) {
	startAt, err := v.Parse(start)
	if err != nil {
		return Range{}, err
	}
	endAt, err := v.Parse(end)
	if err != nil {
		return Range{}, err
	}
	return v.ValidateRange(startAt, endAt)
}

// ValidateRange applies the alignment, future start and ordering rules to
// already parsed endpoints. Endpoints are truncated to the second first, so the
// checked range is the one that gets stored.
func (v *Validator) ValidateRange(start, end time.Time) (Range, error) {
	if start.IsZero() || end.IsZero() {
		return Range{}, fmt.Errorf("%w: missing endpoint", ErrInvalidTimeFormat)
	}
	start = start.Truncate(time.Second)
	end = end.Truncate(time.Second)
	if start.Minute()%SlotMinutes != 0 || end.Minute()%SlotMinutes != 0 {
		return Range{}, ErrInvalidInterval
	}

	now := time.Now
	if v != nil && v.now != nil {
		now = v.now
	}
	if !start.After(now()) {
		return Range{}, ErrPastStartTime
	}
	if !start.Before(end) {
		return Range{}, ErrInvalidOrdering
	}

	return Range{Start: start, End: end}.UTC(), nil
}

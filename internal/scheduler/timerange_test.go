package scheduler

import (
	"errors"
	"testing"
	"time"
)

func TestValidator_Validate(t *testing.T) {
	now := time.Date(2030, time.January, 7, 9, 0, 0, 0, time.UTC)
	validator := NewValidator(func() time.Time { return now }, time.UTC)

	cases := []struct {
		name    string
		start   string
		end     string
		wantErr error
	}{
		{name: "unparseable start", start: "tomorrow", end: "2030-01-07T11:00:00Z", wantErr: ErrInvalidTimeFormat},
		{name: "unparseable end", start: "2030-01-07T10:00:00Z", end: "", wantErr: ErrInvalidTimeFormat},
		{name: "misaligned start", start: "2030-01-07T10:10:00Z", end: "2030-01-07T11:00:00Z", wantErr: ErrInvalidInterval},
		{name: "misaligned end", start: "2030-01-07T10:00:00Z", end: "2030-01-07T11:05:00Z", wantErr: ErrInvalidInterval},
		{name: "start equals now", start: "2030-01-07T09:00:00Z", end: "2030-01-07T10:00:00Z", wantErr: ErrPastStartTime},
		{name: "start in past", start: "2030-01-07T08:00:00Z", end: "2030-01-07T10:00:00Z", wantErr: ErrPastStartTime},
		{name: "start equals end", start: "2030-01-07T10:00:00Z", end: "2030-01-07T10:00:00Z", wantErr: ErrInvalidOrdering},
		{name: "end before start", start: "2030-01-07T11:00:00Z", end: "2030-01-07T10:00:00Z", wantErr: ErrInvalidOrdering},
		{name: "misaligned and past reports interval first", start: "2030-01-07T08:10:00Z", end: "2030-01-07T08:00:00Z", wantErr: ErrInvalidInterval},
		{name: "valid with offset", start: "2030-01-07T12:00:00+02:00", end: "2030-01-07T13:15:00+02:00"},
		{name: "valid naive", start: "2030-01-07T10:00:00", end: "2030-01-07T10:45:00"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rng, err := validator.Validate(tc.start, tc.end)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rng.Start.Location() != time.UTC || rng.End.Location() != time.UTC {
				t.Fatalf("expected UTC normalised range, got %v", rng)
			}
			if !rng.Start.Before(rng.End) {
				t.Fatalf("expected ordered range, got %v", rng)
			}
		})
	}
}

func TestValidator_ParseNaiveUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	validator := NewValidator(nil, loc)

	ts, err := validator.Parse("2030-01-07T10:00:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2030, time.January, 7, 7, 0, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Fatalf("expected %v, got %v", want, ts.UTC())
	}
}

func TestValidator_TruncatesToSecond(t *testing.T) {
	now := time.Date(2030, time.January, 7, 9, 0, 0, 0, time.UTC)
	validator := NewValidator(func() time.Time { return now }, time.UTC)

	rng, err := validator.Validate("2030-01-07T10:15:42.750+01:00", "2030-01-07T11:30:05.5Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantStart := time.Date(2030, time.January, 7, 9, 15, 42, 0, time.UTC)
	wantEnd := time.Date(2030, time.January, 7, 11, 30, 5, 0, time.UTC)
	if !rng.Start.Equal(wantStart) || !rng.End.Equal(wantEnd) {
		t.Fatalf("expected [%v, %v), got [%v, %v)", wantStart, wantEnd, rng.Start, rng.End)
	}

	if _, err := validator.Validate("2030-01-07T10:15:00.2Z", "2030-01-07T10:15:00.9Z"); !errors.Is(err, ErrInvalidOrdering) {
		t.Fatalf("expected %v for a sub-second range, got %v", ErrInvalidOrdering, err)
	}
}

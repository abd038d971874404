package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateRangeValidate(t *testing.T) {
	tests := []struct {
		name  string
		r     DateRange
		valid bool
	}{
		{name: "valid", r: DateRange{Start: "2024-01-01", End: "2024-01-31"}, valid: true},
		{name: "single day", r: DateRange{Start: "2024-01-01", End: "2024-01-01"}, valid: true},
		{name: "missing start", r: DateRange{End: "2024-01-31"}, valid: false},
		{name: "missing end", r: DateRange{Start: "2024-01-01"}, valid: false},
		{name: "inverted", r: DateRange{Start: "2024-02-01", End: "2024-01-01"}, valid: false},
		{name: "not a date", r: DateRange{Start: "yesterday", End: "2024-01-31"}, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestDateRangeDays(t *testing.T) {
	assert.Equal(t, 1, DateRange{Start: "2024-01-01", End: "2024-01-01"}.Days())
	assert.Equal(t, 7, DateRange{Start: "2024-01-08", End: "2024-01-14"}.Days())
	assert.Equal(t, 29, DateRange{Start: "2024-02-01", End: "2024-02-29"}.Days()) // leap year
}

func TestDateRangePreviousPeriod(t *testing.T) {
	r := DateRange{Start: "2024-01-08", End: "2024-01-14"}
	prev := r.PreviousPeriod()
	assert.Equal(t, DateRange{Start: "2024-01-01", End: "2024-01-07"}, prev)
	assert.Equal(t, r.Days(), prev.Days())

	// Adjacent, no overlap or gap.
	assert.Equal(t, "2024-01-07", prev.End)
}

func TestFetchResultIdentity(t *testing.T) {
	at := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	a := &FetchResult{RequestID: "req-1", FetchedAt: at}
	b := &FetchResult{RequestID: "req-1", FetchedAt: at}
	assert.Equal(t, a.Identity(), b.Identity())

	c := &FetchResult{RequestID: "req-2", FetchedAt: at}
	assert.NotEqual(t, a.Identity(), c.Identity())

	d := &FetchResult{RequestID: "req-1", FetchedAt: at.Add(time.Nanosecond)}
	assert.NotEqual(t, a.Identity(), d.Identity())

	// Identity is timezone-insensitive.
	est := &FetchResult{RequestID: "req-1", FetchedAt: at.In(time.FixedZone("EST", -5*3600))}
	assert.Equal(t, a.Identity(), est.Identity())
}

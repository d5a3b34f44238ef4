package fastlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTimestamp(t *testing.T) {
	got, err := ResolveTimestamp("12/25-14:32:10.123456", 2025, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 25, 14, 32, 10, 123456000, time.UTC), got)

	got, err = ResolveTimestamp("01/02-03:04:05.5", 2024, nil)
	require.NoError(t, err)
	assert.Equal(t, 500000000, got.Nanosecond())
}

func TestResolveTimestamp_Zone(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)

	got, err := ResolveTimestamp("06/01-12:00:00.000000", 2025, loc)
	require.NoError(t, err)
	assert.Equal(t, loc, got.Location())
	assert.Equal(t, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), got.UTC())
}

func TestResolveTimestamp_LeapDay(t *testing.T) {
	_, err := ResolveTimestamp("02/29-00:00:00.000000", 2024, nil)
	assert.NoError(t, err)

	_, err = ResolveTimestamp("02/29-00:00:00.000000", 2025, nil)
	assert.ErrorIs(t, err, ErrMalformedTimestamp)
}

func TestResolveTimestamp_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"month 13", "13/01-00:00:00.000000"},
		{"month 0", "00/01-00:00:00.000000"},
		{"day 32", "01/32-00:00:00.000000"},
		{"april 31", "04/31-00:00:00.000000"},
		{"hour 24", "01/01-24:00:00.000000"},
		{"minute 60", "01/01-00:60:00.000000"},
		{"second 60", "01/01-00:00:60.000000"},
		{"no fraction", "01/01-00:00:00."},
		{"fraction too long", "01/01-00:00:00.1234567"},
		{"single digit month", "1/01-00:00:00.000000"},
		{"wrong separator", "01-01-00:00:00.000000"},
		{"letters", "ab/01-00:00:00.000000"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveTimestamp(tt.token, 2025, nil)
			assert.ErrorIs(t, err, ErrMalformedTimestamp)
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2025, 3, 4, 5, 6, 7, 890000000, time.UTC)
	assert.Equal(t, "03/04-05:06:07.890000", FormatTimestamp(ts))

	back, err := ResolveTimestamp(FormatTimestamp(ts), 2025, nil)
	require.NoError(t, err)
	assert.True(t, ts.Equal(back))
}

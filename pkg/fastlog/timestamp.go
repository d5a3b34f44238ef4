package fastlog

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformedTimestamp is returned when a timestamp token violates the
// MM/DD-HH:MM:SS.ffffff shape. The grammar already constrains the digits, so
// seeing this means an upstream invariant was broken.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

const (
	tsPrefixLen  = len("MM/DD-HH:MM:SS.")
	maxFracDigit = 6
)

var tsSeparators = [...]struct {
	offset int
	char   byte
}{{2, '/'}, {5, '-'}, {8, ':'}, {11, ':'}, {14, '.'}}

// ResolveTimestamp converts a year-less token into an absolute time using the
// supplied year. A nil location yields a zone-less value, represented in UTC;
// such values are only comparable with other zone-less values.
func ResolveTimestamp(token string, year int, loc *time.Location) (time.Time, error) {
	if len(token) <= tsPrefixLen || len(token) > tsPrefixLen+maxFracDigit {
		return time.Time{}, fmt.Errorf("%w: %q: unexpected length %d", ErrMalformedTimestamp, token, len(token))
	}
	if year < 1 || year > 9999 {
		return time.Time{}, fmt.Errorf("%w: %q: year %d out of range", ErrMalformedTimestamp, token, year)
	}

	for _, sep := range tsSeparators {
		if token[sep.offset] != sep.char {
			return time.Time{}, fmt.Errorf("%w: %q: expected %q at offset %d", ErrMalformedTimestamp, token, sep.char, sep.offset)
		}
	}

	fields := [5]int{}
	for i, off := range [5]int{0, 3, 6, 9, 12} {
		v, ok := atoiDigits(token[off : off+2])
		if !ok {
			return time.Time{}, fmt.Errorf("%w: %q: non-numeric field at offset %d", ErrMalformedTimestamp, token, off)
		}
		fields[i] = v
	}
	month, day, hour, minute, second := fields[0], fields[1], fields[2], fields[3], fields[4]

	frac := token[tsPrefixLen:]
	micros, ok := atoiDigits(frac)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q: non-numeric fraction", ErrMalformedTimestamp, token)
	}
	for i := len(frac); i < maxFracDigit; i++ {
		micros *= 10
	}

	switch {
	case month < 1 || month > 12:
		return time.Time{}, fmt.Errorf("%w: %q: month %d out of range", ErrMalformedTimestamp, token, month)
	case day < 1 || day > daysIn(time.Month(month), year):
		return time.Time{}, fmt.Errorf("%w: %q: day %d out of range for %d-%02d", ErrMalformedTimestamp, token, day, year, month)
	case hour > 23:
		return time.Time{}, fmt.Errorf("%w: %q: hour %d out of range", ErrMalformedTimestamp, token, hour)
	case minute > 59:
		return time.Time{}, fmt.Errorf("%w: %q: minute %d out of range", ErrMalformedTimestamp, token, minute)
	case second > 59:
		return time.Time{}, fmt.Errorf("%w: %q: second %d out of range", ErrMalformedTimestamp, token, second)
	}

	if loc == nil {
		loc = time.UTC
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, micros*int(time.Microsecond), loc), nil
}

// FormatTimestamp renders t back into the year-less token shape.
func FormatTimestamp(t time.Time) string {
	return fmt.Sprintf("%02d/%02d-%02d:%02d:%02d.%06d",
		int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/int(time.Microsecond))
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func atoiDigits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

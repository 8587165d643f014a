package model

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of stay dates.
const DateLayout = "2006-01-02"

// DateRange is a half-open stay window [Checkin, Checkout).  Both ends
// are calendar dates held as UTC midnight.
type DateRange struct {
	Checkin  time.Time
	Checkout time.Time
}

// ParseDate parses a YYYY-MM-DD string into UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: expected YYYY-MM-DD, got %q", ErrValidation, s)
	}
	return t, nil
}

// ParseDateRange parses both ends and validates the range.
func ParseDateRange(checkin, checkout string) (DateRange, error) {
	in, err := ParseDate(checkin)
	if err != nil {
		return DateRange{}, err
	}
	out, err := ParseDate(checkout)
	if err != nil {
		return DateRange{}, err
	}
	r := DateRange{Checkin: in, Checkout: out}
	return r, r.Validate()
}

// Truncate normalizes both ends to UTC midnight.
func (r DateRange) Truncate() DateRange {
	return DateRange{Checkin: day(r.Checkin), Checkout: day(r.Checkout)}
}

// Validate enforces checkin < checkout.
func (r DateRange) Validate() error {
	if r.Checkin.IsZero() || r.Checkout.IsZero() || !r.Checkin.Before(r.Checkout) {
		return ErrInvalidDateRange
	}
	return nil
}

// Nights is the number of whole nights in the range.
func (r DateRange) Nights() int {
	return int(day(r.Checkout).Sub(day(r.Checkin)) / (24 * time.Hour))
}

func (r DateRange) String() string {
	return r.Checkin.Format(DateLayout) + "/" + r.Checkout.Format(DateLayout)
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

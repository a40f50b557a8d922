package availability

import (
	"fmt"
	"time"

	pkgerrors "github.com/ssr0016/next-rental-eq-marketplace/pkg/errors"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// DateRange is an inclusive range of calendar days. Both ends are stored as
// midnight UTC so comparisons never depend on the caller's time zone.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Day truncates t to its calendar date, keeping the date t has in its own
// location, and returns it as midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", value))
	}
	return t, nil
}

// NewDateRange normalizes both ends and rejects ranges that end before they start.
func NewDateRange(from, to time.Time) (DateRange, error) {
	if from.IsZero() || to.IsZero() {
		return DateRange{}, pkgerrors.New(pkgerrors.CodeValidation, "from and to dates are required")
	}
	r := DateRange{From: Day(from), To: Day(to)}
	if r.From.After(r.To) {
		return DateRange{}, pkgerrors.New(pkgerrors.CodeValidation, "from date must not be after to date").
			WithDetails(map[string]string{"from": r.From.Format(DateLayout), "to": r.To.Format(DateLayout)})
	}
	return r, nil
}

// ParseDateRange builds a range from two YYYY-MM-DD strings.
func ParseDateRange(from, to string) (DateRange, error) {
	f, err := ParseDay(from)
	if err != nil {
		return DateRange{}, err
	}
	t, err := ParseDay(to)
	if err != nil {
		return DateRange{}, err
	}
	return NewDateRange(f, t)
}

// Overlaps reports whether the two ranges share at least one day. Touching
// ends count as overlapping.
func (r DateRange) Overlaps(other DateRange) bool {
	return !r.From.After(other.To) && !other.From.After(r.To)
}

// Contains reports whether day falls inside the range.
func (r DateRange) Contains(day time.Time) bool {
	d := Day(day)
	return !d.Before(r.From) && !d.After(r.To)
}

// Span is the number of calendar days covered, counting both ends.
func (r DateRange) Span() int {
	return int(r.To.Sub(r.From).Hours()/24) + 1
}

// BillableDays is the rental length charged: the difference between the end
// and start dates, with a one-day minimum for same-day rentals.
func (r DateRange) BillableDays() int {
	days := int(r.To.Sub(r.From).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}

func (r DateRange) String() string {
	return r.From.Format(DateLayout) + ".." + r.To.Format(DateLayout)
}

// Today returns the current calendar day in loc as midnight UTC.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Day(now.In(loc))
}

package period

import (
	"fmt"
	"sort"
	"time"
)

// Key identifies a single (year, month) recognition bucket.
// The canonical string form is "YYYY-MM". Keys are immutable values.
type Key struct {
	Year  int
	Month time.Month
}

// New validates the month range and returns a Key.
func New(year int, month int) (Key, error) {
	if month < 1 || month > 12 {
		return Key{}, fmt.Errorf("invalid month %d: must be between 1 and 12", month)
	}
	return Key{Year: year, Month: time.Month(month)}, nil
}

// Parse reads the canonical "YYYY-MM" form.
func Parse(s string) (Key, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Key{}, fmt.Errorf("invalid period %q: expected YYYY-MM", s)
	}
	return Key{Year: t.Year(), Month: t.Month()}, nil
}

// FromDate returns the Key of the month containing t.
func FromDate(t time.Time) Key {
	return Key{Year: t.Year(), Month: t.Month()}
}

// String returns the canonical "YYYY-MM" form.
func (k Key) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

// FirstOfMonth returns the recognition-month date (first day, midnight UTC).
func (k Key) FirstOfMonth() time.Time {
	return time.Date(k.Year, k.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Before reports whether k is chronologically earlier than other.
func (k Key) Before(other Key) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Month < other.Month
}

// Build combines a chosen year with user-toggled month numbers into an ordered
// key sequence: months are de-duplicated and sorted ascending. An empty month
// selection yields an empty sequence; rejecting it is the validator's job.
// Months spanning two years require two separate sessions; there is no rollover.
func Build(year int, months []int) ([]Key, error) {
	seen := make(map[int]bool, len(months))
	keys := make([]Key, 0, len(months))
	for _, m := range months {
		if seen[m] {
			continue
		}
		k, err := New(year, m)
		if err != nil {
			return nil, err
		}
		seen[m] = true
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys, nil
}

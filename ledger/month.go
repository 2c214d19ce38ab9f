package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// MONTH ID - The aggregation period key
// =============================================================================

// MonthID identifies one calendar month in "YYYY-MM" form. It is derived
// from the voucher date and keys the per-company monthly rollups.
type MonthID string

const monthLayout = "2006-01"

// MonthOf derives the MonthID for a point in time, normalized to UTC so a
// voucher near midnight cannot land in different months on different hosts.
func MonthOf(t time.Time) MonthID {
	return MonthID(t.UTC().Format(monthLayout))
}

// ParseMonthID validates and parses a "YYYY-MM" string.
func ParseMonthID(s string) (MonthID, error) {
	if _, err := time.Parse(monthLayout, s); err != nil {
		return "", fmt.Errorf("invalid month id %q: %w", s, err)
	}
	return MonthID(s), nil
}

// Start returns midnight UTC on the first day of the month.
func (m MonthID) Start() time.Time {
	t, err := time.Parse(monthLayout, string(m))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Next returns the following calendar month.
func (m MonthID) Next() MonthID {
	return MonthOf(m.Start().AddDate(0, 1, 0))
}

func (m MonthID) String() string { return string(m) }

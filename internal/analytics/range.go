package analytics

import (
	"strings"
	"time"

	"github.com/ariefcatur/go-book-marketplace/internal/orders"
)

type Range string

const (
	RangeAll   Range = "all"
	RangeWeek  Range = "week"
	RangeMonth Range = "month"
	RangeYear  Range = "year"
)

// ParseRange accepts week, month, year, all or empty (all).
func ParseRange(s string) (Range, error) {
	switch r := Range(strings.ToLower(strings.TrimSpace(s))); r {
	case "", RangeAll:
		return RangeAll, nil
	case RangeWeek, RangeMonth, RangeYear:
		return r, nil
	default:
		return "", orders.Validationf("unknown range %q (want week, month, year or all)", s)
	}
}

// Since is the inclusive lower bound of the window ending at now. The zero
// time means unbounded.
func (r Range) Since(now time.Time) time.Time {
	switch r {
	case RangeWeek:
		return now.AddDate(0, 0, -7)
	case RangeMonth:
		return now.AddDate(0, -1, 0)
	case RangeYear:
		return now.AddDate(-1, 0, 0)
	}
	return time.Time{}
}

const monthsOfRevenue = 6

// revenueWindowStart is the first day of the oldest month in the revenue chart.
func revenueWindowStart(now time.Time) time.Time {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return first.AddDate(0, -(monthsOfRevenue - 1), 0)
}

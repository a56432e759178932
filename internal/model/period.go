package model

import (
	"fmt"
	"time"
)

const periodLayout = "2006-01"

// Period is a voting period: one calendar month, written YYYY-MM.  Periods
// never overlap and every instant belongs to exactly one of them once a
// time zone is fixed.
type Period string

// PeriodOf returns the period containing t as observed in loc.  A nil loc
// means UTC.
func PeriodOf(t time.Time, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	return Period(t.In(loc).Format(periodLayout))
}

// ParsePeriod validates s as a YYYY-MM period.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse(periodLayout, s)
	if err != nil || t.Format(periodLayout) != s {
		return "", fmt.Errorf("invalid voting period %q: want YYYY-MM", s)
	}
	return Period(s), nil
}

func (p Period) String() string { return string(p) }

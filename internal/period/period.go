// Package period resolves calendar billing periods from a clock.
package period

import "time"

// Clock abstracts time.Now so period math is testable.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system time.
type RealClock struct{}

// Now implements Clock.
func (RealClock) Now() time.Time { return time.Now() }

// FixedClock always reports the same instant. Useful in tests and for
// running a rollover against a specific boundary.
type FixedClock struct {
	T time.Time
}

// Now implements Clock.
func (c FixedClock) Now() time.Time { return c.T }

// Period is a calendar month key for the ledger.
type Period struct {
	Month int // 1..12
	Year  int
}

// Current returns the period containing the clock's current instant.
func Current(clock Clock) Period {
	now := clock.Now()
	return Period{Month: int(now.Month()), Year: now.Year()}
}

// Previous returns the period immediately before p, crossing year
// boundaries as needed.
func (p Period) Previous() Period {
	if p.Month == 1 {
		return Period{Month: 12, Year: p.Year - 1}
	}
	return Period{Month: p.Month - 1, Year: p.Year}
}

// Next returns the period immediately after p.
func (p Period) Next() Period {
	if p.Month == 12 {
		return Period{Month: 1, Year: p.Year + 1}
	}
	return Period{Month: p.Month + 1, Year: p.Year}
}

// Valid reports whether the period key is a plausible calendar month.
func (p Period) Valid() bool {
	return p.Month >= 1 && p.Month <= 12 && p.Year >= 2000 && p.Year <= 9999
}

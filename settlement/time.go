package settlement

import (
	"time"
)

// =============================================================================
// DATE - Day-granularity time point (settlement math never needs finer)
// =============================================================================

// Date is a calendar day in UTC. All engine inputs (tenancies, cost item
// periods, meter readings, payments) carry day precision; anything finer is
// truncated on construction.
type Date struct {
	Time time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an arbitrary timestamp to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date {
	return DateOf(time.Now().UTC())
}

// Comparison
func (d Date) Before(other Date) bool        { return d.normalize().Before(other.normalize()) }
func (d Date) Equal(other Date) bool         { return d.normalize().Equal(other.normalize()) }
func (d Date) After(other Date) bool         { return d.normalize().After(other.normalize()) }
func (d Date) BeforeOrEqual(other Date) bool { return d.Before(other) || d.Equal(other) }
func (d Date) AfterOrEqual(other Date) bool  { return d.After(other) || d.Equal(other) }

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{Time: d.Time.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{Time: d.Time.AddDate(0, n, 0)} }

// Properties
func (d Date) Year() int         { return d.Time.Year() }
func (d Date) Month() time.Month { return d.Time.Month() }
func (d Date) Day() int          { return d.Time.Day() }
func (d Date) IsZero() bool      { return d.Time.IsZero() }

func (d Date) String() string { return d.Time.Format("2006-01-02") }

// JSON round-trips as "YYYY-MM-DD"; persisted reports stay day-granular.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	t, err := time.Parse(`"2006-01-02"`, string(data))
	if err != nil {
		return err
	}
	*d = DateOf(t)
	return nil
}

// ParseDate parses a YYYY-MM-DD string into a DateValue. Malformed input
// yields Valid=false rather than an error; the comparators in payments.go
// give such values a defined order instead of aborting the scan.
func ParseDate(raw string) DateValue {
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return DateValue{}
	}
	return DateValue{Date: DateOf(t), Valid: true}
}

// Min/Max
func (d Date) Min(other Date) Date {
	if d.Before(other) {
		return d
	}
	return other
}

func (d Date) Max(other Date) Date {
	if d.After(other) {
		return d
	}
	return other
}

// DaysBetween returns the number of whole days from 'from' to 'to'
// (exclusive of 'to'). Negative if 'to' is earlier.
func DaysBetween(from, to Date) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

// =============================================================================
// PERIOD - Inclusive day interval [Start, End]
// =============================================================================

// Period is the billing-period abstraction. Both bounds are inclusive:
// a calendar year is [Jan 1, Dec 31] and spans 365 (or 366) days.
type Period struct {
	Start Date
	End   Date
}

func (p Period) IsValid() bool {
	return !p.Start.IsZero() && !p.End.IsZero() && !p.End.Before(p.Start)
}

// Days returns the inclusive length of the period in whole days.
func (p Period) Days() int {
	return DaysBetween(p.Start, p.End) + 1
}

// Contains returns true if the date is within [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Overlap returns the intersection of two periods. The second return value
// is false when the periods do not share a single day.
func (p Period) Overlap(other Period) (Period, bool) {
	start := p.Start.Max(other.Start)
	end := p.End.Min(other.End)
	if end.Before(start) {
		return Period{}, false
	}
	return Period{Start: start, End: end}, true
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// CalendarYear returns the billing period for a whole calendar year.
func CalendarYear(year int) Period {
	return Period{
		Start: NewDate(year, time.January, 1),
		End:   NewDate(year, time.December, 31),
	}
}

// =============================================================================
// YEAR-MONTH - Calendar month walker for the payment analyzer
// =============================================================================

// YearMonth identifies one calendar month. The payment analyzer iterates
// these rather than hand-rolling nested year/month loops, so year
// boundaries (Dec -> Jan) carry no off-by-one risk.
type YearMonth struct {
	Year  int
	Month time.Month
}

func MonthOf(d Date) YearMonth {
	return YearMonth{Year: d.Year(), Month: d.Month()}
}

func (ym YearMonth) Next() YearMonth {
	if ym.Month == time.December {
		return YearMonth{Year: ym.Year + 1, Month: time.January}
	}
	return YearMonth{Year: ym.Year, Month: ym.Month + 1}
}

func (ym YearMonth) Start() Date {
	return NewDate(ym.Year, ym.Month, 1)
}

func (ym YearMonth) End() Date {
	return ym.Start().AddMonths(1).AddDays(-1)
}

func (ym YearMonth) Contains(d Date) bool {
	return d.Year() == ym.Year && d.Month() == ym.Month
}

func (ym YearMonth) Before(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year < other.Year
	}
	return ym.Month < other.Month
}

func (ym YearMonth) After(other YearMonth) bool { return other.Before(ym) }

func (ym YearMonth) String() string {
	return ym.Start().Time.Format("2006-01")
}

// MonthsBetween returns every calendar month from 'from' through 'to',
// inclusive. Returns nil when 'from' is after 'to'.
func MonthsBetween(from, to YearMonth) []YearMonth {
	if from.After(to) {
		return nil
	}
	var months []YearMonth
	for ym := from; !ym.After(to); ym = ym.Next() {
		months = append(months, ym)
	}
	return months
}

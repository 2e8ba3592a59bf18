package calendar

import "time"

// HolidayRegionNRW is the only region with a holiday table so far.
const HolidayRegionNRW = "NRW"

type fixedHoliday struct {
	month time.Month
	day   int
	name  string
}

type easterHoliday struct {
	offset int
	name   string
}

var nrwFixed = []fixedHoliday{
	{time.January, 1, "New Year's Day"},
	{time.May, 1, "Labour Day"},
	{time.October, 3, "German Unity Day"},
	{time.November, 1, "All Saints' Day"},
	{time.December, 25, "Christmas Day"},
	{time.December, 26, "Second Day of Christmas"},
}

// Offsets in days from Easter Sunday.
var nrwEaster = []easterHoliday{
	{-2, "Good Friday"},
	{1, "Easter Monday"},
	{39, "Ascension Day"},
	{50, "Whit Monday"},
	{60, "Corpus Christi"},
}

// Holidays returns the public holidays of region in year keyed by date key.
// Unknown regions have none.
func Holidays(region string, year int) map[string]string {
	holidays := make(map[string]string)
	if region != HolidayRegionNRW {
		return holidays
	}

	for _, h := range nrwFixed {
		holidays[noon(year, h.month, h.day).Format(DateLayout)] = h.name
	}

	easter := easterSunday(year)
	for _, h := range nrwEaster {
		holidays[easter.AddDate(0, 0, h.offset).Format(DateLayout)] = h.name
	}
	return holidays
}

// easterSunday uses the anonymous Gregorian (Meeus/Jones/Butcher) algorithm.
func easterSunday(year int) time.Time {
	a := year % 19
	b, c := year/100, year%100
	d, e := b/4, b%4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i, k := c/4, c%4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	n := h + l - 7*m + 114
	return noon(year, time.Month(n/31), n%31+1)
}

// noon avoids the date shifting when formatted in another zone.
func noon(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
}

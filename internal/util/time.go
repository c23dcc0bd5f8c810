package util

import "time"

var istanbulLocation *time.Location

func init() {
	var err error
	istanbulLocation, err = time.LoadLocation("Europe/Istanbul")
	if err != nil {
		istanbulLocation = time.FixedZone("TRT", 3*60*60)
	}
}

func ToLocal(t time.Time) time.Time {
	return t.In(istanbulLocation)
}

func FormatLocal(t time.Time, layout string) string {
	return t.In(istanbulLocation).Format(layout)
}

// DayKey returns the business-local calendar day of t as YYYY-MM-DD.
func DayKey(t time.Time) string {
	return FormatLocal(t, "2006-01-02")
}

package domain

// DaysPerWeek is the number of buckets in a weekly series.
const DaysPerWeek = 7

// Weekdays labels the buckets of a DailyTotals value, Sunday first.
var Weekdays = [DaysPerWeek]string{"SUN", "MON", "TUE", "WED", "THU", "FRI", "SAT"}

// DailyTotals holds one value per day of week, index 0 = Sunday.
type DailyTotals [DaysPerWeek]float64

// Sum adds up all seven buckets.
func (d DailyTotals) Sum() float64 {
	var total float64
	for _, v := range d {
		total += v
	}
	return total
}

// IsZero reports whether every bucket is zero.
func (d DailyTotals) IsZero() bool {
	for _, v := range d {
		if v != 0 {
			return false
		}
	}
	return true
}

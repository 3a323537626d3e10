package domain

import "time"

// LocationSample is a GPS fix that has been accepted and persisted. It is immutable once recorded.
type LocationSample struct {
	ID                 string
	UserID             string
	RecordedAt         time.Time
	Latitude           float64
	Longitude          float64
	HorizontalAccuracy float64
}

// LocationFix is an incoming fix from a device that has not been filtered yet.
type LocationFix struct {
	UserID             string
	RecordedAt         time.Time
	Latitude           float64
	Longitude          float64
	HorizontalAccuracy float64
}

// Valid reports whether the coordinates and timestamp are usable.
func (f LocationFix) Valid() bool {
	if f.UserID == "" || f.RecordedAt.IsZero() {
		return false
	}
	return f.Latitude >= -90 && f.Latitude <= 90 && f.Longitude >= -180 && f.Longitude <= 180
}

// Cursor models the pagination token for location listings.
type Cursor struct {
	RecordedAt time.Time
	ID         string
}

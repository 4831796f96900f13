package models

import "time"

// Timestamp layout used for both local and UTC times in the ledger.
const EntryTimeLayout = "2006-01-02 15:04:05"

// LogEntry is one logged sleep or wake event. A non-empty Duration marks the
// entry as a stop (wake up); an empty one marks a start (fell asleep).
type LogEntry struct {
	LocalTime    string `json:"localTime"`
	UTCTime      string `json:"utcTime"`
	TimezoneName string `json:"timezone"`
	Latitude     string `json:"latitude"`
	Longitude    string `json:"longitude"`
	Duration     string `json:"duration,omitempty"`
}

func (e LogEntry) IsStop() bool {
	return e.Duration != ""
}

// UTC parses the entry's absolute instant.
func (e LogEntry) UTC() (time.Time, error) {
	return time.ParseInLocation(EntryTimeLayout, e.UTCTime, time.UTC)
}

// Local parses the entry's civil time. The returned value carries the
// wall clock only; its location is UTC and must not be compared with UTC().
func (e LogEntry) Local() (time.Time, error) {
	return time.ParseInLocation(EntryTimeLayout, e.LocalTime, time.UTC)
}

// SleepSession is derived from a start/stop pair and never persisted.
type SleepSession struct {
	StartLocalTime string    `json:"start_local_time"`
	StartUTC       time.Time `json:"start_utc"`
	DurationHours  float64   `json:"duration_hours"`
}

// GeolocationPosition is the browser Geolocation API payload posted when
// logging an entry. Timestamp is in epoch milliseconds.
type GeolocationPosition struct {
	Coords struct {
		Latitude         float64  `json:"latitude"`
		Longitude        float64  `json:"longitude"`
		Altitude         *float64 `json:"altitude"`
		Accuracy         float64  `json:"accuracy"`
		AltitudeAccuracy *float64 `json:"altitudeAccuracy"`
		Heading          *float64 `json:"heading"`
		Speed            *float64 `json:"speed"`
	} `json:"coords"`
	Timestamp int64 `json:"timestamp"`

	// Optional client-side override for the IANA zone.
	Timezone string `json:"timezone,omitempty"`
}

type LastEntry struct {
	Entry LogEntry `json:"lastSleepEntry"`
	Count int      `json:"numberOfSleepEntries"`
}

package sleep

import (
	"sleeplog-backend/internal/models"
)

// SessionsFrom pairs each start entry with the stop that immediately follows
// it. Pairs that are not start→stop, have unparseable timestamps, or whose
// duration falls outside (0, 24) hours are skipped: edited history must never
// break analytics.
func SessionsFrom(entries []models.LogEntry) []models.SleepSession {
	var sessions []models.SleepSession
	for i := 0; i+1 < len(entries); i++ {
		start, stop := entries[i], entries[i+1]
		if start.IsStop() || !stop.IsStop() {
			continue
		}

		startUTC, err := start.UTC()
		if err != nil {
			continue
		}
		stopUTC, err := stop.UTC()
		if err != nil {
			continue
		}

		hours := stopUTC.Sub(startUTC).Hours()
		if hours <= 0 || hours >= 24 {
			continue
		}

		sessions = append(sessions, models.SleepSession{
			StartLocalTime: start.LocalTime,
			StartUTC:       startUTC,
			DurationHours:  hours,
		})
	}
	return sessions
}

// Package notify decides whether a proactive notification may be sent and
// keeps the rolling history those decisions are based on.
package notify

import (
	"time"

	"sleeplog-backend/internal/models"
)

// HistoryWindow is how far back sent notifications count against the gate.
const HistoryWindow = 24 * time.Hour

type Reason string

const (
	ReasonAllowed    Reason = "allowed"
	ReasonQuietHours Reason = "quiet_hours"
	ReasonTooSoon    Reason = "min_spacing"
	ReasonDailyCap   Reason = "daily_cap"
)

// Gate holds the rate-limit policy. The zero value is not useful; use
// DefaultGate or fill every field.
type Gate struct {
	// QuietStart and QuietEnd are local hours [0,24). A window where
	// QuietStart > QuietEnd wraps past midnight.
	QuietStart int
	QuietEnd   int
	MinSpacing time.Duration
	DailyCap   int
}

func DefaultGate() Gate {
	return Gate{QuietStart: 2, QuietEnd: 8, MinSpacing: 2 * time.Hour, DailyCap: 3}
}

// InQuietHours reports whether the wall clock of now falls in the quiet
// window. now must already be in the observer's zone.
func (g Gate) InQuietHours(now time.Time) bool {
	h := now.Hour()
	if g.QuietStart == g.QuietEnd {
		return false
	}
	if g.QuietStart < g.QuietEnd {
		return h >= g.QuietStart && h < g.QuietEnd
	}
	return h >= g.QuietStart || h < g.QuietEnd
}

// CanSend applies quiet hours, spacing and the daily cap, in that order.
// Records older than HistoryWindow are ignored.
func (g Gate) CanSend(now time.Time, history []models.NotificationRecord) (bool, Reason) {
	if g.InQuietHours(now) {
		return false, ReasonQuietHours
	}

	window := InWindow(now, history)
	if len(window) > 0 {
		latest := window[0].SentAt
		for _, r := range window[1:] {
			if r.SentAt.After(latest) {
				latest = r.SentAt
			}
		}
		if now.Sub(latest) < g.MinSpacing {
			return false, ReasonTooSoon
		}
	}

	if len(window) >= g.DailyCap {
		return false, ReasonDailyCap
	}
	return true, ReasonAllowed
}

// InWindow returns the records sent within HistoryWindow of now, in their
// original order.
func InWindow(now time.Time, history []models.NotificationRecord) []models.NotificationRecord {
	cutoff := now.Add(-HistoryWindow)
	var out []models.NotificationRecord
	for _, r := range history {
		if !r.SentAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

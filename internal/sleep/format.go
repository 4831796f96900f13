package sleep

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"sleeplog-backend/internal/models"
)

// FormatStats renders stats as the short text block shown to the reasoning
// provider.
func FormatStats(st Stats, err error) string {
	if errors.Is(err, ErrInsufficientData) {
		return "Not enough data to compute stats."
	}
	if err != nil {
		return "Stats unavailable."
	}

	return strings.Join([]string{
		fmt.Sprintf("Average sleep: %.1fh", st.AverageHours),
		fmt.Sprintf("Range: %.1fh – %.1fh", st.ShortestHours, st.LongestHours),
		fmt.Sprintf("Recent sleep debt (last 5 nights, vs 8h target): %.1fh", st.RecentDebtHours),
		fmt.Sprintf("Average bedtime (local): %s (±%.0f min spread)", FormatClock(st.BedtimeMean), st.BedtimeStd*60),
	}, "\n")
}

// FormatHistory lists entries one per line, oldest first.
func FormatHistory(entries []models.LogEntry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsStop() {
			lines = append(lines, fmt.Sprintf("Woke up: %s (slept %s)", e.LocalTime, e.Duration))
		} else {
			lines = append(lines, fmt.Sprintf("Fell asleep: %s", e.LocalTime))
		}
	}
	return strings.Join(lines, "\n")
}

// FormatDuration renders d as H:MM:SS, the ledger's duration format.
func FormatDuration(d time.Duration) string {
	total := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%d:%02d:%02d", total/3600, total%3600/60, total%60)
}

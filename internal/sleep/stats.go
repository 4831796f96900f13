package sleep

import (
	"errors"
	"math"

	"sleeplog-backend/internal/models"
)

const (
	TargetSleepHours = 8.0
	debtWindow       = 5
)

// ErrInsufficientData is returned when no complete session is available.
var ErrInsufficientData = errors.New("not enough data to compute stats")

type Stats struct {
	Sessions        int     `json:"sessions"`
	AverageHours    float64 `json:"average_hours"`
	ShortestHours   float64 `json:"shortest_hours"`
	LongestHours    float64 `json:"longest_hours"`
	RecentDebtHours float64 `json:"recent_debt_hours"`
	BedtimeMean     float64 `json:"bedtime_mean_hours"`
	BedtimeStd      float64 `json:"bedtime_std_hours"`
}

// ComputeStats summarizes sessions ordered oldest first. Bedtimes use each
// session's local start time, so they are meaningful in the observer's zone.
func ComputeStats(sessions []models.SleepSession) (Stats, error) {
	if len(sessions) == 0 {
		return Stats{}, ErrInsufficientData
	}

	st := Stats{
		Sessions:      len(sessions),
		ShortestHours: math.Inf(1),
		LongestHours:  math.Inf(-1),
	}

	var total float64
	for _, s := range sessions {
		total += s.DurationHours
		st.ShortestHours = math.Min(st.ShortestHours, s.DurationHours)
		st.LongestHours = math.Max(st.LongestHours, s.DurationHours)
	}
	st.AverageHours = total / float64(len(sessions))

	recent := sessions
	if len(recent) > debtWindow {
		recent = recent[len(recent)-debtWindow:]
	}
	for _, s := range recent {
		st.RecentDebtHours += math.Max(0, TargetSleepHours-s.DurationHours)
	}

	bedtimes := make([]float64, 0, len(sessions))
	for _, s := range sessions {
		if h, ok := localClockHours(s.StartLocalTime); ok {
			bedtimes = append(bedtimes, h)
		}
	}
	st.BedtimeMean, st.BedtimeStd = CircularMeanStd(bedtimes)

	return st, nil
}

// localClockHours extracts hour+minute of day from a ledger local time.
func localClockHours(localTime string) (float64, bool) {
	e := models.LogEntry{LocalTime: localTime}
	t, err := e.Local()
	if err != nil {
		return 0, false
	}
	return float64(t.Hour()) + float64(t.Minute())/60, true
}

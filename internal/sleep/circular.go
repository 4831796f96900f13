package sleep

import (
	"fmt"
	"math"
)

const hoursPerDay = 24.0

// minResultant keeps ln(R) finite when clock times are spread uniformly
// around the day.
const minResultant = 1e-12

// CircularMeanStd computes the circular mean and standard deviation of clock
// times given as hours in [0, 24). 23:50 and 00:10 average to midnight, not
// noon.
func CircularMeanStd(hours []float64) (mean, std float64) {
	if len(hours) == 0 {
		return 0, 0
	}

	var sinSum, cosSum float64
	for _, h := range hours {
		theta := 2 * math.Pi * h / hoursPerDay
		sinSum += math.Sin(theta)
		cosSum += math.Cos(theta)
	}

	n := float64(len(hours))
	meanSin := sinSum / n
	meanCos := cosSum / n

	mean = math.Atan2(meanSin, meanCos) * hoursPerDay / (2 * math.Pi)
	mean = math.Mod(mean+hoursPerDay, hoursPerDay)

	r := math.Sqrt(meanSin*meanSin + meanCos*meanCos)
	r = math.Min(1, math.Max(minResultant, r))
	std = math.Sqrt(-2*math.Log(r)) * hoursPerDay / (2 * math.Pi)

	return mean, std
}

// FormatClock renders fractional hours as H:MM on a 24h clock.
func FormatClock(h float64) string {
	h = math.Mod(h, hoursPerDay)
	if h < 0 {
		h += hoursPerDay
	}
	hours := int(h)
	minutes := int(math.Round((h - float64(hours)) * 60))
	if minutes == 60 {
		hours = (hours + 1) % 24
		minutes = 0
	}
	return fmt.Sprintf("%d:%02d", hours, minutes)
}

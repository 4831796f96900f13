// Package reminder implements the edge-triggered "you forgot to log" watchdog.
package reminder

import (
	"fmt"
	"math"
	"sync"
	"time"

	"sleeplog-backend/internal/models"
)

type State int

const (
	BelowThreshold State = iota
	// AbovePending is only ever held inside Check; it is never observable.
	AbovePending
	AboveFired
)

func (s State) String() string {
	switch s {
	case BelowThreshold:
		return "below_threshold"
	case AbovePending:
		return "above_threshold_pending"
	case AboveFired:
		return "above_threshold_fired"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Watchdog fires at most once per continuous above-threshold excursion. A
// single Watchdog is built at startup and shared by the reminder loop.
type Watchdog struct {
	// AwakeThreshold applies when the last entry is a stop (user is awake).
	AwakeThreshold time.Duration
	// AsleepThreshold applies when the last entry is a start.
	AsleepThreshold time.Duration

	mu    sync.Mutex
	fired bool
}

func NewWatchdog(awake, asleep time.Duration) *Watchdog {
	return &Watchdog{AwakeThreshold: awake, AsleepThreshold: asleep}
}

func (w *Watchdog) threshold(lastIsStop bool) time.Duration {
	if lastIsStop {
		return w.AwakeThreshold
	}
	return w.AsleepThreshold
}

// Check reports whether a reminder must be emitted now. Test and fire happen
// under one lock, so concurrent callers cannot both fire.
func (w *Watchdog) Check(elapsed time.Duration, lastIsStop bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if elapsed <= w.threshold(lastIsStop) {
		w.fired = false
		return false
	}
	if w.fired {
		return false
	}
	w.fired = true
	return true
}

func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fired {
		return AboveFired
	}
	return BelowThreshold
}

// Message builds the reminder notification for the given elapsed time.
func Message(elapsed time.Duration) models.Notification {
	hours := math.Round(elapsed.Hours()*10) / 10
	return models.Notification{
		Title: "🔔 Sleep entry reminder",
		Body:  fmt.Sprintf("It has been %s hours since your last sleep entry. Don't forget to log your sleep!", formatHours(hours)),
	}
}

func formatHours(h float64) string {
	if h == math.Trunc(h) {
		return fmt.Sprintf("%.0f", h)
	}
	return fmt.Sprintf("%.1f", h)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"sleeplog-backend/internal/metrics"
	"sleeplog-backend/internal/reminder"
	"sleeplog-backend/internal/repository"
)

// ReminderService nudges the owner when no entry has been logged for longer
// than the watchdog allows. Reminders do not pass through the gate.
type ReminderService struct {
	ledger   repository.EntryLedger
	watchdog *reminder.Watchdog
	notifier Notifier
	now      func() time.Time
}

func NewReminderService(ledger repository.EntryLedger, watchdog *reminder.Watchdog, notifier Notifier) *ReminderService {
	return &ReminderService{
		ledger:   ledger,
		watchdog: watchdog,
		notifier: notifier,
		now:      time.Now,
	}
}

func (s *ReminderService) CheckReminder(ctx context.Context) error {
	last, err := s.ledger.Last(ctx)
	if errors.Is(err, repository.ErrNoEntries) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read last entry: %w", err)
	}

	at, err := last.Entry.UTC()
	if err != nil {
		log.Warn().Err(err).Str("utc_time", last.Entry.UTCTime).Msg("last entry has unreadable time, skipping reminder check")
		return nil
	}

	elapsed := s.now().Sub(at)
	isStop := last.Entry.IsStop()
	if !s.watchdog.Check(elapsed, isStop) {
		return nil
	}

	kind := "stop"
	if isStop {
		kind = "start"
	}
	log.Info().Str("kind", kind).Dur("elapsed", elapsed).Msg("sending reminder notification")
	metrics.RemindersFired.Inc()

	if err := s.notifier.Send(ctx, reminder.Message(elapsed)); err != nil {
		return fmt.Errorf("reminder not delivered: %w", err)
	}
	return nil
}

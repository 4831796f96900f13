package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const checkTimeout = 2 * time.Minute

// cronLogger adapts zerolog to cron's logger interface.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// NotificationScheduler drives the reminder and insight checks. Overlapping
// runs of the same job are skipped and panics are recovered.
type NotificationScheduler struct {
	cron      *cron.Cron
	reminders *ReminderService
	insights  *InsightService
}

// NewNotificationScheduler registers the jobs. insights may be nil when the
// insight loop is disabled.
func NewNotificationScheduler(reminders *ReminderService, reminderEvery time.Duration, insights *InsightService, insightEvery time.Duration) (*NotificationScheduler, error) {
	logger := cronLogger{l: log.With().Str("component", "scheduler").Logger()}
	s := &NotificationScheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		reminders: reminders,
		insights:  insights,
	}

	if reminders != nil {
		if _, err := s.cron.AddFunc(every(reminderEvery), s.runReminder); err != nil {
			return nil, fmt.Errorf("failed to schedule reminder check: %w", err)
		}
	}
	if insights != nil {
		if _, err := s.cron.AddFunc(every(insightEvery), s.runInsight); err != nil {
			return nil, fmt.Errorf("failed to schedule insight check: %w", err)
		}
	}
	return s, nil
}

func every(d time.Duration) string {
	return "@every " + d.String()
}

func (s *NotificationScheduler) runReminder() {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()
	if err := s.reminders.CheckReminder(ctx); err != nil {
		log.Error().Err(err).Msg("reminder check failed")
	}
}

func (s *NotificationScheduler) runInsight() {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()
	if err := s.insights.CheckAiNotification(ctx); err != nil {
		log.Error().Err(err).Msg("insight check failed")
	}
}

// Start runs each check once immediately, then on its interval.
func (s *NotificationScheduler) Start() {
	for _, entry := range s.cron.Entries() {
		go entry.WrappedJob.Run()
	}
	s.cron.Start()
	log.Info().Int("jobs", len(s.cron.Entries())).Msg("Notification scheduler started")
}

// Stop waits for running checks to finish.
func (s *NotificationScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"sleeplog-backend/internal/metrics"
	"sleeplog-backend/internal/models"
	"sleeplog-backend/internal/notify"
	"sleeplog-backend/internal/repository"
	"sleeplog-backend/internal/sleep"
)

const insightHistoryEntries = 20

// InsightService runs the adaptive notification check: the gate enforces
// the hard limits, the reasoning provider decides content and timing.
type InsightService struct {
	ledger   repository.EntryLedger
	gate     notify.Gate
	history  *notify.History
	provider ReasoningProvider
	notifier Notifier
	fallback *time.Location
	now      func() time.Time
}

func NewInsightService(ledger repository.EntryLedger, gate notify.Gate, history *notify.History, provider ReasoningProvider, notifier Notifier, fallback *time.Location) *InsightService {
	if fallback == nil {
		fallback = time.UTC
	}
	return &InsightService{
		ledger:   ledger,
		gate:     gate,
		history:  history,
		provider: provider,
		notifier: notifier,
		fallback: fallback,
		now:      time.Now,
	}
}

// observerLocation is the zone of the most recent entry.
func observerLocation(e models.LogEntry, fallback *time.Location) *time.Location {
	if e.TimezoneName != "" {
		if loc, err := time.LoadLocation(e.TimezoneName); err == nil {
			return loc
		}
	}
	return fallback
}

// CheckAiNotification performs one cycle. Provider failures are logged and
// treated as a skip; the next tick retries.
func (s *InsightService) CheckAiNotification(ctx context.Context) error {
	last, err := s.ledger.Last(ctx)
	if errors.Is(err, repository.ErrNoEntries) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read last entry: %w", err)
	}

	now := s.now()
	loc := observerLocation(last.Entry, s.fallback)
	window := s.history.Window(ctx, now)

	ok, reason := s.gate.CanSend(now.In(loc), window)
	metrics.GateDecisions.WithLabelValues(string(reason)).Inc()
	if !ok {
		log.Debug().Str("reason", string(reason)).Msg("insight check gated")
		return nil
	}

	recent, err := s.ledger.ReadRecent(ctx, insightHistoryEntries)
	if err != nil {
		return fmt.Errorf("failed to read recent entries: %w", err)
	}

	prompt := BuildInsightPrompt(InsightContext{
		Now:      now,
		Location: loc,
		Last:     last.Entry,
		Recent:   recent,
		Window:   window,
	})
	log.Debug().Str("prompt", prompt).Msg("insight check")

	decision, err := s.provider.Decide(ctx, prompt)
	if err != nil {
		metrics.InsightDecisions.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("insight check failed, skipping")
		return nil
	}
	log.Info().Bool("send", decision.ShouldSend).Str("title", decision.Title).Msg("insight decision")

	if !decision.ShouldSend {
		metrics.InsightDecisions.WithLabelValues("skip").Inc()
		return nil
	}
	metrics.InsightDecisions.WithLabelValues("send").Inc()

	// Recorded before delivery so the payload can carry the feedback id.
	rec, err := s.history.RecordSent(ctx, now, decision.Title, decision.Body)
	if err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}

	n := models.Notification{ID: rec.ID, Title: rec.Title, Body: rec.Body}
	if err := s.notifier.Send(ctx, n); err != nil {
		log.Error().Err(err).Str("id", rec.ID).Msg("insight notification not delivered")
	}
	return nil
}

type InsightContext struct {
	Now      time.Time
	Location *time.Location
	Last     models.LogEntry
	Recent   []models.LogEntry
	Window   []models.NotificationRecord
}

func describeState(now time.Time, last models.LogEntry) string {
	at, err := last.UTC()
	if err != nil {
		return "Unknown (last entry unreadable)"
	}
	hours := fmt.Sprintf("%.1f", now.Sub(at).Hours())
	if last.IsStop() {
		return fmt.Sprintf("Awake for %s hours", hours)
	}
	return fmt.Sprintf("Asleep for %s hours (or forgot to log waking up)", hours)
}

func describeWindow(now time.Time, window []models.NotificationRecord) (lastSent, list string) {
	if len(window) == 0 {
		return "No notifications sent in the last 24 hours", "No notifications sent in the last 24 hours."
	}

	latest := window[0].SentAt
	lines := make([]string, 0, len(window))
	for _, r := range window {
		if r.SentAt.After(latest) {
			latest = r.SentAt
		}
		line := fmt.Sprintf("[%s] %q: %s", r.SentAt.UTC().Format(time.RFC3339), r.Title, r.Body)
		if r.Feedback != nil {
			line += fmt.Sprintf(" (feedback: %s)", *r.Feedback)
		}
		lines = append(lines, line)
	}
	return fmt.Sprintf("%.0f minutes ago", now.Sub(latest).Minutes()), strings.Join(lines, "\n")
}

// BuildInsightPrompt renders the context handed to the reasoning provider.
func BuildInsightPrompt(c InsightContext) string {
	local := c.Now.In(c.Location)
	lastSent, sentList := describeWindow(c.Now, c.Window)
	stats := sleep.FormatStats(GetSleepStats(c.Recent))

	var b strings.Builder
	b.WriteString("You are a sleep health assistant that decides whether to send the user a notification right now. You are called roughly every 30 minutes.\n\n")

	b.WriteString("## Current state\n")
	fmt.Fprintf(&b, "- Current time: %s (%s, %s)\n", local.Format("2006-01-02 15:04"), c.Location.String(), local.Weekday())
	fmt.Fprintf(&b, "- User status: %s\n", describeState(c.Now, c.Last))
	fmt.Fprintf(&b, "- Last notification sent: %s\n", lastSent)
	fmt.Fprintf(&b, "- Notifications sent in the last 24 hours: %d\n\n", len(c.Window))

	b.WriteString("## Notifications sent in the last 24 hours\n")
	b.WriteString(sentList)
	b.WriteString("\n\n## Sleep stats\n")
	b.WriteString(stats)
	b.WriteString("\n\n## Recent sleep history (most recent last)\n")
	b.WriteString(sleep.FormatHistory(c.Recent))
	b.WriteString("\n\n")
	b.WriteString(insightGuidelines)
	return b.String()
}

const insightGuidelines = `## Your guidelines
- Send 1-3 notifications per day total. Don't overdo it.
- Types of notifications you can send:
  - Bedtime nudge: when it's getting close to or past their usual bedtime, gently remind them. Adapt based on their recent pattern.
  - Sleep pattern observation: if you notice something interesting (building sleep debt, inconsistent schedule, a good streak), share it. These work well in the afternoon.
  - Recovery suggestion: if they've had short nights recently, suggest prioritizing sleep tonight.
  - Morning recap: shortly after the user wakes up (2+ hours awake), summarize last night's sleep (duration, how it compares to their average). Good for once a day.
  - Forgotten log reminder: if the user appears to be "asleep" for an unusually long time (e.g. much longer than their typical sleep duration), they may have forgotten to log waking up. Gently remind them.
- Don't repeat an insight already in the list of recent notifications. Notifications marked "not_useful" show what the user does not want.
- Don't send notifications if the user just woke up (less than 2 hours awake).
- Keep titles short (3-5 words) and bodies to 1-2 sentences; push notifications truncate. Feel free to use emojis.
- If there's nothing useful to say right now, don't send anything. It's fine to skip.

Decide: should you send a notification right now? Respond with JSON {"sendNotification": bool, "title": string, "body": string}.`

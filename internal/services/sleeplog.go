package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ringsaturn/tzf"
	"github.com/rs/zerolog/log"

	"sleeplog-backend/internal/metrics"
	"sleeplog-backend/internal/models"
	"sleeplog-backend/internal/repository"
	"sleeplog-backend/internal/sleep"
)

var ErrInvalidPosition = errors.New("invalid geolocation position")

// TimezoneResolver maps coordinates to an IANA zone name.
type TimezoneResolver interface {
	Zone(lat, lng float64) string
}

type tzfResolver struct {
	finder tzf.F
}

// NewTimezoneResolver loads the bundled timezone polygons.
func NewTimezoneResolver() (TimezoneResolver, error) {
	finder, err := tzf.NewDefaultFinder()
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone data: %w", err)
	}
	return &tzfResolver{finder: finder}, nil
}

func (r *tzfResolver) Zone(lat, lng float64) string {
	return r.finder.GetTimezoneName(lng, lat)
}

// Notifier delivers a notification; *Dispatcher satisfies it.
type Notifier interface {
	Send(ctx context.Context, n models.Notification) error
}

// Publisher pushes live events to dashboards; *websocket.Hub satisfies it.
type Publisher interface {
	Publish(ctx context.Context, msg models.WSMessage) error
}

// SleepLogService writes ledger entries and answers read/stat queries. Writes
// are serialized so the start/stop parity computed from the count holds.
type SleepLogService struct {
	ledger    repository.EntryLedger
	zones     TimezoneResolver
	notifier  Notifier
	publisher Publisher
	fallback  *time.Location

	mu sync.Mutex
}

func NewSleepLogService(ledger repository.EntryLedger, zones TimezoneResolver, notifier Notifier, publisher Publisher, fallback *time.Location) *SleepLogService {
	if fallback == nil {
		fallback = time.UTC
	}
	return &SleepLogService{
		ledger:    ledger,
		zones:     zones,
		notifier:  notifier,
		publisher: publisher,
		fallback:  fallback,
	}
}

// location picks the client override, then the coordinate lookup, then the
// fallback zone.
func (s *SleepLogService) location(pos models.GeolocationPosition) *time.Location {
	candidates := []string{pos.Timezone}
	if s.zones != nil {
		candidates = append(candidates, s.zones.Zone(pos.Coords.Latitude, pos.Coords.Longitude))
	}
	for _, name := range candidates {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return s.fallback
}

func validatePosition(pos models.GeolocationPosition) error {
	if pos.Timestamp <= 0 {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidPosition)
	}
	if pos.Coords.Latitude < -90 || pos.Coords.Latitude > 90 || pos.Coords.Longitude < -180 || pos.Coords.Longitude > 180 {
		return fmt.Errorf("%w: coordinates out of range", ErrInvalidPosition)
	}
	return nil
}

// buildEntry renders the position as a ledger row. prev is the entry the new
// one closes, or nil when the new entry is a start.
func (s *SleepLogService) buildEntry(pos models.GeolocationPosition, prev *models.LogEntry) models.LogEntry {
	loc := s.location(pos)
	utc := time.UnixMilli(pos.Timestamp).UTC()

	entry := models.LogEntry{
		LocalTime:    utc.In(loc).Format(models.EntryTimeLayout),
		UTCTime:      utc.Format(models.EntryTimeLayout),
		TimezoneName: loc.String(),
		Latitude:     strconv.FormatFloat(pos.Coords.Latitude, 'f', -1, 64),
		Longitude:    strconv.FormatFloat(pos.Coords.Longitude, 'f', -1, 64),
	}
	if prev != nil {
		entry.Duration = "N/A"
		if start, err := prev.UTC(); err == nil {
			if d := utc.Sub(start); d >= 0 {
				entry.Duration = sleep.FormatDuration(d)
			}
		}
	}
	return entry
}

// LogEntry appends a new event. Entries alternate start/stop by position, so
// the new entry is a stop when the ledger currently holds an odd count.
func (s *SleepLogService) LogEntry(ctx context.Context, pos models.GeolocationPosition) (models.LogEntry, error) {
	if err := validatePosition(pos); err != nil {
		return models.LogEntry{}, err
	}

	s.mu.Lock()
	var prev *models.LogEntry
	last, err := s.ledger.Last(ctx)
	switch {
	case errors.Is(err, repository.ErrNoEntries):
	case err != nil:
		s.mu.Unlock()
		return models.LogEntry{}, fmt.Errorf("failed to read last entry: %w", err)
	case last.Count%2 == 1:
		prev = &last.Entry
	}

	entry := s.buildEntry(pos, prev)
	if err := s.ledger.Append(ctx, entry); err != nil {
		s.mu.Unlock()
		return models.LogEntry{}, fmt.Errorf("failed to append entry: %w", err)
	}
	s.mu.Unlock()

	metrics.EntriesLogged.WithLabelValues(entryKind(entry), "append").Inc()
	s.announce(ctx, entry)
	return entry, nil
}

// ReplaceLast overwrites the newest event, recomputing its duration against
// the entry before it.
func (s *SleepLogService) ReplaceLast(ctx context.Context, pos models.GeolocationPosition) (models.LogEntry, error) {
	if err := validatePosition(pos); err != nil {
		return models.LogEntry{}, err
	}

	s.mu.Lock()
	recent, err := s.ledger.ReadRecent(ctx, 2)
	if err != nil {
		s.mu.Unlock()
		return models.LogEntry{}, fmt.Errorf("failed to read recent entries: %w", err)
	}
	count, err := s.ledger.Count(ctx)
	if err != nil {
		s.mu.Unlock()
		return models.LogEntry{}, fmt.Errorf("failed to count entries: %w", err)
	}
	if count == 0 || len(recent) == 0 {
		s.mu.Unlock()
		return models.LogEntry{}, repository.ErrNoEntries
	}

	var prev *models.LogEntry
	if count%2 == 0 && len(recent) == 2 {
		prev = &recent[0]
	}

	entry := s.buildEntry(pos, prev)
	if err := s.ledger.ReplaceLast(ctx, entry); err != nil {
		s.mu.Unlock()
		return models.LogEntry{}, fmt.Errorf("failed to replace last entry: %w", err)
	}
	s.mu.Unlock()

	metrics.EntriesLogged.WithLabelValues(entryKind(entry), "replace").Inc()
	s.announce(ctx, entry)
	return entry, nil
}

func entryKind(e models.LogEntry) string {
	if e.IsStop() {
		return "stop"
	}
	return "start"
}

// EntryNotification is the confirmation sent after every ledger write.
func EntryNotification(e models.LogEntry) models.Notification {
	if e.IsStop() {
		return models.Notification{
			Title: "🌅 Sleep stop logged",
			Body:  fmt.Sprintf("%s at %s\nDuration: %s", e.LocalTime, e.TimezoneName, e.Duration),
		}
	}
	return models.Notification{
		Title: "🌃 Sleep start logged",
		Body:  fmt.Sprintf("%s at %s", e.LocalTime, e.TimezoneName),
	}
}

// announce is best effort: the entry is already stored.
func (s *SleepLogService) announce(ctx context.Context, e models.LogEntry) {
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, models.WSMessage{Type: models.WSTypeEntryLogged, Payload: e}); err != nil {
			log.Warn().Err(err).Msg("failed to publish entry event")
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Send(ctx, EntryNotification(e)); err != nil {
			log.Warn().Err(err).Msg("entry notification not delivered")
		}
	}
}

func (s *SleepLogService) GetAll(ctx context.Context) ([]models.LogEntry, error) {
	return s.ledger.ReadAll(ctx)
}

func (s *SleepLogService) GetLast(ctx context.Context) (models.LastEntry, error) {
	return s.ledger.Last(ctx)
}

// GetRecentSleepEntries returns up to count newest entries, oldest first.
func (s *SleepLogService) GetRecentSleepEntries(ctx context.Context, count int) ([]models.LogEntry, error) {
	return s.ledger.ReadRecent(ctx, count)
}

// GetSleepStats reconstructs sessions from entries and aggregates them.
func GetSleepStats(entries []models.LogEntry) (sleep.Stats, error) {
	return sleep.ComputeStats(sleep.SessionsFrom(entries))
}

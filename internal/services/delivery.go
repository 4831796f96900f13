package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"sleeplog-backend/internal/metrics"
	"sleeplog-backend/internal/models"
)

var ErrNoTransports = errors.New("no delivery transports configured")

// Transport is one delivery channel (web push, Pushbullet, email, websocket).
type Transport interface {
	Name() string
	Send(ctx context.Context, n models.Notification) error
}

// Dispatcher fans a notification out to every transport. Delivery counts as
// successful when at least one transport accepts it.
type Dispatcher struct {
	transports []Transport
}

func NewDispatcher(transports ...Transport) *Dispatcher {
	var ts []Transport
	for _, t := range transports {
		if t != nil {
			ts = append(ts, t)
		}
	}
	return &Dispatcher{transports: ts}
}

func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.transports))
	for _, t := range d.transports {
		names = append(names, t.Name())
	}
	return names
}

func (d *Dispatcher) Send(ctx context.Context, n models.Notification) error {
	if len(d.transports) == 0 {
		return ErrNoTransports
	}

	var errs []error
	delivered := 0
	for _, t := range d.transports {
		if err := t.Send(ctx, n); err != nil {
			metrics.DeliveryResults.WithLabelValues(t.Name(), "error").Inc()
			log.Warn().Err(err).Str("transport", t.Name()).Str("title", n.Title).Msg("delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
			continue
		}
		metrics.DeliveryResults.WithLabelValues(t.Name(), "ok").Inc()
		delivered++
	}

	if delivered == 0 {
		return fmt.Errorf("notification not delivered: %w", errors.Join(errs...))
	}
	log.Info().Str("title", n.Title).Int("delivered", delivered).Int("transports", len(d.transports)).Msg("notification sent")
	return nil
}

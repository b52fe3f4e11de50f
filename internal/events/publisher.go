package events

import (
	"context"
	"encoding/json"
	"fmt"

	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// SubjectPrefix is the NATS subject root events publish under; the full
// subject is previews.events.{type}.
const SubjectPrefix = "previews.events"

// Publisher delivers provisioning events. Publishing is best-effort
// everywhere it is called: a down event bus never fails provisioning.
type Publisher interface {
	Publish(ctx context.Context, ev *Event) error
	Close()
}

// NATSPublisher publishes events to a NATS subject per event type.
type NATSPublisher struct {
	conn *natsgo.Conn
	log  zerolog.Logger
}

// NewNATSPublisher connects to NATS at url.
func NewNATSPublisher(url string, log zerolog.Logger) (*NATSPublisher, error) {
	conn, err := natsgo.Connect(url,
		natsgo.Name("previewd"),
		natsgo.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: conn, log: log}, nil
}

// Publish sends the event. Encoding failures and publish failures are
// returned, but callers treat them as soft.
func (p *NATSPublisher) Publish(ctx context.Context, ev *Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", SubjectPrefix, ev.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Str("subject", subject).Err(err).Msg("event publish failed")
		return err
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	_ = p.conn.Drain()
}

// NopPublisher drops all events. Used when no NATS URL is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, ev *Event) error { return nil }
func (NopPublisher) Close()                                       {}

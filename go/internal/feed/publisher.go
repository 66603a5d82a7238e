package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/parthhay/deskroguelikeproto/go/internal/reconcile"
)

const (
	EventTypeView   = "view"
	EventTypeNotice = "notice"
)

// Config holds configuration for the NATS view feed
type Config struct {
	URL           string
	SubjectPrefix string
	ClientID      string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns default feed configuration
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "deskrogue.client",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Envelope is the JSON body of every published message.
type Envelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	ClientID  string          `json:"client_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	PublishMsg(m *nats.Msg) error
	Close()
}

// Publisher mirrors views and notices onto NATS subjects
// <prefix>.view and <prefix>.notice. It implements reconcile.Observer.
type Publisher struct {
	conn   Conn
	config Config
}

// Connect dials NATS and returns a publisher on that connection.
func Connect(cfg Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("deskclient-" + cfg.ClientID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	log.Info().Str("url", nc.ConnectedUrl()).Str("prefix", cfg.SubjectPrefix).Msg("view feed connected")
	return NewPublisher(nc, cfg), nil
}

// NewPublisher creates a publisher on an existing connection.
func NewPublisher(conn Conn, cfg Config) *Publisher {
	return &Publisher{conn: conn, config: cfg}
}

// OnView publishes an accepted view.
func (p *Publisher) OnView(v reconcile.View) {
	if err := p.Publish(EventTypeView, v); err != nil {
		log.Warn().Err(err).Msg("failed to publish view")
	}
}

// OnNotice publishes a user notice.
func (p *Publisher) OnNotice(n reconcile.Notice) {
	if err := p.Publish(EventTypeNotice, n); err != nil {
		log.Warn().Err(err).Msg("failed to publish notice")
	}
}

// Publish sends payload to <prefix>.<eventType>.
func (p *Publisher) Publish(eventType string, payload interface{}) error {
	subject := fmt.Sprintf("%s.%s", p.config.SubjectPrefix, eventType)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	env := Envelope{
		EventID:   uuid.New().String(),
		EventType: eventType,
		ClientID:  p.config.ClientID,
		Timestamp: time.Now().UTC(),
		Payload:   body,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.conn.PublishMsg(&nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{eventType},
			"Event-ID":   []string{env.EventID},
			"Client-ID":  []string{p.config.ClientID},
		},
	})
	if err != nil {
		return fmt.Errorf("publish to NATS: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Str("event_id", env.EventID).
		Msg("published to NATS")
	return nil
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

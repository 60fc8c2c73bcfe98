package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/huddlekit/huddle/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// RelayConfig configures the cross-instance relay.
type RelayConfig struct {
	// URL of the NATS server, e.g. nats://localhost:4222.
	URL string
	// SubjectPrefix namespaces relay traffic; room names are appended as the
	// final subject token.
	SubjectPrefix string
}

// DefaultRelayConfig returns the standard relay configuration.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "huddle.rooms",
	}
}

// relayEnvelope wraps a room message for cross-instance transport. Instance
// identifies the publishing hub so it can skip its own traffic on the way
// back in.
type relayEnvelope struct {
	EventID  string         `json:"eventId"`
	Instance string         `json:"instance"`
	Room     string         `json:"room"`
	Message  models.Message `json:"message"`
}

// Relay fans room updates out to peer hub instances over NATS. Joiners
// bootstrap from a full snapshot, so plain core pub/sub is enough; missed
// messages are healed by the next reload_state_request.
type Relay struct {
	cfg      RelayConfig
	instance string
	nc       *nats.Conn
	sub      *nats.Subscription
}

// NewRelay connects to NATS. The connection retries indefinitely so a hub
// can outlive broker restarts.
func NewRelay(cfg RelayConfig) (*Relay, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultRelayConfig().URL
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultRelayConfig().SubjectPrefix
	}
	instance := uuid.New().String()

	nc, err := nats.Connect(cfg.URL,
		nats.Name(fmt.Sprintf("huddle-hub-%s", instance[:8])),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("relay disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("relay reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}

	log.Info().Str("url", cfg.URL).Str("instance", instance).Msg("relay connected")
	return &Relay{cfg: cfg, instance: instance, nc: nc}, nil
}

// Start subscribes to peer traffic and invokes apply for every remote
// message until the context ends.
func (r *Relay) Start(ctx context.Context, apply func(room string, msg models.Message)) error {
	subject := r.cfg.SubjectPrefix + ".>"
	sub, err := r.nc.Subscribe(subject, func(m *nats.Msg) {
		var env relayEnvelope
		if err := json.Unmarshal(m.Data, &env); err != nil {
			log.Error().Err(err).Str("subject", m.Subject).Msg("unreadable relay envelope")
			return
		}
		if env.Instance == r.instance {
			return
		}
		apply(env.Room, env.Message)
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	r.sub = sub
	log.Info().Str("subject", subject).Msg("relay subscribed")

	go func() {
		<-ctx.Done()
		r.Close()
	}()
	return nil
}

// Publish sends a local-origin room message to peer instances, best effort.
func (r *Relay) Publish(room string, msg models.Message) {
	env := relayEnvelope{
		EventID:  uuid.New().String(),
		Instance: r.instance,
		Room:     room,
		Message:  msg,
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal relay envelope")
		return
	}
	subject := fmt.Sprintf("%s.%s", r.cfg.SubjectPrefix, room)
	if err := r.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to publish relay message")
	}
}

// Close drains and closes the NATS connection.
func (r *Relay) Close() {
	if r.sub != nil {
		r.sub.Unsubscribe()
	}
	if r.nc != nil && !r.nc.IsClosed() {
		if err := r.nc.Drain(); err != nil {
			r.nc.Close()
		}
	}
}

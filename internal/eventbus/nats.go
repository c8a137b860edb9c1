/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus forwards in-process events to an external broker.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/friendsincode/dronepad/internal/events"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// DefaultSubjectPrefix is prepended to the event type to form the NATS subject.
const DefaultSubjectPrefix = "dronepad.events"

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	Token         string
	SubjectPrefix string
	NodeID        string

	// Connection options
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: DefaultSubjectPrefix,
		MaxReconnects: -1, // Unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Envelope is the JSON document published for every forwarded event.
type Envelope struct {
	MessageID string           `json:"message_id"`
	EventType events.EventType `json:"event_type"`
	NodeID    string           `json:"node_id"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   events.Payload   `json:"payload"`
}

// publisher is the part of *nats.Conn the bridge needs.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSBridge subscribes to the local bus and republishes events to NATS.
type NATSBridge struct {
	bus    *events.Bus
	pub    publisher
	conn   *nats.Conn
	cfg    NATSConfig
	logger zerolog.Logger
	now    func() time.Time

	mu   sync.Mutex
	subs map[events.EventType]events.Subscriber
	wg   sync.WaitGroup

	closeOnce sync.Once
}

// NewNATSBridge connects to NATS and returns a bridge that is not yet forwarding.
func NewNATSBridge(cfg NATSConfig, bus *events.Bus, logger zerolog.Logger) (*NATSBridge, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url required")
	}
	cfg = withDefaults(cfg)
	logger = logger.With().Str("component", "nats_bridge").Logger()

	opts := []nats.Option{
		nats.Name("dronepad-" + cfg.NodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	b := newBridge(conn, bus, cfg, logger)
	b.conn = conn
	return b, nil
}

func newBridge(pub publisher, bus *events.Bus, cfg NATSConfig, logger zerolog.Logger) *NATSBridge {
	return &NATSBridge{
		bus:    bus,
		pub:    pub,
		cfg:    withDefaults(cfg),
		logger: logger,
		now:    time.Now,
		subs:   make(map[events.EventType]events.Subscriber),
	}
}

func withDefaults(cfg NATSConfig) NATSConfig {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}
	if cfg.NodeID == "" {
		cfg.NodeID = generateNodeID()
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return cfg
}

// Subject returns the NATS subject for an event type.
func (b *NATSBridge) Subject(eventType events.EventType) string {
	return b.cfg.SubjectPrefix + "." + string(eventType)
}

// Start subscribes to the given event types and forwards them until ctx is
// cancelled or Close is called. Subscriptions are registered before Start returns.
func (b *NATSBridge) Start(ctx context.Context, types ...events.EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, et := range types {
		if _, ok := b.subs[et]; ok {
			continue
		}
		sub := b.bus.Subscribe(et)
		b.subs[et] = sub

		b.wg.Add(1)
		go b.forward(ctx, et, sub)
	}

	b.logger.Info().Int("event_types", len(b.subs)).Str("prefix", b.cfg.SubjectPrefix).Msg("nats bridge started")
}

func (b *NATSBridge) forward(ctx context.Context, et events.EventType, sub events.Subscriber) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			if err := b.publish(et, payload); err != nil {
				b.logger.Warn().Err(err).Str("event_type", string(et)).Msg("failed to forward event")
			}
		}
	}
}

func (b *NATSBridge) publish(et events.EventType, payload events.Payload) error {
	data, err := marshalEnvelope(Envelope{
		MessageID: uuid.NewString(),
		EventType: et,
		NodeID:    b.cfg.NodeID,
		Timestamp: b.now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		return err
	}
	return b.pub.Publish(b.Subject(et), data)
}

// Close stops forwarding and drains the NATS connection.
func (b *NATSBridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		for et, sub := range b.subs {
			b.bus.Unsubscribe(et, sub)
			delete(b.subs, et)
		}
		b.mu.Unlock()
		b.wg.Wait()

		if b.conn != nil {
			err = b.conn.Drain()
		}
	})
	return err
}

func marshalEnvelope(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// UnmarshalEnvelope parses a message published by the bridge.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return &env, nil
}

func generateNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "dronepad"
	}
	return host + "-" + uuid.NewString()[:8]
}

// Package events forwards transcript activity to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"lingualive/internal/domain"
	"lingualive/internal/observability/logging"
	"lingualive/internal/observability/metrics"
)

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers      []string
	TopicInterim string
	TopicEntries string
	Principal    string
	Enabled      bool
	Metrics      *metrics.Metrics
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements ports.TranscriptPublisher. Without brokers it only
// logs.
type Publisher struct {
	interim      messageWriter
	entries      messageWriter
	topicInterim string
	topicEntries string
	principal    string
	enabled      bool
	metrics      *metrics.Metrics
	log          zerolog.Logger
	now          func() time.Time
}

// InterimEvent is published for every interim fragment.
type InterimEvent struct {
	Type       string    `json:"type"`
	SessionID  string    `json:"sessionId"`
	Text       string    `json:"text"`
	Index      int       `json:"resultIndex"`
	Confidence *float64  `json:"confidence,omitempty"`
	Language   string    `json:"language,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EntryEvent is published for every recorded ledger entry.
type EntryEvent struct {
	Type      string                 `json:"type"`
	SessionID string                 `json:"sessionId"`
	Entry     domain.TranscriptEntry `json:"entry"`
}

func New(cfg Config) *Publisher {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.DefaultMetrics
	}
	p := &Publisher{
		topicInterim: cfg.TopicInterim,
		topicEntries: cfg.TopicEntries,
		principal:    cfg.Principal,
		metrics:      cfg.Metrics,
		log:          logging.WithComponent("events"),
		now:          time.Now,
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		p.log.Info().Msg("kafka disabled, using log-only mode")
		return p
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{Dial: dialer.DialFunc}

	p.interim = newWriter(cfg.Brokers, cfg.TopicInterim, transport)
	p.entries = newWriter(cfg.Brokers, cfg.TopicEntries, transport)
	p.enabled = true

	p.log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicInterim", cfg.TopicInterim).
		Str("topicEntries", cfg.TopicEntries).
		Msg("kafka publisher initialized")
	return p
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

func (p *Publisher) PublishInterim(ctx context.Context, sessionID string, fragment domain.TranscriptFragment) error {
	return p.publish(ctx, p.interim, p.topicInterim, "interim", sessionID, InterimEvent{
		Type:       "interim",
		SessionID:  sessionID,
		Text:       fragment.Text,
		Index:      fragment.ResultIndex,
		Confidence: fragment.Confidence,
		Language:   fragment.Language,
		Timestamp:  p.now().UTC(),
	})
}

func (p *Publisher) PublishEntry(ctx context.Context, sessionID string, entry domain.TranscriptEntry) error {
	return p.publish(ctx, p.entries, p.topicEntries, "entry", sessionID, EntryEvent{
		Type:      "entry",
		SessionID: sessionID,
		Entry:     entry,
	})
}

// Enabled reports whether messages reach Kafka.
func (p *Publisher) Enabled() bool { return p.enabled }

func (p *Publisher) publish(ctx context.Context, writer messageWriter, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error().Err(err).Str("topic", topic).Msg("failed to marshal event")
		return err
	}

	p.log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}
	if err := writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error().Err(err).Str("topic", topic).Str("key", key).Msg("failed to write to kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both writers.
func (p *Publisher) Close() error {
	var err error
	for _, writer := range []messageWriter{p.interim, p.entries} {
		if writer == nil {
			continue
		}
		if e := writer.Close(); e != nil {
			p.log.Error().Err(e).Msg("error closing kafka writer")
			err = e
		}
	}
	return err
}

// Package kafka mirrors committed ledger events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"certify/internal/platform/config"
	"certify/internal/registry/models"
	"certify/pkg/platform/circuit"
)

const (
	// partitionKey is shared by every record so the topic keeps log order.
	partitionKey = "ledger"

	HeaderEventID   = "event-id"
	HeaderEventKind = "event-kind"
	HeaderSequence  = "sequence"
)

// eventNamespace derives stable record ids from sequence numbers so a
// re-published event carries the same id.
var eventNamespace = uuid.MustParse("6f1c2b0e-7d1a-4f53-9a43-2c8f0e6d9b71")

// ErrCircuitOpen is returned without producing while the brokers are failing.
var ErrCircuitOpen = errors.New("kafka publisher circuit open")

// Publisher produces ledger events with franz-go.
type Publisher struct {
	client  *kgo.Client
	topic   string
	logger  *slog.Logger
	breaker *circuit.Breaker
}

func newBreaker() *circuit.Breaker {
	return circuit.New("kafka",
		circuit.WithFailureThreshold(3),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(30*time.Second),
	)
}

// NewPublisher connects to the brokers and makes sure the topic exists.
// Returns nil if no brokers are configured.
func NewPublisher(ctx context.Context, cfg config.KafkaConfig, logger *slog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordDeliveryTimeout(cfg.DeliveryTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka ping failed: %w", err)
	}

	p := &Publisher{client: client, topic: cfg.Topic, logger: logger, breaker: newBreaker()}
	if err := p.ensureTopic(ctx, cfg.Partitions, cfg.ReplicationFactor); err != nil {
		client.Close()
		return nil, err
	}
	return p, nil
}

func (p *Publisher) ensureTopic(ctx context.Context, partitions int32, replication int16) error {
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopics(ctx, partitions, replication, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	for _, t := range resp {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", t.Topic, t.Err)
		}
	}
	return nil
}

// Publish produces events in order and waits for every ack. After repeated
// produce failures it returns ErrCircuitOpen until a trial produce succeeds.
func (p *Publisher) Publish(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	records, err := p.records(events)
	if err != nil {
		return err
	}
	if !p.breaker.Allow() {
		return ErrCircuitOpen
	}
	if err := p.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		if _, change := p.breaker.RecordFailure(); change.Opened {
			p.logger.WarnContext(ctx, "kafka publisher circuit opened", "topic", p.topic, "error", err)
		}
		return fmt.Errorf("produce events: %w", err)
	}
	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.logger.InfoContext(ctx, "kafka publisher circuit closed", "topic", p.topic)
	}
	p.logger.DebugContext(ctx, "published ledger events", "count", len(records), "topic", p.topic)
	return nil
}

func (p *Publisher) records(events []models.Event) ([]*kgo.Record, error) {
	records := make([]*kgo.Record, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal event %d: %w", e.Sequence, err)
		}
		seq := strconv.FormatUint(e.Sequence, 10)
		records = append(records, &kgo.Record{
			Topic: p.topic,
			Key:   []byte(partitionKey),
			Value: payload,
			Headers: []kgo.RecordHeader{
				{Key: HeaderEventID, Value: []byte(EventID(e.Sequence).String())},
				{Key: HeaderEventKind, Value: []byte(e.Kind)},
				{Key: HeaderSequence, Value: []byte(seq)},
			},
		})
	}
	return records, nil
}

// EventID is the record id for the event at seq.
func EventID(seq uint64) uuid.UUID {
	return uuid.NewSHA1(eventNamespace, []byte(strconv.FormatUint(seq, 10)))
}

// Health pings the brokers.
func (p *Publisher) Health(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes buffered records and closes the client.
func (p *Publisher) Close() {
	p.client.Close()
}

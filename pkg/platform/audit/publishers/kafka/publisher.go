// Package kafka mirrors audit events onto a Kafka topic so downstream
// consumers (SIEM, retention archival) get the trail without querying the
// service's own store.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "provenance/pkg/platform/audit"
)

// Mirror decorates a Store: every appended event is also produced to Kafka,
// keyed by document ID so per-document ordering survives partitioning. The
// local store stays the source of truth; a produce failure is logged, not
// propagated, so audit capture never depends on broker availability.
type Mirror struct {
	next   audit.Store
	client *kgo.Client
	logger *slog.Logger
}

// NewMirror connects a producer and wraps the given store. EnsureTopic should
// have been called first.
func NewMirror(next audit.Store, brokers []string, topic string, logger *slog.Logger) (*Mirror, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka producer: %w", err)
	}
	return &Mirror{next: next, client: client, logger: logger}, nil
}

func (m *Mirror) Close() {
	m.client.Close()
}

// payload is the JSON structure published to Kafka.
type payload struct {
	Category   string `json:"category"`
	Timestamp  string `json:"timestamp"`
	DocumentID string `json:"documentId,omitempty"`
	Actor      string `json:"actor,omitempty"`
	Action     string `json:"action"`
	Decision   string `json:"decision,omitempty"`
	Reason     string `json:"reason,omitempty"`
	TxID       string `json:"txId,omitempty"`
	RequestID  string `json:"requestId,omitempty"`
}

func (m *Mirror) Append(ctx context.Context, event audit.Event) error {
	if err := m.next.Append(ctx, event); err != nil {
		return err
	}

	body, err := json.Marshal(payload{
		Category:   string(event.Category),
		Timestamp:  event.Timestamp.Format(time.RFC3339Nano),
		DocumentID: event.DocumentID,
		Actor:      event.Actor,
		Action:     event.Action,
		Decision:   event.Decision,
		Reason:     event.Reason,
		TxID:       event.TxID,
		RequestID:  event.RequestID,
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	record := &kgo.Record{Key: []byte(event.DocumentID), Value: body}
	m.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil && m.logger != nil {
			m.logger.Warn("audit mirror produce failed",
				"action", event.Action,
				"document_id", event.DocumentID,
				"error", err)
		}
	})
	return nil
}

func (m *Mirror) ListByDocument(ctx context.Context, documentID string) ([]audit.Event, error) {
	return m.next.ListByDocument(ctx, documentID)
}

func (m *Mirror) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	return m.next.ListRecent(ctx, limit)
}

// EnsureTopic creates the audit topic if it does not exist yet. Safe to call
// on every startup.
func EnsureTopic(ctx context.Context, brokers []string, topic string) error {
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return fmt.Errorf("connect kafka admin: %w", err)
	}
	defer client.Close()

	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopic(ctx, 3, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create audit topic: %w", err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create audit topic %q: %w", topic, resp.Err)
	}
	return nil
}

// Package events announces completed refresh runs on a Kafka topic.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/cartcost/backend/internal/domain"
)

// EventPricesRefreshed is the type of the run summary message
const EventPricesRefreshed = "prices.refreshed"

// EventStorePrices is the type of the per-store price messages
const EventStorePrices = "prices.store_updated"

// messageWriter is the slice of *kafka.Writer the sink needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config configures the Kafka sink
type Config struct {
	Brokers []string
	Topic   string
}

// RunEvent is the payload of an EventPricesRefreshed message
type RunEvent struct {
	Type        string         `json:"type"`
	RunID       string         `json:"runId"`
	FinishedAt  time.Time      `json:"finishedAt"`
	RowsWritten int            `json:"rowsWritten"`
	Stores      []string       `json:"stores"`
	BySource    map[string]int `json:"bySource,omitempty"`
}

// StoreEvent is the payload of an EventStorePrices message
type StoreEvent struct {
	Type    string               `json:"type"`
	RunID   string               `json:"runId"`
	StoreID string               `json:"storeId"`
	Prices  []domain.PriceRecord `json:"prices"`
}

// KafkaSink implements domain.RefreshSink.
// Store messages are keyed by store id so one store's updates stay on one partition.
type KafkaSink struct {
	writer messageWriter
}

// New creates a sink writing to cfg.Topic
func New(cfg Config) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("%w: kafka brokers and topic required", domain.ErrInvalidRequest)
	}
	return newSink(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}), nil
}

func newSink(w messageWriter) *KafkaSink {
	return &KafkaSink{writer: w}
}

// Publish implements domain.RefreshSink
func (s *KafkaSink) Publish(ctx context.Context, report domain.RefreshReport, records []domain.PriceRecord) error {
	byStore := make(map[string][]domain.PriceRecord)
	for _, r := range records {
		byStore[r.StoreID] = append(byStore[r.StoreID], r)
	}
	storeIDs := make([]string, 0, len(byStore))
	for id := range byStore {
		storeIDs = append(storeIDs, id)
	}
	sort.Strings(storeIDs)

	msgs := make([]kafka.Message, 0, len(storeIDs)+1)
	for _, id := range storeIDs {
		value, err := json.Marshal(StoreEvent{Type: EventStorePrices, RunID: report.RunID, StoreID: id, Prices: byStore[id]})
		if err != nil {
			return fmt.Errorf("encode store event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(id),
			Value:   value,
			Headers: []kafka.Header{{Key: "type", Value: []byte(EventStorePrices)}},
		})
	}

	summary, err := json.Marshal(RunEvent{
		Type:        EventPricesRefreshed,
		RunID:       report.RunID,
		FinishedAt:  report.FinishedAt,
		RowsWritten: report.RowsWritten,
		Stores:      storeIDs,
		BySource:    report.BySource,
	})
	if err != nil {
		return fmt.Errorf("encode run event: %w", err)
	}
	msgs = append(msgs, kafka.Message{
		Key:     []byte(report.RunID),
		Value:   summary,
		Headers: []kafka.Header{{Key: "type", Value: []byte(EventPricesRefreshed)}},
	})

	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write refresh events: %w", err)
	}
	return nil
}

// Close flushes and closes the writer
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

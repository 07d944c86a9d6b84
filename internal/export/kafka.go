// Package export streams harvested link records to Kafka so downstream
// consumers (analytics, archival) see new links without polling the
// per-category files.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/waharvest/waharvest/internal/links"
)

// KafkaSink publishes link records, one topic per account:
// <prefix>.<account-id>.links.
type KafkaSink struct {
	writer      messageWriter
	topicPrefix string
}

// messageWriter is the slice of kafka.Writer the sink needs; tests
// substitute a capture.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaSink connects a sink to the given brokers. The writer is
// topic-less; each message names its topic, so one sink serves all
// accounts.
func NewKafkaSink(brokers []string, topicPrefix string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
		topicPrefix: topicPrefix,
	}
}

// Topic returns the per-account topic name.
func (s *KafkaSink) Topic(accountID string) string {
	return strings.Join([]string{s.topicPrefix, accountID, "links"}, ".")
}

// Publish implements links.Sink. The record's URL keys the message so all
// events for one URL land on one partition.
func (s *KafkaSink) Publish(ctx context.Context, rec links.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode link record: %w", err)
	}
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Topic: s.Topic(rec.AccountID),
		Key:   []byte(rec.URL),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to publish link record: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

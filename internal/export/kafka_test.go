package export

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/waharvest/waharvest/internal/links"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (c *captureWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error { return nil }

func TestPublishTopicKeyAndPayload(t *testing.T) {
	w := &captureWriter{}
	s := &KafkaSink{writer: w, topicPrefix: "waharvest"}

	rec := links.Record{
		AccountID: "acct-1",
		URL:       "https://chat.whatsapp.com/abc",
		Category:  links.CategoryWhatsApp,
		SenderID:  "555",
		ChatID:    "123@g.us",
		FirstSeen: time.Now().UTC(),
	}
	if err := s.Publish(context.Background(), rec); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages, want 1", len(w.msgs))
	}

	msg := w.msgs[0]
	if msg.Topic != "waharvest.acct-1.links" {
		t.Errorf("topic = %q", msg.Topic)
	}
	if string(msg.Key) != rec.URL {
		t.Errorf("key = %q", msg.Key)
	}
	var decoded links.Record
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if decoded.URL != rec.URL || decoded.Category != rec.Category {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestPublishSurfacesWriterError(t *testing.T) {
	w := &captureWriter{err: errors.New("broker down")}
	s := &KafkaSink{writer: w, topicPrefix: "waharvest"}
	if err := s.Publish(context.Background(), links.Record{AccountID: "a", URL: "u"}); err == nil {
		t.Fatal("expected error from writer")
	}
}

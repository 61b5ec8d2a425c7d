package notify

import (
	"context"
	"encoding/json"
	"time"

	skafka "github.com/segmentio/kafka-go"
)

// Writer is the subset of kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// Kafka publishes notifications to a topic, keyed by recipient so one user's
// messages stay ordered within a partition. A downstream mail/SMS worker consumes them.
type Kafka struct {
	writer Writer
}

func NewKafka(brokers []string, topic string) *Kafka {
	w := &skafka.Writer{
		Addr:         skafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &skafka.Hash{},
		RequiredAcks: skafka.RequireOne,
		WriteTimeout: 5 * time.Second,
	}
	return &Kafka{writer: w}
}

// NewKafkaWithWriter allows injecting a test writer.
func NewKafkaWithWriter(w Writer) *Kafka { return &Kafka{writer: w} }

func (k *Kafka) Notify(ctx context.Context, n Notification) error {
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, skafka.Message{
		Key:   []byte(n.UserID),
		Value: b,
		Headers: []skafka.Header{
			{Key: "kind", Value: []byte(n.Kind)},
		},
	})
}

func (k *Kafka) Close() error { return k.writer.Close() }

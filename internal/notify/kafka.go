package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"
)

// NewSyncProducer creates a sarama producer that waits for all replicas.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Retry.Backoff = 100 * time.Millisecond
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	log.Info().Strs("brokers", brokers).Msg("Kafka producer connected")
	return producer, nil
}

// Kafka publishes notifications as JSON ledger events.
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafka creates a Kafka dispatcher.
func NewKafka(producer sarama.SyncProducer, topic string) *Kafka {
	return &Kafka{producer: producer, topic: topic}
}

// Dispatch implements Dispatcher. Events for one account share a partition key
// so consumers see them in order.
func (k *Kafka) Dispatch(_ context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	key := "admins"
	if !n.ForAdmins() {
		key = strconv.FormatInt(n.AccountID, 10)
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("kind"), Value: []byte(n.Kind)},
		},
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Debug().
		Str("kind", string(n.Kind)).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("Ledger event published")
	return nil
}

// Close closes the underlying producer.
func (k *Kafka) Close() error {
	return k.producer.Close()
}

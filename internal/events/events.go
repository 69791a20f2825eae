// Package events publishes catalog change notifications to Kafka after a
// mutation has been committed.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Event types.
const (
	ProductCreated  = "product.created"
	ProductUpdated  = "product.updated"
	ProductDeleted  = "product.deleted"
	ProductRestored = "product.restored"
	StockUpdated    = "stock.updated"
	CategoryCreated = "category.created"
	CategoryUpdated = "category.updated"
	CategoryDeleted = "category.deleted"
	BrandCreated    = "brand.created"
	BrandUpdated    = "brand.updated"
	BrandDeleted    = "brand.deleted"
	UserCreated     = "user.created"
	UserUpdated     = "user.updated"
	UserDeleted     = "user.deleted"
	RoleChanged     = "role.changed"
)

// Event is the JSON payload written to the topic named by Type.
type Event struct {
	Type       string    `json:"event_type"`
	Entity     string    `json:"entity"`
	EntityID   uint      `json:"entity_id"`
	ActorID    *uint     `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data,omitempty"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Kafka publishes events through a synchronous sarama producer.
type Kafka struct {
	producer sarama.SyncProducer
	prefix   string
}

// NewKafka wraps an existing producer. Topics are prefix + event type.
func NewKafka(producer sarama.SyncProducer, topicPrefix string) *Kafka {
	return &Kafka{producer: producer, prefix: topicPrefix}
}

// ProducerConfig is the sarama configuration used by DialKafka.
func ProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	return cfg
}

// DialKafka connects to the brokers, retrying while they come up.
func DialKafka(brokers []string, topicPrefix string, attempts int, wait time.Duration, log *zap.Logger) (*Kafka, error) {
	var err error
	for i := 1; i <= attempts; i++ {
		var producer sarama.SyncProducer
		producer, err = sarama.NewSyncProducer(brokers, ProducerConfig())
		if err == nil {
			log.Info("kafka producer ready", zap.Strings("brokers", brokers))
			return NewKafka(producer, topicPrefix), nil
		}
		log.Warn("waiting for kafka", zap.Int("attempt", i), zap.Int("of", attempts), zap.Error(err))
		time.Sleep(wait)
	}
	return nil, fmt.Errorf("kafka producer: %w", err)
}

// Publish sends e keyed by entity id so that one entity's events stay ordered.
func (k *Kafka) Publish(_ context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	msg := &sarama.ProducerMessage{
		Topic:     k.prefix + e.Type,
		Key:       sarama.StringEncoder(e.Entity + ":" + strconv.FormatUint(uint64(e.EntityID), 10)),
		Value:     sarama.ByteEncoder(body),
		Timestamp: e.OccurredAt,
	}
	if _, _, err := k.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Topic, err)
	}
	return nil
}

// Close flushes and closes the producer.
func (k *Kafka) Close() error { return k.producer.Close() }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the published event types in order.
func (r *Recorder) Types() []string {
	evs := r.Events()
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}

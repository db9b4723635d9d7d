package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/fjod/storefront-cart/internal/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	DefaultCartEventsTopic = "cart-events"
	publishBuffer          = 1024
	publishBatch           = 100
)

// MessageWriter is the part of kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher forwards cart events to a Kafka topic. HandleCartEvent only
// enqueues; Run drains the queue in batches so slow brokers never stall a cart.
// Close publishes whatever is still queued.
type KafkaPublisher struct {
	writer  MessageWriter
	queue   chan kafka.Message
	timeout time.Duration
	log     *zap.Logger

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaPublisher(writer MessageWriter, log *zap.Logger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaPublisher{
		writer:  writer,
		queue:   make(chan kafka.Message, publishBuffer),
		timeout: 5 * time.Second,
		log:     log,
	}
}

func (p *KafkaPublisher) HandleCartEvent(_ context.Context, event domain.CartEvent) {
	value, err := json.Marshal(event)
	if err != nil {
		p.log.Error("failed to marshal cart event", zap.String("event_type", string(event.Type)), zap.Error(err))
		return
	}

	msg := kafka.Message{
		Key:   []byte(event.CartID),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.Warn("kafka publisher closed, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("cart_id", event.CartID))
		return
	}

	select {
	case p.queue <- msg:
	default:
		p.log.Warn("cart event queue full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("cart_id", event.CartID))
	}
}

func (p *KafkaPublisher) Run(ctx context.Context) {
	for {
		select {
		case msg := <-p.queue:
			p.publish(ctx, p.collect(msg))
		case <-ctx.Done():
			p.flush()
			return
		}
	}
}

// collect gathers whatever is already queued behind first, up to a batch.
func (p *KafkaPublisher) collect(first kafka.Message) []kafka.Message {
	batch := []kafka.Message{first}
	for len(batch) < publishBatch {
		select {
		case msg := <-p.queue:
			batch = append(batch, msg)
		default:
			return batch
		}
	}
	return batch
}

func (p *KafkaPublisher) publish(ctx context.Context, batch []kafka.Message) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, batch...); err != nil {
		p.log.Error("failed to publish cart events", zap.Int("count", len(batch)), zap.Error(err))
	}
}

func (p *KafkaPublisher) flush() {
	for {
		select {
		case msg := <-p.queue:
			p.publish(context.Background(), p.collect(msg))
		default:
			return
		}
	}
}

// Close stops accepting events, publishes the queue and closes the writer.
func (p *KafkaPublisher) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.flush()
		if err := p.writer.Close(); err != nil {
			p.log.Error("error closing kafka writer", zap.Error(err))
		}
	})
}

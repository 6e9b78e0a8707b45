package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var (
	ErrQueueFull = errors.New("notification queue is full")
	ErrClosed    = errors.New("notifier is closed")
)

// Event is the envelope the e-mail worker consumes
type Event struct {
	EventID    uuid.UUID      `json:"event_id"`
	Template   string         `json:"template"`
	Email      string         `json:"email"`
	Data       map[string]any `json:"data"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes notification events through a buffered inbox drained by one goroutine.
// Send never blocks; a full inbox drops the event with ErrQueueFull.
type KafkaNotifier struct {
	w      messageWriter
	logger *zap.Logger

	mu      sync.RWMutex
	closed  bool
	inbox   chan kafka.Message
	closeCh chan struct{}
}

func NewKafkaNotifier(brokers []string, topic string, buf int, logger *zap.Logger) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("failed to publish notifications", zap.Int("count", len(messages)), zap.Error(err))
			}
		},
	}
	return newKafkaNotifier(w, buf, logger)
}

func newKafkaNotifier(w messageWriter, buf int, logger *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		w:       w,
		logger:  logger,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

// Start launches the publishing loop; it exits once Close drains the inbox
func (n *KafkaNotifier) Start() {
	go func() {
		defer close(n.closeCh)
		for m := range n.inbox {
			if err := n.w.WriteMessages(context.Background(), m); err != nil {
				n.logger.Error("failed to publish notification", zap.ByteString("key", m.Key), zap.Error(err))
			}
		}
		if err := n.w.Close(); err != nil {
			n.logger.Warn("failed to close kafka writer", zap.Error(err))
		}
	}()
}

func (n *KafkaNotifier) Send(ctx context.Context, email, template string, data map[string]any) error {
	event := Event{
		EventID:    uuid.New(),
		Template:   template,
		Email:      email,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(email),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "template", Value: []byte(template)},
			{Key: "event_id", Value: []byte(event.EventID.String())},
		},
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return ErrClosed
	}

	select {
	case n.inbox <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events, flushes the inbox and waits for the loop to exit
func (n *KafkaNotifier) Close() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.inbox)
	}
	n.mu.Unlock()
	<-n.closeCh
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/yanizio/openaccount/internal/account"
	"github.com/yanizio/openaccount/internal/logger"
	"github.com/yanizio/openaccount/internal/metrics"
	"github.com/yanizio/openaccount/internal/submission"
)

// DefaultWriteTimeout bounds one publish.
const DefaultWriteTimeout = 10 * time.Second

// AccountOpened is the event published for every completed submission.
type AccountOpened struct {
	Reference   string              `json:"reference"`
	SubmittedAt time.Time           `json:"submittedAt"`
	Application account.Application `json:"application"`
}

// messageWriter is the subset of *kafka.Writer we use.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaOptions configures NewKafka.
type KafkaOptions struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	Log          *zap.SugaredLogger
}

// Kafka publishes AccountOpened events keyed by reference, so every event
// for one submission lands on the same partition.
type Kafka struct {
	w       messageWriter
	topic   string
	timeout time.Duration
}

// NewKafka builds a synchronous writer.  No connection is made until the
// first publish.
func NewKafka(o KafkaOptions) (*Kafka, error) {
	if len(o.Brokers) == 0 {
		return nil, fmt.Errorf("kafka notifier: no brokers")
	}
	if o.Topic == "" {
		return nil, fmt.Errorf("kafka notifier: no topic")
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	log := o.Log
	if log == nil {
		log = zap.S()
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(o.Brokers...),
		Topic:        o.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: o.WriteTimeout,
		Logger:       kafka.LoggerFunc(func(msg string, args ...interface{}) { log.Debugf(msg, args...) }),
		ErrorLogger:  kafka.LoggerFunc(func(msg string, args ...interface{}) { log.Errorf(msg, args...) }),
	}
	log.Infow("kafka notifier ready", "brokers", o.Brokers, "topic", o.Topic)
	return newKafka(w, o.Topic, o.WriteTimeout), nil
}

func newKafka(w messageWriter, topic string, timeout time.Duration) *Kafka {
	return &Kafka{w: w, topic: topic, timeout: timeout}
}

// Notify implements submission.Notifier.
func (k *Kafka) Notify(ctx context.Context, r submission.Receipt) error {
	body, err := json.Marshal(AccountOpened(r))
	if err != nil {
		metrics.NotifyErrorsTotal.WithLabelValues("kafka").Inc()
		return fmt.Errorf("marshal account opened: %w", err)
	}

	produceCtx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	if err := k.w.WriteMessages(produceCtx, kafka.Message{
		Key:   []byte(r.Reference),
		Value: body,
		Time:  r.SubmittedAt,
	}); err != nil {
		metrics.NotifyErrorsTotal.WithLabelValues("kafka").Inc()
		logger.FromContext(ctx).Errorw("kafka publish failed",
			"topic", k.topic, "reference", r.Reference, "err", err)
		return fmt.Errorf("publish %s: %w", k.topic, err)
	}

	logger.FromContext(ctx).Debugw("kafka event published", "topic", k.topic, "reference", r.Reference)
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error { return k.w.Close() }

// Package notify delivers best-effort customer and admin messages. A failed
// delivery is logged and counted, never returned.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"monarchmail-be/internal/logger"
	"monarchmail-be/internal/metrics"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Sender interface {
	Send(ctx context.Context, msg Message)
	Close() error
}

// New returns a Kafka-backed sender, or a log-only one when no brokers are
// configured.
func New(brokers []string, topic string) Sender {
	if len(brokers) == 0 {
		logger.L().Warn("no Kafka brokers configured, notifications will only be logged")
		return NewLogSender()
	}
	return NewKafkaSender(brokers, topic)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaSender struct {
	writer messageWriter
	topic  string
}

// NewKafkaSender publishes asynchronously: Send only enqueues, and the
// writer reports each batch to complete once the broker answers.
func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	s := &KafkaSender{topic: topic}
	s.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		Completion:   s.complete,
	}
	return s
}

func (s *KafkaSender) Send(ctx context.Context, msg Message) {
	log := logger.FromCtx(ctx).With(
		zap.String("sender", "kafka"),
		zap.String("topic", s.topic),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)

	value, err := json.Marshal(msg)
	if err != nil {
		log.Error("failed to encode notification", zap.Error(err))
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		return
	}

	// The request context may already be finishing; delivery outlives it.
	ctx = context.WithoutCancel(ctx)
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(msg.To),
		Value:   value,
		Headers: []kafka.Header{{Key: "subject", Value: []byte(msg.Subject)}},
	})
	if err != nil {
		log.Error("failed to publish notification", zap.Error(err))
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		return
	}

	log.Info("notification queued")
}

// complete runs on the writer's goroutine after a batch is acknowledged or
// has exhausted its retries.
func (s *KafkaSender) complete(msgs []kafka.Message, err error) {
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}

	for _, m := range msgs {
		log := logger.L().With(
			zap.String("sender", "kafka"),
			zap.String("topic", s.topic),
			zap.ByteString("to", m.Key),
			zap.ByteString("subject", headerValue(m.Headers, "subject")),
		)
		if err != nil {
			log.Error("failed to publish notification", zap.Error(err))
		} else {
			log.Info("notification published")
		}
		metrics.NotificationsTotal.WithLabelValues(outcome).Inc()
	}
}

func headerValue(headers []kafka.Header, key string) []byte {
	for _, h := range headers {
		if h.Key == key {
			return h.Value
		}
	}
	return nil
}

func (s *KafkaSender) Close() error {
	return s.writer.Close()
}

type LogSender struct{}

func NewLogSender() *LogSender {
	return &LogSender{}
}

func (LogSender) Send(ctx context.Context, msg Message) {
	logger.FromCtx(ctx).Info("notification",
		zap.String("sender", "log"),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_len", len(msg.Body)),
	)
	metrics.NotificationsTotal.WithLabelValues("logged").Inc()
}

func (LogSender) Close() error { return nil }

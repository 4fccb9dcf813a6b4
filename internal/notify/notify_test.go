package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"monarchmail-be/internal/logger"
	"monarchmail-be/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSender_Send(t *testing.T) {
	msg := Message{To: "jane@example.com", Subject: "Your label", Body: "Tracking 94001"}

	t.Run("Enqueues", func(t *testing.T) {
		w := &fakeWriter{}
		s := &KafkaSender{writer: w, topic: "notifications"}

		s.Send(context.Background(), msg)

		require.Len(t, w.msgs, 1)
		assert.Equal(t, "jane@example.com", string(w.msgs[0].Key))
		assert.Equal(t, "Your label", string(headerValue(w.msgs[0].Headers, "subject")))
		var got Message
		require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
		assert.Equal(t, msg, got)
	})

	t.Run("EnqueueFailureIsSwallowed", func(t *testing.T) {
		core, observed := observer.New(zapcore.ErrorLevel)
		defer logger.Replace(zap.New(core))()

		s := &KafkaSender{writer: &fakeWriter{err: io.ErrClosedPipe}, topic: "notifications"}
		before := testutil.ToFloat64(metrics.NotificationsTotal.WithLabelValues("failed"))

		assert.NotPanics(t, func() { s.Send(context.Background(), msg) })
		assert.Equal(t, 1, observed.FilterMessage("failed to publish notification").Len())
		assert.Equal(t, before+1, testutil.ToFloat64(metrics.NotificationsTotal.WithLabelValues("failed")))
	})

	t.Run("CanceledContextStillPublishes", func(t *testing.T) {
		w := &fakeWriter{}
		s := &KafkaSender{writer: w, topic: "notifications"}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		s.Send(ctx, msg)
		assert.Len(t, w.msgs, 1)
	})

	t.Run("Close", func(t *testing.T) {
		w := &fakeWriter{}
		s := &KafkaSender{writer: w}
		assert.NoError(t, s.Close())
		assert.True(t, w.closed)
	})
}

func TestNewKafkaSender_IsAsync(t *testing.T) {
	s := NewKafkaSender([]string{"localhost:9092"}, "notifications")
	defer s.Close()

	w, ok := s.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.True(t, w.Async)
	assert.NotNil(t, w.Completion)
	assert.Equal(t, "notifications", w.Topic)
}

func TestKafkaSender_Complete(t *testing.T) {
	s := &KafkaSender{topic: "notifications"}
	msgs := []kafka.Message{
		{Key: []byte("jane@example.com"), Headers: []kafka.Header{{Key: "subject", Value: []byte("Your label")}}},
		{Key: []byte("admin@example.com")},
	}

	t.Run("Delivered", func(t *testing.T) {
		core, observed := observer.New(zapcore.InfoLevel)
		defer logger.Replace(zap.New(core))()
		before := testutil.ToFloat64(metrics.NotificationsTotal.WithLabelValues("sent"))

		s.complete(msgs, nil)

		logs := observed.FilterMessage("notification published").All()
		require.Len(t, logs, 2)
		assert.Equal(t, "jane@example.com", logs[0].ContextMap()["to"])
		assert.Equal(t, "Your label", logs[0].ContextMap()["subject"])
		assert.Equal(t, before+2, testutil.ToFloat64(metrics.NotificationsTotal.WithLabelValues("sent")))
	})

	t.Run("Broker_Down", func(t *testing.T) {
		core, observed := observer.New(zapcore.ErrorLevel)
		defer logger.Replace(zap.New(core))()
		before := testutil.ToFloat64(metrics.NotificationsTotal.WithLabelValues("failed"))

		s.complete(msgs, errors.New("broker down"))

		assert.Equal(t, 2, observed.FilterMessage("failed to publish notification").Len())
		assert.Equal(t, before+2, testutil.ToFloat64(metrics.NotificationsTotal.WithLabelValues("failed")))
	})
}

func TestNew(t *testing.T) {
	assert.IsType(t, &LogSender{}, New(nil, "notifications"))
	assert.IsType(t, &KafkaSender{}, New([]string{"localhost:9092"}, "notifications"))
}

func TestLogSender_Send(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	defer logger.Replace(zap.New(core))()

	NewLogSender().Send(context.Background(), Message{To: "admin@example.com", Subject: "New inquiry"})

	logs := observed.FilterMessage("notification").All()
	require.Len(t, logs, 1)
	assert.Equal(t, "admin@example.com", logs[0].ContextMap()["to"])
}

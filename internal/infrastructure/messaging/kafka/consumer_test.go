package kafka

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ClinLink/internal/config"
	prom "github.com/turtacn/ClinLink/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ClinLink/internal/testutil"
	apperrors "github.com/turtacn/ClinLink/pkg/errors"
)

type mockKafkaReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	fetchErr  error
	committed []kafka.Message
	closes    int
}

func (m *mockKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	if m.fetchErr != nil {
		err := m.fetchErr
		m.fetchErr = nil
		m.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(m.queue) > 0 {
		msg := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		return msg, nil
	}
	m.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (m *mockKafkaReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed = append(m.committed, msgs...)
	return nil
}

func (m *mockKafkaReader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

func (m *mockKafkaReader) commits() []kafka.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]kafka.Message(nil), m.committed...)
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*ProducerMessage
	err  error
}

func (p *recordingPublisher) Publish(ctx context.Context, msg *ProducerMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func newTestConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Brokers: []string{"localhost:9092"},
		GroupID: "test-group",
		Topics:  []string{"test-topic"},
		RetryConfig: RetryConfig{
			MaxRetries:      2,
			RetryBackoff:    time.Millisecond,
			MaxRetryBackoff: 2 * time.Millisecond,
			DeadLetterTopic: "test-dlq",
		},
	}
}

type consumerFixture struct {
	consumer *Consumer
	reader   *mockKafkaReader
	dlq      *recordingPublisher
	logger   *testutil.MockLogger
	metrics  prom.MetricsCollector
}

func newConsumerFixture(t *testing.T, cfg ConsumerConfig) *consumerFixture {
	t.Helper()
	collector, err := prom.NewMetricsCollector(prom.CollectorConfig{Namespace: "test"}, nil)
	require.NoError(t, err)
	f := &consumerFixture{
		reader:  &mockKafkaReader{},
		dlq:     &recordingPublisher{},
		logger:  testutil.NewMockLogger(),
		metrics: collector,
	}
	f.consumer = NewConsumerWithReader(f.reader, cfg,
		WithConsumerLogger(f.logger),
		WithConsumerMetrics(prom.NewAnnotationMetrics(collector)),
		WithDeadLetter(f.dlq))
	return f
}

func (f *consumerFixture) scrape(t *testing.T) string {
	t.Helper()
	w := httptest.NewRecorder()
	f.metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestValidateConsumerConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ConsumerConfig)
		ok     bool
	}{
		{"valid", func(*ConsumerConfig) {}, true},
		{"no brokers", func(c *ConsumerConfig) { c.Brokers = nil }, false},
		{"no group", func(c *ConsumerConfig) { c.GroupID = "" }, false},
		{"no topics", func(c *ConsumerConfig) { c.Topics = nil }, false},
		{"bad offset", func(c *ConsumerConfig) { c.AutoOffsetReset = "middle" }, false},
		{"latest offset", func(c *ConsumerConfig) { c.AutoOffsetReset = "latest" }, true},
		{"negative retries", func(c *ConsumerConfig) { c.RetryConfig.MaxRetries = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConsumerConfig()
			tt.mutate(&cfg)
			err := ValidateConsumerConfig(cfg)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
			}
		})
	}
}

func TestConsumerConfigFrom(t *testing.T) {
	cfg := ConsumerConfigFrom(config.KafkaConfig{
		Brokers:      []string{"b:9092"},
		GroupID:      "g",
		InputTopic:   "in",
		DLQTopic:     "dlq",
		StartOffset:  "latest",
		MaxRetries:   4,
		RetryBackoff: time.Second,
	})
	assert.Equal(t, []string{"in"}, cfg.Topics)
	assert.Equal(t, "g", cfg.GroupID)
	assert.Equal(t, "latest", cfg.AutoOffsetReset)
	assert.Equal(t, 4, cfg.RetryConfig.MaxRetries)
	assert.Equal(t, "dlq", cfg.RetryConfig.DeadLetterTopic)
	assert.NoError(t, ValidateConsumerConfig(cfg))
}

func TestNewConsumerWithReader_Defaults(t *testing.T) {
	c := NewConsumerWithReader(&mockKafkaReader{}, ConsumerConfig{})
	assert.Equal(t, "earliest", c.config.AutoOffsetReset)
	assert.Equal(t, 500*time.Millisecond, c.config.RetryConfig.RetryBackoff)
	assert.Equal(t, 30*time.Second, c.config.RetryConfig.MaxRetryBackoff)
	assert.NotNil(t, c.metrics)
	assert.NotNil(t, c.logger)
}

func TestSubscribe(t *testing.T) {
	f := newConsumerFixture(t, newTestConsumerConfig())
	f.consumer.Subscribe("topic", func(ctx context.Context, msg *Message) error { return nil })
	assert.Len(t, f.consumer.handlers, 1)
	assert.True(t, f.logger.HasMessage("info", "Subscribed to topic"))
}

func TestRun_AlreadyRunning(t *testing.T) {
	f := newConsumerFixture(t, newTestConsumerConfig())
	f.consumer.running.Store(true)
	assert.ErrorIs(t, f.consumer.Run(context.Background()), ErrAlreadyRunning)
}

func TestRun_ProcessesAndCommits(t *testing.T) {
	f := newConsumerFixture(t, newTestConsumerConfig())
	f.reader.queue = []kafka.Message{{
		Topic:   "test-topic",
		Offset:  7,
		Value:   []byte("value"),
		Headers: []kafka.Header{{Key: "event_type", Value: []byte("x")}},
	}}
	f.reader.fetchErr = errors.New("broker hiccup")

	handled := make(chan *Message, 1)
	f.consumer.Subscribe("test-topic", func(ctx context.Context, msg *Message) error {
		handled <- msg
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.consumer.Run(ctx) }()

	var msg *Message
	select {
	case msg = <-handled:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for handler")
	}
	assert.Equal(t, "value", string(msg.Value))
	assert.Equal(t, int64(7), msg.Offset)
	assert.Equal(t, "x", msg.Headers["event_type"])

	require.Eventually(t, func() bool { return len(f.reader.commits()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, f.logger.HasMessage("error", "FetchMessage error"))
	assert.Contains(t, f.scrape(t), `test_messages_total{result="processed",topic="test-topic"} 1`)
}

func TestHandle_NoHandlerDropsAndCommits(t *testing.T) {
	f := newConsumerFixture(t, newTestConsumerConfig())
	f.consumer.handle(context.Background(), kafka.Message{Topic: "other", Value: []byte("v")})

	assert.Len(t, f.reader.commits(), 1)
	assert.True(t, f.logger.HasMessage("warn", "No handler for topic"))
	assert.Contains(t, f.scrape(t), `test_messages_total{result="dropped",topic="other"} 1`)
}

func TestProcessMessage_RetrySuccess(t *testing.T) {
	f := newConsumerFixture(t, newTestConsumerConfig())
	attempts := 0
	handler := func(ctx context.Context, msg *Message) error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	}

	result := f.consumer.processMessage(context.Background(), &Message{Topic: "test-topic"}, handler)
	assert.Equal(t, prom.MessageProcessed, result)
	assert.Equal(t, 2, attempts)
	assert.Empty(t, f.dlq.msgs)
	assert.Contains(t, f.scrape(t), `test_messages_total{result="retried",topic="test-topic"} 1`)
}

func TestProcessMessage_RetryExhaustedDeadLetters(t *testing.T) {
	f := newConsumerFixture(t, newTestConsumerConfig())
	attempts := 0
	handler := func(ctx context.Context, msg *Message) error {
		attempts++
		return apperrors.New(apperrors.ErrCodeServiceUnavailable, "engine busy")
	}

	msg := &Message{Topic: "test-topic", Key: []byte("k"), Value: []byte("v"), Headers: map[string]string{"trace_id": "t1"}}
	result := f.consumer.processMessage(context.Background(), msg, handler)
	assert.Equal(t, prom.MessageDeadLettered, result)
	assert.Equal(t, 3, attempts)

	require.Len(t, f.dlq.msgs, 1)
	dl := f.dlq.msgs[0]
	assert.Equal(t, "test-dlq", dl.Topic)
	assert.Equal(t, "k", string(dl.Key))
	assert.Equal(t, "v", string(dl.Value))
	assert.Equal(t, "t1", dl.Headers["trace_id"])
	assert.Equal(t, "test-topic", dl.Headers[HeaderOriginalTopic])
	assert.Equal(t, string(apperrors.ErrCodeServiceUnavailable), dl.Headers[HeaderErrorCode])
	assert.Equal(t, "3", dl.Headers[HeaderAttempts])
	assert.Contains(t, dl.Headers[HeaderErrorMessage], "engine busy")
	assert.True(t, f.logger.HasMessage("error", "Message processing failed"))
}

func TestProcessMessage_PermanentErrorSkipsRetries(t *testing.T) {
	f := newConsumerFixture(t, newTestConsumerConfig())
	attempts := 0
	handler := func(ctx context.Context, msg *Message) error {
		attempts++
		return apperrors.New(apperrors.ErrCodeDocumentEmpty, "document text is empty")
	}

	result := f.consumer.processMessage(context.Background(), &Message{Topic: "test-topic", Value: []byte("v")}, handler)
	assert.Equal(t, prom.MessageDeadLettered, result)
	assert.Equal(t, 1, attempts)
	require.Len(t, f.dlq.msgs, 1)
	assert.Equal(t, "1", f.dlq.msgs[0].Headers[HeaderAttempts])
}

func TestProcessMessage_NoDeadLetterTopicDrops(t *testing.T) {
	cfg := newTestConsumerConfig()
	cfg.RetryConfig.DeadLetterTopic = ""
	cfg.RetryConfig.MaxRetries = 0
	f := newConsumerFixture(t, cfg)

	result := f.consumer.processMessage(context.Background(), &Message{Topic: "test-topic"},
		func(ctx context.Context, msg *Message) error { return errors.New("fail") })
	assert.Equal(t, prom.MessageDropped, result)
	assert.Empty(t, f.dlq.msgs)
}

func TestProcessMessage_DeadLetterPublishFails(t *testing.T) {
	cfg := newTestConsumerConfig()
	cfg.RetryConfig.MaxRetries = 0
	f := newConsumerFixture(t, cfg)
	f.dlq.err = errors.New("broker down")

	result := f.consumer.processMessage(context.Background(), &Message{Topic: "test-topic", Value: []byte("v")},
		func(ctx context.Context, msg *Message) error { return errors.New("fail") })
	assert.Equal(t, prom.MessageDropped, result)
	assert.True(t, f.logger.HasMessage("error", "Failed to send to dead letter queue"))
}

func TestHandle_CanceledDuringBackoffIsNotCommitted(t *testing.T) {
	cfg := newTestConsumerConfig()
	cfg.RetryConfig.RetryBackoff = time.Hour
	cfg.RetryConfig.MaxRetryBackoff = time.Hour
	f := newConsumerFixture(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	f.consumer.Subscribe("test-topic", func(ctx context.Context, msg *Message) error {
		cancel()
		return errors.New("fail")
	})
	f.consumer.handle(ctx, kafka.Message{Topic: "test-topic", Value: []byte("v")})

	assert.Empty(t, f.reader.commits())
	assert.Empty(t, f.dlq.msgs)
}

func TestConsumerClose_Idempotent(t *testing.T) {
	f := newConsumerFixture(t, newTestConsumerConfig())
	require.NoError(t, f.consumer.Close())
	require.NoError(t, f.consumer.Close())
	assert.Equal(t, 1, f.reader.closes)
}

//Personal.AI order the ending

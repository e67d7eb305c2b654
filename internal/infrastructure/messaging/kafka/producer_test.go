package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ClinLink/internal/config"
	"github.com/turtacn/ClinLink/internal/testutil"
	apperrors "github.com/turtacn/ClinLink/pkg/errors"
	"github.com/turtacn/ClinLink/pkg/types/common"
)

type mockKafkaWriter struct {
	writeFunc func(ctx context.Context, msgs ...kafka.Message) error
	closeFunc func() error
	closes    int
}

func (m *mockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.writeFunc != nil {
		return m.writeFunc(ctx, msgs...)
	}
	return nil
}

func (m *mockKafkaWriter) Close() error {
	m.closes++
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

func newTestProducerConfig() ProducerConfig {
	return ProducerConfig{
		Brokers:         []string{"localhost:9092"},
		MaxMessageBytes: 1024,
	}
}

func newTestProducerMessage(topic, key, value string) *ProducerMessage {
	return &ProducerMessage{
		Topic: topic,
		Key:   []byte(key),
		Value: []byte(value),
	}
}

func newTestProducer(w WriterInterface) *Producer {
	return NewProducerWithWriter(w, newTestProducerConfig(), testutil.NewMockLogger())
}

func TestValidateProducerConfig(t *testing.T) {
	assert.NoError(t, ValidateProducerConfig(newTestProducerConfig()))

	cfg := newTestProducerConfig()
	cfg.Brokers = nil
	assert.True(t, apperrors.IsCode(ValidateProducerConfig(cfg), apperrors.ErrCodeValidation))

	cfg = newTestProducerConfig()
	cfg.MaxRetries = -1
	assert.Error(t, ValidateProducerConfig(cfg))
}

func TestNewProducer_InvalidConfig(t *testing.T) {
	_, err := NewProducer(ProducerConfig{}, nil)
	assert.Error(t, err)
}

func TestProducerConfigFrom(t *testing.T) {
	cfg := ProducerConfigFrom(config.KafkaConfig{Brokers: []string{"b:9092"}, MaxRetries: 5})
	assert.Equal(t, []string{"b:9092"}, cfg.Brokers)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, "all", cfg.Acks)
}

func TestNewProducerWithWriter_Defaults(t *testing.T) {
	p := NewProducerWithWriter(&mockKafkaWriter{}, ProducerConfig{Brokers: []string{"x"}}, nil)
	assert.Equal(t, 3, p.config.MaxRetries)
	assert.Equal(t, 100, p.config.BatchSize)
	assert.Equal(t, 1024*1024, p.config.MaxMessageBytes)
	assert.Equal(t, 10*time.Second, p.config.WriteTimeout)
}

func TestPublish_Success(t *testing.T) {
	var captured []kafka.Message
	w := &mockKafkaWriter{
		writeFunc: func(ctx context.Context, msgs ...kafka.Message) error {
			captured = msgs
			return nil
		},
	}
	p := newTestProducer(w)
	msg := newTestProducerMessage("test", "k", "v")
	msg.Headers = map[string]string{"h": "1"}

	require.NoError(t, p.Publish(context.Background(), msg))
	require.Len(t, captured, 1)
	assert.Equal(t, "test", captured[0].Topic)
	assert.Equal(t, "k", string(captured[0].Key))
	assert.Equal(t, "v", string(captured[0].Value))
	assert.Equal(t, []kafka.Header{{Key: "h", Value: []byte("1")}}, captured[0].Headers)
	assert.False(t, captured[0].Time.IsZero())

	sent, failed, bytes := p.Metrics()
	assert.Equal(t, int64(1), sent)
	assert.Equal(t, int64(0), failed)
	assert.Equal(t, int64(1), bytes)
}

func TestPublish_Failure(t *testing.T) {
	w := &mockKafkaWriter{
		writeFunc: func(ctx context.Context, msgs ...kafka.Message) error {
			return errors.New("write failed")
		},
	}
	p := newTestProducer(w)
	err := p.Publish(context.Background(), newTestProducerMessage("test", "k", "v"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeMessagePublish))

	_, failed, _ := p.Metrics()
	assert.Equal(t, int64(1), failed)
}

func TestPublish_Validation(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{
		writeFunc: func(ctx context.Context, msgs ...kafka.Message) error {
			t.Fatal("writer must not be called")
			return nil
		},
	})
	ctx := context.Background()

	tests := []struct {
		name string
		msg  *ProducerMessage
	}{
		{"no topic", newTestProducerMessage("", "k", "v")},
		{"no value", newTestProducerMessage("t", "k", "")},
		{"too large", &ProducerMessage{Topic: "t", Value: make([]byte, 2048)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Publish(ctx, tt.msg)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
		})
	}
}

func TestPublishEvent_WrapsEnvelope(t *testing.T) {
	var captured kafka.Message
	w := &mockKafkaWriter{
		writeFunc: func(ctx context.Context, msgs ...kafka.Message) error {
			captured = msgs[0]
			return nil
		},
	}
	p := newTestProducer(w)
	res := common.AnnotationResult{DocumentID: "doc-1"}

	require.NoError(t, p.PublishEvent(context.Background(), "out", "doc-1", EventDocumentAnnotated, NewDocumentAnnotated(res)))
	assert.Equal(t, "doc-1", string(captured.Key))

	var env EventEnvelope
	require.NoError(t, json.Unmarshal(captured.Value, &env))
	assert.Equal(t, EventDocumentAnnotated, env.EventType)
	assert.Equal(t, "clinlink", env.Source)

	var ev DocumentAnnotated
	require.NoError(t, env.DecodePayload(&ev))
	assert.Equal(t, common.ID("doc-1"), ev.Result.DocumentID)
}

func TestProducerClose(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newTestProducer(w)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, w.closes)

	err := p.Publish(context.Background(), newTestProducerMessage("t", "k", "v"))
	assert.ErrorIs(t, err, ErrProducerClosed)
}

//Personal.AI order the ending

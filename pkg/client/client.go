// Package client submits clinical documents to a running clinlink worker
// fleet.  Documents are published as document.submitted events on the
// worker's input topic; results arrive on the output topic.
package client

import (
	"context"
	"math/rand"
	"time"

	"github.com/turtacn/ClinLink/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ClinLink/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinLink/pkg/errors"
	"github.com/turtacn/ClinLink/pkg/types/common"
)

const Version = "0.1.0"

// EventPublisher publishes an enveloped event.  The kafka producer
// satisfies it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, key, eventType string, payload interface{}) error
}

// Client is the ClinLink submission client.
type Client struct {
	publisher    EventPublisher
	topic        string
	logger       logging.Logger
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	closer       func() error
}

// NewClient creates a client publishing to topic through p.
func NewClient(p EventPublisher, topic string, opts ...Option) (*Client, error) {
	if p == nil {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "publisher is required")
	}
	if topic == "" {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "topic is required")
	}

	c := &Client{
		publisher:    p,
		topic:        topic,
		logger:       logging.NewNopLogger(),
		retryMax:     3,
		retryWaitMin: 500 * time.Millisecond,
		retryWaitMax: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewKafkaClient creates a client backed by its own kafka producer.  Close
// releases the producer.
func NewKafkaClient(brokers []string, topic string, opts ...Option) (*Client, error) {
	c, err := NewClient(noopPublisher{}, topic, opts...)
	if err != nil {
		return nil, err
	}
	producer, err := kafka.NewProducer(kafka.ProducerConfig{Brokers: brokers}, c.logger)
	if err != nil {
		return nil, err
	}
	c.publisher = producer
	c.closer = producer.Close
	return c, nil
}

// Topic returns the topic documents are submitted to.
func (c *Client) Topic() string {
	return c.topic
}

// Submit publishes doc for annotation and returns its ID, assigning one
// when doc has none.
func (c *Client) Submit(ctx context.Context, doc common.Document) (common.ID, error) {
	if err := doc.Validate(); err != nil {
		return "", err
	}
	if doc.ID == "" {
		doc.ID = common.NewID()
	}
	if time.Time(doc.SubmittedAt).IsZero() {
		doc.SubmittedAt = common.NewTimestamp()
	}

	ev := kafka.NewDocumentSubmitted(doc)
	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if attempt > 0 {
			backoff := c.calculateBackoff(attempt)
			c.logger.Debug("retrying submit",
				logging.DocumentID(string(doc.ID)),
				logging.Int("attempt", attempt),
				logging.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		err := c.publisher.PublishEvent(ctx, c.topic, string(doc.ID), kafka.EventDocumentSubmitted, ev)
		if err == nil {
			c.logger.Debug("document submitted", logging.DocumentID(string(doc.ID)), logging.String("topic", c.topic))
			return doc.ID, nil
		}
		lastErr = err
		if !shouldRetry(ctx, err) {
			break
		}
	}
	c.logger.Error("submit failed", logging.DocumentID(string(doc.ID)), logging.Err(lastErr))
	return "", lastErr
}

// SubmitBatch submits docs in order.  It stops at the first failure and
// returns the IDs submitted before it.
func (c *Client) SubmitBatch(ctx context.Context, docs []common.Document) ([]common.ID, error) {
	ids := make([]common.ID, 0, len(docs))
	for i := range docs {
		id, err := c.Submit(ctx, docs[i])
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Close releases the producer created by NewKafkaClient.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	switch errors.GetCode(err) {
	case errors.ErrCodeValidation, errors.ErrCodeSerialization, errors.ErrCodeDocumentEmpty:
		return false
	}
	return err != kafka.ErrProducerClosed
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	// Exponential backoff with jitter
	backoff := c.retryWaitMin * time.Duration(1<<uint(attempt-1))
	if backoff > c.retryWaitMax {
		backoff = c.retryWaitMax
	}
	if backoff < 4 {
		return backoff
	}
	// Add jitter (0-25% of backoff)
	return backoff + time.Duration(rand.Int63n(int64(backoff/4)))
}

type noopPublisher struct{}

func (noopPublisher) PublishEvent(context.Context, string, string, string, interface{}) error {
	return nil
}

//Personal.AI order the ending

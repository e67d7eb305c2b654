package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/ClinLink/pkg/errors"
	"github.com/turtacn/ClinLink/pkg/types/common"
)

// Event types carried in EventEnvelope.EventType.
const (
	EventDocumentSubmitted = "document.submitted"
	EventDocumentAnnotated = "document.annotated"
	EventDocumentFailed    = "document.failed"
)

// SchemaVersion is stamped on every envelope produced here.
const SchemaVersion = "v1"

// Header keys set on dead-lettered messages.
const (
	HeaderOriginalTopic = "original_topic"
	HeaderErrorMessage  = "error_message"
	HeaderErrorCode     = "error_code"
	HeaderAttempts      = "attempts"
)

// Message is a consumed Kafka record.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// ProducerMessage is a record to publish.
type ProducerMessage struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// MessageHandler processes one message.  A returned error triggers retries.
type MessageHandler func(ctx context.Context, msg *Message) error

// TopicConfig describes a topic to create.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	RetentionMs       int64
	CleanupPolicy     string
	Configs           map[string]string
}

// EventEnvelope standardizes event messages.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	TraceID       string            `json:"trace_id,omitempty"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// DocumentSubmitted asks the worker to annotate a document.
type DocumentSubmitted struct {
	common.BaseEvent
	Document common.Document `json:"document"`
}

// DocumentAnnotated carries the result for a submitted document.
type DocumentAnnotated struct {
	common.BaseEvent
	Result common.AnnotationResult `json:"result"`
}

// DocumentFailed reports a submitted document that cannot be annotated.
type DocumentFailed struct {
	common.BaseEvent
	DocumentID common.ID          `json:"document_id"`
	Error      common.ErrorDetail `json:"error"`
}

// NewDocumentSubmitted wraps doc in an event keyed by its ID.
func NewDocumentSubmitted(doc common.Document) DocumentSubmitted {
	return DocumentSubmitted{BaseEvent: common.NewBaseEvent(string(doc.ID)), Document: doc}
}

// NewDocumentAnnotated wraps res in an event keyed by its document ID.
func NewDocumentAnnotated(res common.AnnotationResult) DocumentAnnotated {
	return DocumentAnnotated{BaseEvent: common.NewBaseEvent(string(res.DocumentID)), Result: res}
}

// NewDocumentFailed records err against document id.
func NewDocumentFailed(id common.ID, err error) DocumentFailed {
	return DocumentFailed{BaseEvent: common.NewBaseEvent(string(id)), DocumentID: id, Error: common.NewErrorDetail(err)}
}

func NewEventEnvelope(eventType string, source string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the payload into target.  An absent payload is
// a validation error.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.New(errors.ErrCodeValidation, "event payload is empty")
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal payload")
	}
	return nil
}

// ToMessage encodes the envelope for topic, keyed by key.
func (e *EventEnvelope) ToMessage(topic string, key string) (*ProducerMessage, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	headers := map[string]string{
		"event_type":     e.EventType,
		"source_service": e.Source,
		"schema_version": e.SchemaVersion,
	}
	if e.TraceID != "" {
		headers["trace_id"] = e.TraceID
	}
	msg := &ProducerMessage{
		Topic:     topic,
		Value:     val,
		Headers:   headers,
		Timestamp: e.Timestamp,
	}
	if key != "" {
		msg.Key = []byte(key)
	}
	return msg, nil
}

func MessageToEventEnvelope(msg *Message) (*EventEnvelope, error) {
	if len(msg.Value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal envelope")
	}
	return &env, nil
}

// DecodeDocumentSubmitted extracts the submitted document from msg.
func DecodeDocumentSubmitted(msg *Message) (*DocumentSubmitted, error) {
	env, err := MessageToEventEnvelope(msg)
	if err != nil {
		return nil, err
	}
	if env.EventType != EventDocumentSubmitted {
		return nil, errors.Newf(errors.ErrCodeValidation, "unexpected event type %q", env.EventType)
	}
	var ev DocumentSubmitted
	if err := env.DecodePayload(&ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// IsPermanent reports whether err will fail again on retry.  Malformed
// messages and empty documents are not retried.
func IsPermanent(err error) bool {
	return errors.IsCode(err, errors.ErrCodeValidation) ||
		errors.IsCode(err, errors.ErrCodeSerialization) ||
		errors.IsCode(err, errors.ErrCodeDocumentEmpty)
}

//Personal.AI order the ending

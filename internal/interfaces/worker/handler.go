// Package worker connects the Kafka consumer to the annotation service and
// keeps the engine current as the configuration changes.
package worker

import (
	"context"

	"github.com/turtacn/ClinLink/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ClinLink/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinLink/pkg/errors"
	"github.com/turtacn/ClinLink/pkg/types/common"
)

// Annotator annotates one document.  *annotation.Service satisfies it.
type Annotator interface {
	Annotate(ctx context.Context, doc *common.Document) (*common.AnnotationResult, error)
}

// EventPublisher publishes enveloped events.  *kafka.Producer satisfies it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, key, eventType string, payload interface{}) error
}

// DocumentHandler consumes document.submitted events and publishes
// document.annotated results.
type DocumentHandler struct {
	annotator   Annotator
	publisher   EventPublisher
	outputTopic string
	logger      logging.Logger
}

// NewDocumentHandler creates a DocumentHandler publishing to outputTopic.
func NewDocumentHandler(a Annotator, p EventPublisher, outputTopic string, logger logging.Logger) *DocumentHandler {
	return &DocumentHandler{
		annotator:   a,
		publisher:   p,
		outputTopic: outputTopic,
		logger:      logging.OrNop(logger).Named("worker.handler"),
	}
}

// Handle implements kafka.MessageHandler.
//
// Malformed messages return a permanent error and go straight to the dead
// letter topic.  A document with no text is answered with document.failed and
// acknowledged.  Any other failure is returned for retry.
func (h *DocumentHandler) Handle(ctx context.Context, msg *kafka.Message) error {
	ev, err := kafka.DecodeDocumentSubmitted(msg)
	if err != nil {
		h.logger.Warn("undecodable message",
			logging.String("topic", msg.Topic),
			logging.Int64("offset", msg.Offset),
			logging.Err(err))
		return err
	}

	doc := ev.Document
	if doc.ID == "" && len(msg.Key) > 0 {
		doc.ID = common.ID(msg.Key)
	}
	logger := h.logger.With(logging.DocumentID(string(doc.ID)))

	res, err := h.annotator.Annotate(ctx, &doc)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeDocumentEmpty) {
			logger.Warn("document rejected", logging.Err(err))
			return h.publish(ctx, string(doc.ID), kafka.EventDocumentFailed, kafka.NewDocumentFailed(doc.ID, err))
		}
		return err
	}

	if err := h.publish(ctx, string(res.DocumentID), kafka.EventDocumentAnnotated, kafka.NewDocumentAnnotated(*res)); err != nil {
		return err
	}
	logger.Debug("document annotated",
		logging.Int("entities", len(res.Entities)),
		logging.Bool("cached", res.Cached),
		logging.Float64("duration_ms", res.DurationMillis))
	return nil
}

func (h *DocumentHandler) publish(ctx context.Context, key, eventType string, payload interface{}) error {
	if err := h.publisher.PublishEvent(ctx, h.outputTopic, key, eventType, payload); err != nil {
		return errors.Wrap(err, errors.ErrCodeMessagePublish, "failed to publish result").WithDetail(eventType)
	}
	return nil
}

//Personal.AI order the ending

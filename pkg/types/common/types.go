// Package common holds the data transfer objects exchanged by the CLI, the
// result cache and the Kafka worker.
package common

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/ClinLink/pkg/errors"
)

// ID is a string alias for UUID v4.
type ID string

// Metadata is an open-ended key-value bag carried with a document.
type Metadata map[string]interface{}

// NewID generates a new UUID v4.
func NewID() ID {
	return ID(uuid.New().String())
}

// Validate checks if the ID is a valid UUID.
func (id ID) Validate() error {
	if id == "" {
		return errors.InvalidParam("ID cannot be empty")
	}
	if _, err := uuid.Parse(string(id)); err != nil {
		return errors.Wrap(err, errors.CodeInvalidParam, "invalid ID format")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Timestamp
// ─────────────────────────────────────────────────────────────────────────────

// Timestamp is a time.Time alias with RFC 3339 JSON serialization.
type Timestamp time.Time

// NewTimestamp returns the current UTC time as a Timestamp.
func NewTimestamp() Timestamp {
	return Timestamp(time.Now().UTC())
}

// ToUnixMilli returns the timestamp in milliseconds since Unix epoch.
func (t Timestamp) ToUnixMilli() int64 {
	return time.Time(t).UnixMilli()
}

// FromUnixMilli converts milliseconds since Unix epoch to a Timestamp.
func FromUnixMilli(msec int64) Timestamp {
	return Timestamp(time.UnixMilli(msec).UTC())
}

// MarshalJSON implements json.Marshaler, using ISO 8601 format.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).Format(time.RFC3339Nano))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return err
		}
	}
	*t = Timestamp(parsed.UTC())
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Documents and annotations
// ─────────────────────────────────────────────────────────────────────────────

// Document is a unit of clinical free text submitted for annotation.
type Document struct {
	ID          ID        `json:"id"`
	Text        string    `json:"text"`
	Metadata    Metadata  `json:"metadata,omitempty"`
	SubmittedAt Timestamp `json:"submitted_at"`
}

// Validate rejects documents without text.  A missing ID is not an error;
// the service assigns one.
func (d *Document) Validate() error {
	if d == nil || strings.TrimSpace(d.Text) == "" {
		return errors.New(errors.ErrCodeDocumentEmpty, "document text is empty")
	}
	return nil
}

// Entity is one linked concept mention.  Start and End are byte offsets
// into the NFC-normalised document text.
type Entity struct {
	CUI           string   `json:"cui"`
	Name          string   `json:"name"`
	PreferredName string   `json:"preferred_name,omitempty"`
	TypeIDs       []string `json:"type_ids,omitempty"`
	Text          string   `json:"text"`
	Start         int      `json:"start"`
	End           int      `json:"end"`
	TokenStart    int      `json:"token_start"`
	TokenEnd      int      `json:"token_end"`
	Similarity    float64  `json:"similarity"`
	Outcome       string   `json:"outcome"`
}

// AnnotationResult is the outcome of annotating one document.
type AnnotationResult struct {
	DocumentID        ID        `json:"document_id"`
	Entities          []Entity  `json:"entities"`
	TokenCount        int       `json:"token_count"`
	SpanCount         int       `json:"span_count"`
	Corrections       int       `json:"corrections"`
	EngineFingerprint string    `json:"engine_fingerprint"`
	Cached            bool      `json:"cached"`
	DurationMillis    float64   `json:"duration_ms"`
	AnnotatedAt       Timestamp `json:"annotated_at"`
}

// CUIs returns the concept identifiers of the result's entities in order.
func (r *AnnotationResult) CUIs() []string {
	out := make([]string, len(r.Entities))
	for i, e := range r.Entities {
		out[i] = e.CUI
	}
	return out
}

// ErrorDetail provides structured error information for failed documents.
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewErrorDetail converts err into an ErrorDetail, keeping its AppError code.
func NewErrorDetail(err error) ErrorDetail {
	if err == nil {
		return ErrorDetail{Code: string(errors.CodeOK)}
	}
	return ErrorDetail{Code: string(errors.GetCode(err)), Message: err.Error()}
}

// ─────────────────────────────────────────────────────────────────────────────
// Health
// ─────────────────────────────────────────────────────────────────────────────

// HealthStatus indicates the health of a component or service.
type HealthStatus string

const (
	HealthUp       HealthStatus = "up"
	HealthDown     HealthStatus = "down"
	HealthDegraded HealthStatus = "degraded"
)

// ComponentHealth provides health information for a specific component.
type ComponentHealth struct {
	Name    string        `json:"name"`
	Status  HealthStatus  `json:"status"`
	Latency time.Duration `json:"latency"`
	Message string        `json:"message,omitempty"`
}

// HealthReport aggregates component health.  The overall status is the worst
// component status.
type HealthReport struct {
	Status     HealthStatus      `json:"status"`
	Components []ComponentHealth `json:"components"`
	CheckedAt  Timestamp         `json:"checked_at"`
}

// NewHealthReport derives the overall status from components.
func NewHealthReport(components ...ComponentHealth) HealthReport {
	status := HealthUp
	for _, c := range components {
		switch c.Status {
		case HealthDown:
			status = HealthDown
		case HealthDegraded:
			if status == HealthUp {
				status = HealthDegraded
			}
		}
	}
	return HealthReport{Status: status, Components: components, CheckedAt: NewTimestamp()}
}

// ─────────────────────────────────────────────────────────────────────────────
// Events
// ─────────────────────────────────────────────────────────────────────────────

// DomainEvent represents a significant event in the annotation flow.
type DomainEvent interface {
	EventID() string
	OccurredAt() time.Time
	AggregateID() string
}

// BaseEvent provides common fields for events.
type BaseEvent struct {
	ID        string    `json:"event_id"`
	Timestamp time.Time `json:"occurred_at"`
	AggID     string    `json:"aggregate_id"`
}

func NewBaseEvent(aggID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		AggID:     aggID,
	}
}

func (e BaseEvent) EventID() string {
	return e.ID
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

func (e BaseEvent) AggregateID() string {
	return e.AggID
}

//Personal.AI order the ending

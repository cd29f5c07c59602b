package events

import (
	"time"

	"github.com/spec-kit/evaluation-service/internal/assignment"
	"github.com/spec-kit/evaluation-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventCyclePublished   EventType = "cycle_published"
	EventCycleRepublished EventType = "cycle_republished"
	EventCycleClosed      EventType = "cycle_closed"
)

// Event represents a domain event emitted by services after their transaction committed.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	CycleID   string      `json:"cycle_id"`
	ActorID   *string     `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// CyclePublishedPayload is carried by cycle_published and cycle_republished.
type CyclePublishedPayload struct {
	Action             domain.PublicationAction `json:"action"`
	PublishedAt        *time.Time               `json:"published_at,omitempty"`
	EvaluationsCreated int                      `json:"evaluations_created"`
	EvaluationsRemoved int                      `json:"evaluations_removed"`
	Triples            []assignment.Triple      `json:"triples"`
}

// CycleClosedPayload payload.
type CycleClosedPayload struct {
	OldStatus domain.CycleStatus `json:"old_status"`
	NewStatus domain.CycleStatus `json:"new_status"`
}

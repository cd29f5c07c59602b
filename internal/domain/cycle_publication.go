package domain

import "time"

// PublicationAction distinguishes first publication from a full replacement.
type PublicationAction string

const (
	PublicationActionPublish   PublicationAction = "PUBLISH"
	PublicationActionRepublish PublicationAction = "REPUBLISH"
)

// CyclePublication is an immutable history entry written with every (re)publication.
type CyclePublication struct {
	ID                 string
	CycleID            string
	Action             PublicationAction
	EvaluationsCreated int
	EvaluationsRemoved int
	ActorID            *string
	CreatedAt          time.Time
}

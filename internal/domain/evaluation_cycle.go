package domain

import (
	"fmt"
	"strings"
	"time"
)

// CycleStatus enumerates lifecycle states for evaluation cycles.
type CycleStatus string

const (
	CycleStatusDraft     CycleStatus = "DRAFT"
	CycleStatusPublished CycleStatus = "PUBLISHED"
	CycleStatusClosed    CycleStatus = "CLOSED"
)

// EvaluationType selects the rule used to find evaluators.
type EvaluationType string

const (
	EvaluationTypeSelf        EvaluationType = "SELF"
	EvaluationTypeManager     EvaluationType = "MANAGER"
	EvaluationTypeSubordinate EvaluationType = "SUBORDINATE"
	EvaluationTypePeer        EvaluationType = "PEER"
)

// EvaluationTypes lists every supported type in canonical order.
var EvaluationTypes = []EvaluationType{
	EvaluationTypeSelf,
	EvaluationTypeManager,
	EvaluationTypeSubordinate,
	EvaluationTypePeer,
}

// Valid reports whether t is a known evaluation type.
func (t EvaluationType) Valid() bool {
	switch t {
	case EvaluationTypeSelf, EvaluationTypeManager, EvaluationTypeSubordinate, EvaluationTypePeer:
		return true
	}
	return false
}

// ParseEvaluationType normalizes user input into an EvaluationType.
func ParseEvaluationType(raw string) (EvaluationType, error) {
	t := EvaluationType(strings.ToUpper(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEvaluationType, raw)
	}
	return t, nil
}

// EvaluationCycle is a time-boxed evaluation campaign.
type EvaluationCycle struct {
	ID                 string
	Title              string
	TemplateID         string
	Status             CycleStatus
	EvaluationTypes    []EvaluationType
	StartDate          time.Time
	EndDate            time.Time
	SubmissionDeadline *time.Time
	PublishedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasType reports whether the cycle is configured with t.
func (c *EvaluationCycle) HasType(t EvaluationType) bool {
	for _, existing := range c.EvaluationTypes {
		if existing == t {
			return true
		}
	}
	return false
}

package domain

import "errors"

var (
	ErrCycleNotFound         = errors.New("evaluation cycle not found")
	ErrInvalidCycleState     = errors.New("invalid cycle state")
	ErrMalformedHierarchy    = errors.New("malformed hierarchy")
	ErrReconciliationFailure = errors.New("reconciliation failure")
	ErrEmptyEvaluationTypes  = errors.New("empty evaluation types")
	ErrUnknownEvaluationType = errors.New("unknown evaluation type")
)

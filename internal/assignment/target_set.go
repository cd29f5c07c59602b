package assignment

import (
	"sort"

	"github.com/spec-kit/evaluation-service/internal/domain"
)

// Triple is one assignment: EvaluatorID evaluates EmployeeID under EvaluationType.
type Triple struct {
	EmployeeID     string                `json:"employeeId"`
	EvaluatorID    string                `json:"evaluatorId"`
	EvaluationType domain.EvaluationType `json:"evaluationType"`
}

// TargetSet is the desired set of assignments for a cycle.
type TargetSet struct {
	items map[Triple]struct{}
}

// NewTargetSet returns a set holding triples.
func NewTargetSet(triples ...Triple) TargetSet {
	ts := TargetSet{items: make(map[Triple]struct{}, len(triples))}
	for _, t := range triples {
		ts.add(t)
	}
	return ts
}

func (ts *TargetSet) add(t Triple) {
	if ts.items == nil {
		ts.items = make(map[Triple]struct{})
	}
	ts.items[t] = struct{}{}
}

// Len returns the number of distinct triples.
func (ts TargetSet) Len() int {
	return len(ts.items)
}

// Contains reports whether t is in the set.
func (ts TargetSet) Contains(t Triple) bool {
	_, ok := ts.items[t]
	return ok
}

// Equal reports set equality.
func (ts TargetSet) Equal(other TargetSet) bool {
	if ts.Len() != other.Len() {
		return false
	}
	for t := range ts.items {
		if !other.Contains(t) {
			return false
		}
	}
	return true
}

// Sorted returns the triples ordered by employee, evaluation type and evaluator.
func (ts TargetSet) Sorted() []Triple {
	out := make([]Triple, 0, len(ts.items))
	for t := range ts.items {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.EmployeeID != b.EmployeeID {
			return a.EmployeeID < b.EmployeeID
		}
		if a.EvaluationType != b.EvaluationType {
			return a.EvaluationType < b.EvaluationType
		}
		return a.EvaluatorID < b.EvaluatorID
	})
	return out
}

// CountByType returns how many triples each evaluation type contributes.
func (ts TargetSet) CountByType() map[domain.EvaluationType]int {
	counts := make(map[domain.EvaluationType]int)
	for t := range ts.items {
		counts[t.EvaluationType]++
	}
	return counts
}

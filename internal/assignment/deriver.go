// Package assignment derives who evaluates whom in an evaluation cycle from an org chart
// snapshot.
package assignment

import (
	"errors"
	"fmt"

	"github.com/spec-kit/evaluation-service/internal/domain"
	"github.com/spec-kit/evaluation-service/internal/orgchart"
)

// Deriver computes target assignment sets. It holds no state besides its policy.
type Deriver struct {
	policy Policy
}

// NewDeriver builds a Deriver with the given rule policy.
func NewDeriver(policy Policy) *Deriver {
	return &Deriver{policy: policy}
}

// Derive runs every configured evaluation type's rule for each employee of the population.
// A nil population means every employee bound to a position in the snapshot. Employees of
// the population that are not bound are skipped.
func (d *Deriver) Derive(cycle *domain.EvaluationCycle, snapshot *orgchart.Snapshot, population []string) (TargetSet, error) {
	if cycle == nil {
		return TargetSet{}, errors.New("assignment: nil cycle")
	}
	if len(cycle.EvaluationTypes) == 0 {
		return TargetSet{}, fmt.Errorf("%w: cycle %s", domain.ErrEmptyEvaluationTypes, cycle.ID)
	}
	if snapshot == nil {
		return TargetSet{}, fmt.Errorf("%w: no snapshot", domain.ErrMalformedHierarchy)
	}

	selected := make([]Rule, 0, len(cycle.EvaluationTypes))
	types := make([]domain.EvaluationType, 0, len(cycle.EvaluationTypes))
	seen := make(map[domain.EvaluationType]struct{}, len(cycle.EvaluationTypes))
	for _, t := range cycle.EvaluationTypes {
		if _, dup := seen[t]; dup {
			continue
		}
		rule, ok := RuleFor(t)
		if !ok {
			return TargetSet{}, fmt.Errorf("%w: %q", domain.ErrUnknownEvaluationType, t)
		}
		seen[t] = struct{}{}
		selected = append(selected, rule)
		types = append(types, t)
	}

	if population == nil {
		population = snapshot.Employees()
	}

	out := NewTargetSet()
	for _, employeeID := range population {
		if !snapshot.IsBound(employeeID) {
			continue
		}
		for i, rule := range selected {
			for _, evaluatorID := range rule(employeeID, snapshot, d.policy) {
				if !snapshot.IsBound(evaluatorID) {
					continue
				}
				t := types[i]
				if evaluatorID == employeeID && t != domain.EvaluationTypeSelf {
					continue
				}
				out.add(Triple{EmployeeID: employeeID, EvaluatorID: evaluatorID, EvaluationType: t})
			}
		}
	}
	return out, nil
}

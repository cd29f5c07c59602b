package assignment

import (
	"github.com/spec-kit/evaluation-service/internal/domain"
	"github.com/spec-kit/evaluation-service/internal/orgchart"
)

// Policy carries the rule options that product has not settled on yet.
type Policy struct {
	// AggregatePeersIncludeSiblings makes holders of an aggregate position peers of the
	// holders of its sibling positions, in addition to their co-holders.
	AggregatePeersIncludeSiblings bool
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{AggregatePeersIncludeSiblings: true}
}

// Rule maps an employee to the evaluators a single evaluation type asks for.
// Rules are pure and must never return the same evaluator twice.
type Rule func(employeeID string, s *orgchart.Snapshot, p Policy) []string

var rules = map[domain.EvaluationType]Rule{
	domain.EvaluationTypeSelf:        selfRule,
	domain.EvaluationTypeManager:     managerRule,
	domain.EvaluationTypeSubordinate: subordinateRule,
	domain.EvaluationTypePeer:        peerRule,
}

// RuleFor returns the rule registered for t.
func RuleFor(t domain.EvaluationType) (Rule, bool) {
	r, ok := rules[t]
	return r, ok
}

func selfRule(employeeID string, s *orgchart.Snapshot, _ Policy) []string {
	if !s.IsBound(employeeID) {
		return nil
	}
	return []string{employeeID}
}

// managerRule picks the single holder of the parent position. Roots, unbound parents and
// aggregate parents produce no manager.
func managerRule(employeeID string, s *orgchart.Snapshot, _ Policy) []string {
	own, ok := s.PositionOf(employeeID)
	if !ok {
		return nil
	}
	parent, ok := s.Parent(own.ID)
	if !ok || parent.IsAggregate {
		return nil
	}
	holders := s.Holders(parent.ID)
	if len(holders) != 1 || holders[0] == employeeID {
		return nil
	}
	return []string{holders[0]}
}

// subordinateRule collects holders of direct child positions only.
func subordinateRule(employeeID string, s *orgchart.Snapshot, _ Policy) []string {
	own, ok := s.PositionOf(employeeID)
	if !ok {
		return nil
	}
	var out []string
	for _, childID := range s.Children(own.ID) {
		for _, holder := range s.Holders(childID) {
			if holder != employeeID {
				out = append(out, holder)
			}
		}
	}
	return out
}

// peerRule collects co-holders of the employee's own position and holders of sibling
// positions under the same parent.
func peerRule(employeeID string, s *orgchart.Snapshot, p Policy) []string {
	own, ok := s.PositionOf(employeeID)
	if !ok {
		return nil
	}
	var out []string
	for _, holder := range s.Holders(own.ID) {
		if holder != employeeID {
			out = append(out, holder)
		}
	}
	if own.IsAggregate && !p.AggregatePeersIncludeSiblings {
		return out
	}
	parent, ok := s.Parent(own.ID)
	if !ok {
		return out
	}
	for _, siblingID := range s.Children(parent.ID) {
		if siblingID == own.ID {
			continue
		}
		out = append(out, s.Holders(siblingID)...)
	}
	return out
}

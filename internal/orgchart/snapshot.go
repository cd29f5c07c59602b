// Package orgchart holds an immutable, id-indexed view of the position tree and of the
// employees bound to each position at the moment it was read.
package orgchart

import (
	"fmt"
	"sort"

	"github.com/spec-kit/evaluation-service/internal/domain"
)

// Source is the raw hierarchy read from the org module.
type Source struct {
	Positions []domain.Position `json:"positions"`
	// Bindings maps a position id to the employees currently holding it.
	Bindings map[string][]string `json:"employeeBindings"`
}

// Snapshot is an arena of positions indexed by id. Parent and child relations are derived
// from parent ids when the snapshot is built; nothing points back into live data.
type Snapshot struct {
	positions  map[string]domain.Position
	children   map[string][]string
	holders    map[string][]string
	positionOf map[string]string
	employees  []string
}

// NewSnapshot validates src and builds a Snapshot from it.
func NewSnapshot(src Source) (*Snapshot, error) {
	s := &Snapshot{
		positions:  make(map[string]domain.Position, len(src.Positions)),
		children:   make(map[string][]string),
		holders:    make(map[string][]string),
		positionOf: make(map[string]string),
	}

	for _, p := range src.Positions {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: position without id", domain.ErrMalformedHierarchy)
		}
		if _, dup := s.positions[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate position %s", domain.ErrMalformedHierarchy, p.ID)
		}
		s.positions[p.ID] = p
	}

	for id, p := range s.positions {
		if p.IsRoot() {
			continue
		}
		parentID := *p.ParentPositionID
		if _, ok := s.positions[parentID]; !ok {
			return nil, fmt.Errorf("%w: position %s references unknown parent %s", domain.ErrMalformedHierarchy, id, parentID)
		}
		s.children[parentID] = append(s.children[parentID], id)
	}
	for id := range s.children {
		sort.Strings(s.children[id])
	}

	if err := s.checkAcyclic(); err != nil {
		return nil, err
	}

	for positionID, employeeIDs := range src.Bindings {
		// bindings to positions outside the tree leave their employees orphaned
		if _, ok := s.positions[positionID]; !ok {
			continue
		}
		for _, employeeID := range employeeIDs {
			if employeeID == "" {
				continue
			}
			if bound, ok := s.positionOf[employeeID]; ok {
				if bound == positionID {
					continue
				}
				return nil, fmt.Errorf("%w: employee %s bound to positions %s and %s",
					domain.ErrMalformedHierarchy, employeeID, bound, positionID)
			}
			s.positionOf[employeeID] = positionID
			s.holders[positionID] = append(s.holders[positionID], employeeID)
		}
	}
	var shared []string
	for id, holders := range s.holders {
		sort.Strings(holders)
		if len(holders) > 1 && !s.positions[id].IsAggregate {
			shared = append(shared, id)
		}
	}
	if len(shared) > 0 {
		sort.Strings(shared)
		return nil, fmt.Errorf("%w: non-aggregate position %s held by %d employees",
			domain.ErrMalformedHierarchy, shared[0], len(s.holders[shared[0]]))
	}

	s.employees = make([]string, 0, len(s.positionOf))
	for employeeID := range s.positionOf {
		s.employees = append(s.employees, employeeID)
	}
	sort.Strings(s.employees)
	return s, nil
}

// checkAcyclic walks every parent chain once, coloring visited positions.
func (s *Snapshot) checkAcyclic() error {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(s.positions))

	for start := range s.positions {
		if state[start] == done {
			continue
		}
		var path []string
		cur := start
		for {
			switch state[cur] {
			case inProgress:
				return fmt.Errorf("%w: parent chain cycle through position %s", domain.ErrMalformedHierarchy, cur)
			case done:
			default:
				state[cur] = inProgress
				path = append(path, cur)
				p := s.positions[cur]
				if !p.IsRoot() {
					cur = *p.ParentPositionID
					continue
				}
			}
			break
		}
		for _, id := range path {
			state[id] = done
		}
	}
	return nil
}

// Position returns the position with id.
func (s *Snapshot) Position(id string) (domain.Position, bool) {
	p, ok := s.positions[id]
	return p, ok
}

// Parent returns the parent of position id; false for roots and unknown ids.
func (s *Snapshot) Parent(id string) (domain.Position, bool) {
	p, ok := s.positions[id]
	if !ok || p.IsRoot() {
		return domain.Position{}, false
	}
	return s.Position(*p.ParentPositionID)
}

// Children returns ids of the direct child positions of id, sorted.
func (s *Snapshot) Children(id string) []string {
	return s.children[id]
}

// Holders returns the employees bound to position id, sorted.
func (s *Snapshot) Holders(id string) []string {
	return s.holders[id]
}

// PositionOf returns the position an employee is bound to.
func (s *Snapshot) PositionOf(employeeID string) (domain.Position, bool) {
	positionID, ok := s.positionOf[employeeID]
	if !ok {
		return domain.Position{}, false
	}
	return s.Position(positionID)
}

// IsBound reports whether the employee holds a position in this snapshot.
func (s *Snapshot) IsBound(employeeID string) bool {
	_, ok := s.positionOf[employeeID]
	return ok
}

// Employees returns every bound employee, sorted.
func (s *Snapshot) Employees() []string {
	return s.employees
}

// PositionCount returns the number of positions in the snapshot.
func (s *Snapshot) PositionCount() int {
	return len(s.positions)
}

package orgchart

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/evaluation-service/internal/domain"
)

func pos(id string, parent string, aggregate bool) domain.Position {
	p := domain.Position{ID: id, Title: id, IsAggregate: aggregate}
	if parent != "" {
		p.ParentPositionID = &parent
	}
	return p
}

func TestNewSnapshot_BuildsLookups(t *testing.T) {
	snap, err := NewSnapshot(Source{
		Positions: []domain.Position{
			pos("ceo", "", false),
			pos("cto", "ceo", false),
			pos("cfo", "ceo", false),
			pos("eng", "cto", true),
		},
		Bindings: map[string][]string{
			"ceo": {"alice"},
			"cto": {"bob"},
			"eng": {"erin", "dan"},
		},
	})
	require.NoError(t, err)

	require.Equal(t, []string{"cfo", "cto"}, snap.Children("ceo"))
	require.Equal(t, []string{"dan", "erin"}, snap.Holders("eng"))
	require.Empty(t, snap.Holders("cfo"))
	require.Equal(t, []string{"alice", "bob", "dan", "erin"}, snap.Employees())

	parent, ok := snap.Parent("eng")
	require.True(t, ok)
	require.Equal(t, "cto", parent.ID)

	_, ok = snap.Parent("ceo")
	require.False(t, ok)

	p, ok := snap.PositionOf("dan")
	require.True(t, ok)
	require.Equal(t, "eng", p.ID)
	require.Equal(t, 4, snap.PositionCount())
}

func TestNewSnapshot_OrphanBindingsAreDropped(t *testing.T) {
	snap, err := NewSnapshot(Source{
		Positions: []domain.Position{pos("root", "", false)},
		Bindings: map[string][]string{
			"root":    {"alice"},
			"deleted": {"ghost"},
		},
	})
	require.NoError(t, err)
	require.False(t, snap.IsBound("ghost"))
	require.Equal(t, []string{"alice"}, snap.Employees())
}

func TestNewSnapshot_RejectsParentCycle(t *testing.T) {
	_, err := NewSnapshot(Source{
		Positions: []domain.Position{
			pos("root", "", false),
			pos("a", "c", false),
			pos("b", "a", false),
			pos("c", "b", false),
		},
	})
	require.ErrorIs(t, err, domain.ErrMalformedHierarchy)
}

func TestNewSnapshot_RejectsSelfParent(t *testing.T) {
	_, err := NewSnapshot(Source{Positions: []domain.Position{pos("a", "a", false)}})
	require.ErrorIs(t, err, domain.ErrMalformedHierarchy)
}

func TestNewSnapshot_RejectsUnknownParent(t *testing.T) {
	_, err := NewSnapshot(Source{Positions: []domain.Position{pos("a", "missing", false)}})
	require.ErrorIs(t, err, domain.ErrMalformedHierarchy)
}

func TestNewSnapshot_RejectsEmployeeBoundTwice(t *testing.T) {
	_, err := NewSnapshot(Source{
		Positions: []domain.Position{pos("a", "", false), pos("b", "a", false)},
		Bindings: map[string][]string{
			"a": {"alice"},
			"b": {"alice"},
		},
	})
	require.ErrorIs(t, err, domain.ErrMalformedHierarchy)
}

func TestNewSnapshot_RejectsSharedSingularPosition(t *testing.T) {
	_, err := NewSnapshot(Source{
		Positions: []domain.Position{pos("lead", "", false), pos("team", "lead", true)},
		Bindings: map[string][]string{
			"lead": {"bob", "alice"},
			"team": {"carol", "dan"},
		},
	})
	require.ErrorIs(t, err, domain.ErrMalformedHierarchy)
	require.Contains(t, err.Error(), "non-aggregate position lead held by 2 employees")
}

func TestNewSnapshot_DuplicateBindingOnSamePositionCollapses(t *testing.T) {
	snap, err := NewSnapshot(Source{
		Positions: []domain.Position{pos("a", "", true)},
		Bindings:  map[string][]string{"a": {"alice", "alice", ""}},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, snap.Holders("a"))
}

func TestNewSnapshot_LongChainIsAcyclic(t *testing.T) {
	positions := []domain.Position{pos("p0", "", false)}
	prev := "p0"
	for i := 1; i < 500; i++ {
		id := fmt.Sprintf("p%d", i)
		positions = append(positions, pos(id, prev, false))
		prev = id
	}
	snap, err := NewSnapshot(Source{Positions: positions})
	require.NoError(t, err)
	require.Equal(t, len(positions), snap.PositionCount())
}

package depgraph

import (
	"testing"
	"time"

	"taskboard-api/domain"
)

func day(n int) time.Time {
	return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC)
}

func TestCanAddEdgeRejectsSelfDependency(t *testing.T) {
	g := New([]Node{{ID: "a", DueDate: day(1)}}, nil)

	err := g.CanAddEdge("a", "a")
	if !IsKind(err, KindSelfDependency) {
		t.Fatalf("expected self dependency error, got %v", err)
	}
}

func TestCanAddEdgeRejectsTwoCycle(t *testing.T) {
	nodes := []Node{
		{ID: "a", DueDate: day(1)},
		{ID: "b", DueDate: day(2)},
	}
	// B already depends on A.
	edges := []domain.Dependency{{DependentID: "b", DependencyID: "a"}}
	g := New(nodes, edges)

	err := g.CanAddEdge("a", "b")
	if !IsKind(err, KindCircular) {
		t.Fatalf("expected circular dependency error, got %v", err)
	}
}

func TestCanAddEdgeRejectsTransitiveCycle(t *testing.T) {
	nodes := []Node{
		{ID: "a", DueDate: day(3)},
		{ID: "b", DueDate: day(2)},
		{ID: "c", DueDate: day(1)},
	}
	edges := []domain.Dependency{
		{DependentID: "a", DependencyID: "b"},
		{DependentID: "b", DependencyID: "c"},
	}
	g := New(nodes, edges)

	// c -> a closes the loop a -> b -> c -> a.
	err := g.CanAddEdge("c", "a")
	if !IsKind(err, KindCircular) {
		t.Fatalf("expected circular dependency error, got %v", err)
	}
}

func TestCanAddEdgeRejectsDueDateOrderViolation(t *testing.T) {
	nodes := []Node{
		{ID: "a", DueDate: day(5)},
		{ID: "b", DueDate: day(10)},
	}
	g := New(nodes, nil)

	// A (due Jan 5) would depend on B (due Jan 10): dependent due before
	// its dependency.
	err := g.CanAddEdge("a", "b")
	if !IsKind(err, KindDueDateOrder) {
		t.Fatalf("expected due date order error, got %v", err)
	}
}

func TestCanAddEdgeAllowsEqualDueDates(t *testing.T) {
	nodes := []Node{
		{ID: "a", DueDate: day(5)},
		{ID: "b", DueDate: day(5)},
	}
	g := New(nodes, nil)

	if err := g.CanAddEdge("a", "b"); err != nil {
		t.Fatalf("expected edge with equal due dates to pass, got %v", err)
	}
}

func TestCanAddEdgeRejectsUnknownTask(t *testing.T) {
	g := New([]Node{{ID: "a", DueDate: day(1)}}, nil)

	if err := g.CanAddEdge("a", "ghost"); !IsKind(err, KindUnknownTask) {
		t.Fatalf("expected unknown task error, got %v", err)
	}
}

func TestCanCompleteChecksOnlyDirectDependencies(t *testing.T) {
	nodes := []Node{
		{ID: "a", Status: domain.StatusTodo, DueDate: day(3)},
		{ID: "b", Status: domain.StatusCompleted, DueDate: day(2)},
		{ID: "c", Status: domain.StatusTodo, DueDate: day(1)},
	}
	edges := []domain.Dependency{
		{DependentID: "a", DependencyID: "b"},
		{DependentID: "b", DependencyID: "c"},
	}
	g := New(nodes, edges)

	// a's direct dependency b is completed; b's own open dependency c
	// must not gate a.
	if err := g.CanComplete("a"); err != nil {
		t.Fatalf("gating should not be transitive, got %v", err)
	}
	if err := g.CanComplete("b"); !IsKind(err, KindDependenciesOpen) {
		t.Fatalf("expected open dependency error for b, got %v", err)
	}
}

func TestCanDelete(t *testing.T) {
	nodes := []Node{
		{ID: "a", DueDate: day(2)},
		{ID: "b", DueDate: day(1)},
	}
	edges := []domain.Dependency{{DependentID: "a", DependencyID: "b"}}
	g := New(nodes, edges)

	if err := g.CanDelete("b"); !IsKind(err, KindHasDependents) {
		t.Fatalf("expected has dependents error, got %v", err)
	}
	if err := g.CanDelete("a"); err != nil {
		t.Fatalf("a has no dependents, got %v", err)
	}
}

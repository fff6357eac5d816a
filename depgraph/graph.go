// Package depgraph guards mutations to the task dependency edge set. All
// edge inserts, completion transitions and task deletions pass through it
// so the edge set stays a DAG and completion gating holds.
package depgraph

import (
	"time"

	"taskboard-api/domain"
)

// Node is the slice of task state the validator needs.
type Node struct {
	ID      string
	Status  domain.Status
	DueDate time.Time
}

// Graph is a snapshot of one user's tasks and dependency edges. It is
// rebuilt per validation; graphs are per-user and small, so a fresh
// reachability search per edge insert is O(V+E) and fine at this scale.
type Graph struct {
	nodes map[string]Node
	// deps[a] lists the ids a depends on (edges a -> dep).
	deps map[string][]string
	// dependents[b] lists the ids that depend on b.
	dependents map[string][]string
}

// New builds a graph from current task state and the persisted edge set.
// Edges referencing unknown tasks are kept; validation still uses them
// for reachability so a half-loaded snapshot cannot hide a cycle.
func New(nodes []Node, edges []domain.Dependency) *Graph {
	g := &Graph{
		nodes:      make(map[string]Node, len(nodes)),
		deps:       make(map[string][]string, len(edges)),
		dependents: make(map[string][]string, len(edges)),
	}
	for _, n := range nodes {
		g.nodes[n.ID] = n
	}
	for _, e := range edges {
		g.deps[e.DependentID] = append(g.deps[e.DependentID], e.DependencyID)
		g.dependents[e.DependencyID] = append(g.dependents[e.DependencyID], e.DependentID)
	}
	return g
}

// CanAddEdge validates the proposed edge from -> to (from would depend on
// to). It returns nil when the edge is safe to persist.
func (g *Graph) CanAddEdge(from, to string) error {
	if from == to {
		return &ValidationError{Kind: KindSelfDependency, TaskID: from}
	}
	if _, ok := g.nodes[from]; !ok {
		return &ValidationError{Kind: KindUnknownTask, TaskID: from}
	}
	if _, ok := g.nodes[to]; !ok {
		return &ValidationError{Kind: KindUnknownTask, TaskID: to}
	}
	if g.reachable(to, from) {
		return &ValidationError{Kind: KindCircular, TaskID: from, OtherID: to}
	}
	dependent := g.nodes[from]
	dependency := g.nodes[to]
	if dependent.DueDate.Before(dependency.DueDate) {
		return &ValidationError{Kind: KindDueDateOrder, TaskID: from, OtherID: to}
	}
	return nil
}

// CanComplete reports whether the task may transition to completed. Only
// direct dependencies are checked; gating is intentionally not transitive.
func (g *Graph) CanComplete(taskID string) error {
	for _, dep := range g.deps[taskID] {
		n, ok := g.nodes[dep]
		if !ok || n.Status != domain.StatusCompleted {
			return &ValidationError{Kind: KindDependenciesOpen, TaskID: taskID, OtherID: dep}
		}
	}
	return nil
}

// CanDelete reports whether the task may be removed. A task with incoming
// edges cannot be deleted while others still depend on it.
func (g *Graph) CanDelete(taskID string) error {
	if deps := g.dependents[taskID]; len(deps) > 0 {
		return &ValidationError{Kind: KindHasDependents, TaskID: taskID, OtherID: deps[0]}
	}
	return nil
}

// Dependencies returns the direct dependency ids of the given task.
func (g *Graph) Dependencies(taskID string) []string {
	return append([]string(nil), g.deps[taskID]...)
}

// reachable walks existing edges depth-first from start looking for target.
func (g *Graph) reachable(start, target string) bool {
	if start == target {
		return true
	}
	seen := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range g.deps[cur] {
			if next == target {
				return true
			}
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

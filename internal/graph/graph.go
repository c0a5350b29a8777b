// Package graph maintains a bidirectional view of declared work-item
// dependencies and answers the structural queries that gate status moves.
package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hylla/kanflow/internal/domain"
)

// CycleError reports the dependency path that made a topological order
// impossible.
type CycleError struct {
	Path []string
}

// Error renders the cycle path.
func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " -> "))
}

// ValidationResult carries the outcome of a proposed status transition.
// Errors block the move; warnings are advisory and never affect validity.
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Graph holds the derived adjacency maps. It is rebuilt from the item
// collection by Build and never persisted; all other methods are read-only.
type Graph struct {
	predecessors map[string]map[string]struct{}
	successors   map[string]map[string]struct{}
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		predecessors: map[string]map[string]struct{}{},
		successors:   map[string]map[string]struct{}{},
	}
}

// Build rebuilds the graph from scratch out of the declared predecessor and
// successor lists. An edge is included only when both endpoints exist in the
// collection; dangling ids are silently dropped. Calling Build again with the
// same snapshot yields identical query results.
func (g *Graph) Build(items []domain.WorkItem) {
	g.predecessors = make(map[string]map[string]struct{}, len(items))
	g.successors = make(map[string]map[string]struct{}, len(items))

	known := make(map[string]struct{}, len(items))
	for _, item := range items {
		known[item.ID] = struct{}{}
		g.predecessors[item.ID] = map[string]struct{}{}
		g.successors[item.ID] = map[string]struct{}{}
	}

	for _, item := range items {
		for _, predID := range item.Predecessors {
			if _, ok := known[predID]; !ok {
				continue
			}
			g.predecessors[item.ID][predID] = struct{}{}
			g.successors[predID][item.ID] = struct{}{}
		}
		for _, succID := range item.Successors {
			if _, ok := known[succID]; !ok {
				continue
			}
			g.successors[item.ID][succID] = struct{}{}
			g.predecessors[succID][item.ID] = struct{}{}
		}
	}
}

// PredecessorsOf returns the direct one-hop dependencies of an item. Unknown
// ids yield an empty set.
func (g *Graph) PredecessorsOf(id string) []string {
	return sortedKeys(g.predecessors[id])
}

// SuccessorsOf returns the items directly blocked by an item. Unknown ids
// yield an empty set.
func (g *Graph) SuccessorsOf(id string) []string {
	return sortedKeys(g.successors[id])
}

// AllDependents returns every item transitively blocked by the given item.
// The start item itself appears only when a cycle routes back to it: a node
// participating in a cycle is trivially dependent on itself.
func (g *Graph) AllDependents(id string) []string {
	return g.reachableFrom(id, g.successors)
}

// AllDependencies returns every item the given item transitively depends on,
// with the same self-inclusion rule for cycles as AllDependents.
func (g *Graph) AllDependencies(id string) []string {
	return g.reachableFrom(id, g.predecessors)
}

// reachableFrom walks one edge direction depth-first with a visited guard so
// traversal terminates on cycles.
func (g *Graph) reachableFrom(start string, edges map[string]map[string]struct{}) []string {
	visited := map[string]struct{}{}
	var walk func(id string)
	walk = func(id string) {
		for _, next := range sortedKeys(edges[id]) {
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			walk(next)
		}
	}
	walk(start)
	return sortedKeys(visited)
}

// HasCycle reports whether a cycle is reachable from the given item along
// successor edges. This is a single-source check, not a whole-graph one.
func (g *Graph) HasCycle(id string) bool {
	if _, ok := g.successors[id]; !ok {
		return false
	}
	visited := map[string]bool{}
	stack := map[string]bool{}
	var dfs func(node string) bool
	dfs = func(node string) bool {
		visited[node] = true
		stack[node] = true
		for _, next := range sortedKeys(g.successors[node]) {
			if !visited[next] {
				if dfs(next) {
					return true
				}
			} else if stack[next] {
				return true
			}
		}
		stack[node] = false
		return false
	}
	return dfs(id)
}

// AllCycles enumerates dependency cycles by running a DFS from every
// unvisited vertex and emitting the recursion-stack path each time a node on
// the active stack is revisited. A cycle reachable from multiple roots is
// reported once per root, and rotations of the same cycle are not
// canonicalized; downstream consumers rely on this per-root report shape.
func (g *Graph) AllCycles() [][]string {
	visited := map[string]bool{}
	stack := map[string]bool{}
	var cycles [][]string

	var dfs func(node string, path []string)
	dfs = func(node string, path []string) {
		visited[node] = true
		stack[node] = true
		path = append(path, node)

		for _, next := range sortedKeys(g.successors[node]) {
			if !visited[next] {
				dfs(next, path)
				continue
			}
			if !stack[next] {
				continue
			}
			start := slices.Index(path, next)
			if start < 0 {
				continue
			}
			cycle := make([]string, len(path)-start)
			copy(cycle, path[start:])
			cycles = append(cycles, cycle)
		}

		stack[node] = false
	}

	for _, node := range sortedKeys(g.successors) {
		if !visited[node] {
			dfs(node, nil)
		}
	}
	return cycles
}

// ValidateTransition checks whether moving an item to a proposed status is
// permitted: declared dependency ids must exist, the item must not sit on a
// cycle, and unfinished predecessors block the move when the board enforces
// them. A full WIP column adds a warning, never an error.
func (g *Graph) ValidateTransition(item domain.WorkItem, proposedStatus string, items []domain.WorkItem, board domain.Board) ValidationResult {
	result := ValidationResult{
		Errors:   []string{},
		Warnings: []string{},
	}

	byID := make(map[string]domain.WorkItem, len(items))
	for _, candidate := range items {
		byID[candidate.ID] = candidate
	}

	for _, predID := range item.Predecessors {
		if _, ok := byID[predID]; !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("predecessor %q of %q does not exist on the board", predID, item.ID))
		}
	}
	for _, succID := range item.Successors {
		if _, ok := byID[succID]; !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("successor %q of %q does not exist on the board", succID, item.ID))
		}
	}
	if g.HasCycle(item.ID) {
		result.Errors = append(result.Errors, fmt.Sprintf("%q is part of a dependency cycle", item.ID))
	}

	if board.Rules.EnforcePredecessors {
		for _, predID := range g.PredecessorsOf(item.ID) {
			pred, ok := byID[predID]
			if !ok {
				continue
			}
			if !pred.IsDone() {
				result.Errors = append(result.Errors, fmt.Sprintf("cannot move %q to %q: predecessor %q is not done", item.ID, proposedStatus, predID))
			}
		}
	}

	if limit := board.WIPLimit(proposedStatus); limit > 0 {
		count := 0
		for _, candidate := range items {
			if candidate.ID == item.ID {
				continue
			}
			if candidate.Status == proposedStatus {
				count++
			}
		}
		if count >= limit {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%q already holds %d items (WIP limit %d)", proposedStatus, count, limit))
		}
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// TopologicalOrder returns an ordering of the given items in which every
// predecessor appears before its successors. It fails with a *CycleError the
// moment a cycle is found: a partial order would be silently wrong for any
// scheduling use.
func (g *Graph) TopologicalOrder(items []domain.WorkItem) ([]string, error) {
	const (
		white = iota // unvisited
		grey         // in progress
		black        // done
	)
	color := make(map[string]int, len(items))
	inScope := make(map[string]struct{}, len(items))
	for _, item := range items {
		inScope[item.ID] = struct{}{}
	}

	order := make([]string, 0, len(items))
	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		color[id] = grey
		path = append(path, id)
		for _, next := range sortedKeys(g.successors[id]) {
			if _, ok := inScope[next]; !ok {
				continue
			}
			switch color[next] {
			case grey:
				start := slices.Index(path, next)
				if start < 0 {
					start = 0
				}
				cyclePath := append(slices.Clone(path[start:]), next)
				return &CycleError{Path: cyclePath}
			case white:
				if err := visit(next, path); err != nil {
					return err
				}
			}
		}
		color[id] = black
		order = append(order, id)
		return nil
	}

	for _, item := range items {
		if color[item.ID] != white {
			continue
		}
		if err := visit(item.ID, nil); err != nil {
			return nil, err
		}
	}

	slices.Reverse(order)
	return order, nil
}

// ReadyItems returns the items that are not done and whose every predecessor
// has reached the terminal status.
func (g *Graph) ReadyItems(items []domain.WorkItem) []string {
	byID := make(map[string]domain.WorkItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	ready := make([]string, 0, len(items))
	for _, item := range items {
		if item.IsDone() {
			continue
		}
		blocked := false
		for _, predID := range g.PredecessorsOf(item.ID) {
			if pred, ok := byID[predID]; ok && !pred.IsDone() {
				blocked = true
				break
			}
		}
		if !blocked {
			ready = append(ready, item.ID)
		}
	}
	return ready
}

// BlockingItems returns the unfinished items that at least one other item
// transitively depends on.
func (g *Graph) BlockingItems(items []domain.WorkItem) []string {
	blocking := make([]string, 0, len(items))
	for _, item := range items {
		if item.IsDone() {
			continue
		}
		if len(g.AllDependents(item.ID)) > 0 {
			blocking = append(blocking, item.ID)
		}
	}
	return blocking
}

// sortedKeys returns map keys in lexical order for deterministic traversal
// and query output.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Package graph provides a dependency graph for task scheduling.
package graph

import (
	"sync"

	"github.com/ShayCichocki/nexus/pkg/models"
)

// Node colors for depth-first walks.
const (
	white = iota // unvisited
	gray         // in progress
	black        // done
)

// DependencyGraph represents a directed acyclic graph of task dependencies.
// Tasks are nodes, and edges represent "blocked by" relationships.
//
// Settling a task removes it from the graph and from every remaining task's
// set of unsettled dependencies. That is the only mutation after construction.
type DependencyGraph struct {
	mu sync.RWMutex
	// order holds the IDs still in the graph, in insertion order.
	order []string
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// edges maps task ID to the IDs it depends on, in declared order.
	edges map[string][]string
	// remaining maps task ID to its unsettled dependency IDs.
	remaining map[string]map[string]struct{}
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]*models.Task),
		edges:     make(map[string][]string),
		remaining: make(map[string]map[string]struct{}),
		debugLog:  func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build adds every task and validates the result.
// Returns an error on duplicates, unknown dependencies or cycles.
func (g *DependencyGraph) Build(tasks []*models.Task) error {
	for _, task := range tasks {
		if err := g.AddTask(task); err != nil {
			return err
		}
	}
	return g.Validate()
}

// AddTask inserts a task. Dependencies may reference tasks added later;
// Validate checks them once construction is done.
func (g *DependencyGraph) AddTask(task *models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[task.ID]; exists {
		return &DuplicateTaskError{ID: task.ID}
	}

	g.debugLog("[graph.AddTask] id=%s name=%q depends_on=%v", task.ID, task.Name, task.DependsOn)

	deps := make([]string, 0, len(task.DependsOn))
	pending := make(map[string]struct{}, len(task.DependsOn))
	for _, depID := range task.DependsOn {
		if _, dup := pending[depID]; dup {
			continue
		}
		pending[depID] = struct{}{}
		deps = append(deps, depID)
	}

	g.order = append(g.order, task.ID)
	g.nodes[task.ID] = task
	g.edges[task.ID] = deps
	g.remaining[task.ID] = pending
	return nil
}

// Validate checks that every dependency refers to a task in the graph and
// that the graph has no cycle. It is meant to run once, before scheduling.
func (g *DependencyGraph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, id := range g.order {
		for _, depID := range g.edges[id] {
			if _, ok := g.nodes[depID]; !ok {
				return &UnknownDependencyError{TaskID: id, DependencyID: depID}
			}
		}
	}

	if _, err := g.walkLocked(); err != nil {
		return err
	}

	g.debugLog("[graph.Validate] graph valid with %d nodes", len(g.nodes))
	return nil
}

// Frontier returns every task with no unsettled dependencies, in insertion order.
func (g *DependencyGraph) Frontier() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []*models.Task
	for _, id := range g.order {
		if len(g.remaining[id]) == 0 {
			ready = append(ready, g.nodes[id])
		}
	}
	return ready
}

// Settle removes a task and drops it from every other task's remaining
// dependencies. Settling an absent ID is a no-op.
func (g *DependencyGraph) Settle(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[taskID]; !ok {
		return
	}

	delete(g.nodes, taskID)
	delete(g.edges, taskID)
	delete(g.remaining, taskID)
	for i, id := range g.order {
		if id == taskID {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	for _, deps := range g.remaining {
		delete(deps, taskID)
	}

	g.debugLog("[graph.Settle] settled %s, %d tasks remain", taskID, len(g.nodes))
}

// IsEmpty reports whether every task has been settled.
func (g *DependencyGraph) IsEmpty() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes) == 0
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// GetTask returns the task for a given ID, or nil if not found.
func (g *DependencyGraph) GetTask(taskID string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[taskID]
}

// Tasks returns the remaining tasks in insertion order.
func (g *DependencyGraph) Tasks() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tasks := make([]*models.Task, 0, len(g.order))
	for _, id := range g.order {
		tasks = append(tasks, g.nodes[id])
	}
	return tasks
}

// GetDependencies returns the declared dependencies of a task.
func (g *DependencyGraph) GetDependencies(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.edges[taskID]...)
}

// GetDependents returns the IDs of remaining tasks that depend on the given task.
func (g *DependencyGraph) GetDependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for _, id := range g.order {
		for _, depID := range g.edges[id] {
			if depID == taskID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}

// DetectCycle returns true if the graph contains a circular dependency.
// Uses depth-first search with coloring to detect back edges.
func (g *DependencyGraph) DetectCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, err := g.walkLocked()
	return err != nil
}

// TopologicalOrder returns task IDs so that every task follows all of its
// dependencies. It fails with *CircularDependencyError instead of returning
// a partial order.
func (g *DependencyGraph) TopologicalOrder() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.walkLocked()
}

// walkLocked performs the colored DFS shared by DetectCycle and
// TopologicalOrder. Roots are visited in insertion order and dependencies in
// declared order, so the result is deterministic. Caller must hold g.mu.
func (g *DependencyGraph) walkLocked() ([]string, error) {
	colors := make(map[string]int, len(g.nodes))
	result := make([]string, 0, len(g.nodes))
	var stack []string

	var visit func(id string) error
	visit = func(id string) error {
		colors[id] = gray
		stack = append(stack, id)

		for _, depID := range g.edges[id] {
			if _, ok := g.nodes[depID]; !ok {
				// Settled or unknown; Validate reports unknown IDs.
				continue
			}
			switch colors[depID] {
			case gray:
				path := append([]string(nil), stack...)
				return &CircularDependencyError{Path: append(path, depID)}
			case white:
				if err := visit(depID); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = black
		result = append(result, id)
		return nil
	}

	for _, id := range g.order {
		if colors[id] == white {
			if err := visit(id); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

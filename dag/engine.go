package dag

import (
	"context"
	"sync"
	"time"
)

// NodeStatus is the outcome of one node execution.
type NodeStatus string

const (
	StatusCompleted NodeStatus = "completed"
	StatusFailed    NodeStatus = "failed"
	StatusSkipped   NodeStatus = "skipped"
	// StatusUnreached marks nodes never attempted because an earlier
	// level failed or the run was canceled.
	StatusUnreached NodeStatus = "unreached"
)

// NodeResult is the recorded outcome of one node.
type NodeResult struct {
	Name     string
	Status   NodeStatus
	Duration time.Duration
	Err      error
}

// Result holds the outcome of a graph execution. FailedNode names the
// first node whose error stopped the run, if any.
type Result struct {
	NodeResults map[string]NodeResult
	FailedNode  string
	Duration    time.Duration
}

// Failed reports whether any node failed.
func (r *Result) Failed() bool { return r.FailedNode != "" }

// NodeFilter decides whether a node runs in this execution. Filtered
// nodes are recorded as skipped and their dependents still run.
type NodeFilter func(name string, state *State) bool

// Engine executes a graph level by level.
type Engine struct {
	// MaxParallel bounds concurrent nodes within a level (0 = level size).
	MaxParallel int
}

// Execute runs the graph in dependency order. The run stops at the next
// level boundary after a node failure or context cancellation; nodes in
// the same level as a failure still finish. The returned error is the
// first node error, or the context error on cancellation.
func (e *Engine) Execute(ctx context.Context, g *Graph, state *State, filter NodeFilter) (*Result, error) {
	start := time.Now()

	levels, err := BuildLevels(g)
	if err != nil {
		return nil, err
	}

	result := &Result{NodeResults: make(map[string]NodeResult, len(g.Nodes))}
	var firstErr error

	for _, level := range levels {
		if firstErr != nil || ctx.Err() != nil {
			for _, name := range level {
				result.NodeResults[name] = NodeResult{Name: name, Status: StatusUnreached}
			}
			continue
		}

		var toRun []string
		for _, name := range level {
			if filter != nil && !filter(name, state) {
				result.NodeResults[name] = NodeResult{Name: name, Status: StatusSkipped}
				continue
			}
			toRun = append(toRun, name)
		}
		if len(toRun) == 0 {
			continue
		}

		e.runLevel(ctx, g, state, toRun, result)

		for _, name := range toRun {
			if nr := result.NodeResults[name]; nr.Status == StatusFailed && firstErr == nil {
				firstErr = nr.Err
				result.FailedNode = name
			}
		}
	}

	result.Duration = time.Since(start)
	if firstErr != nil {
		return result, firstErr
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (e *Engine) runLevel(ctx context.Context, g *Graph, state *State, names []string, result *Result) {
	limit := e.MaxParallel
	if limit <= 0 || limit > len(names) {
		limit = len(names)
	}

	// Workers pull from an ordered channel so nodes start in level order
	// even when the parallelism bound serializes them.
	work := make(chan string)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < limit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for nodeName := range work {
				// Cancellation observed before a node starts keeps it
				// from starting; a running node is never interrupted.
				var nr NodeResult
				if ctx.Err() != nil {
					nr = NodeResult{Name: nodeName, Status: StatusUnreached}
				} else {
					nr = runNode(ctx, g.Nodes[nodeName], state)
				}
				mu.Lock()
				result.NodeResults[nodeName] = nr
				mu.Unlock()
			}
		}()
	}
	for _, name := range names {
		work <- name
	}
	close(work)
	wg.Wait()
}

func runNode(ctx context.Context, node Node, state *State) NodeResult {
	start := time.Now()
	err := node.Run(ctx, state)
	nr := NodeResult{Name: node.Name(), Duration: time.Since(start)}
	if err != nil {
		nr.Status = StatusFailed
		nr.Err = err
	} else {
		nr.Status = StatusCompleted
	}
	return nr
}

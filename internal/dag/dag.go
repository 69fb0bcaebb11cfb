// Package dag provides dependency-graph validation shared by the Message
// Router's batch execution and the Workflow Orchestrator's step graph:
// cycle detection and topological ready-set computation over
// string-keyed node ids.
package dag

import (
	"fmt"
	"sort"

	"github.com/meow-stack/meowctl/internal/errors"
)

// Graph is a directed graph of string node IDs to their dependency IDs.
type Graph map[string][]string

// DetectCycle performs a depth-first search for a cycle, returning the
// offending path (e.g. ["A", "B", "A"]) if one exists.
func DetectCycle(g Graph) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g))
	var path []string

	var visit func(node string) []string
	visit = func(node string) []string {
		color[node] = gray
		path = append(path, node)

		for _, dep := range g[node] {
			switch color[dep] {
			case gray:
				start := 0
				for i, id := range path {
					if id == dep {
						start = i
						break
					}
				}
				return append(append([]string{}, path[start:]...), dep)
			case white:
				if cyc := visit(dep); cyc != nil {
					return cyc
				}
			}
		}

		path = path[:len(path)-1]
		color[node] = black
		return nil
	}

	ids := make([]string, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if color[id] == white {
			if cyc := visit(id); cyc != nil {
				return cyc
			}
		}
	}
	return nil
}

// Validate returns a *errors.MeowctlError wrapping errors.CycleDetected if
// g contains a cycle, or checks that every dependency resolves to a known
// node.
func Validate(g Graph) error {
	for id, deps := range g {
		for _, dep := range deps {
			if _, ok := g[dep]; !ok {
				return errors.ValidationFailed(fmt.Sprintf("step %q depends on unknown step %q", id, dep))
			}
		}
	}
	if cyc := DetectCycle(g); cyc != nil {
		return errors.CycleDetected(cyc)
	}
	return nil
}

// Ready returns the sorted set of node IDs whose dependencies are all
// present in done, excluding nodes already in done.
func Ready(g Graph, done map[string]bool) []string {
	var ready []string
	for id, deps := range g {
		if done[id] {
			continue
		}
		satisfied := true
		for _, dep := range deps {
			if !done[dep] {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)
	return ready
}

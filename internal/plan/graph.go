package plan

import (
	"errors"
	"fmt"
	"strings"
)

var ErrCyclicDependency = errors.New("cyclic dependency")

// CycleError names the steps forming a dependency cycle, first step repeated
// at the end.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCyclicDependency, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCyclicDependency }

// node is the ordering view of an artifact or an action.
type node struct {
	name string
	deps []string
}

// topoSort orders nodes so that each comes after its dependencies. Ties are
// broken by declaration order, which keeps the result stable between runs.
// Dependencies on names outside nodes are ignored.
func topoSort(nodes []node) ([]int, error) {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.name] = i
	}

	indegree := make([]int, len(nodes))
	dependents := make([][]int, len(nodes))
	for i, n := range nodes {
		for _, dep := range n.deps {
			j, ok := index[dep]
			if !ok {
				continue
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	order := make([]int, 0, len(nodes))
	done := make([]bool, len(nodes))
	for len(order) < len(nodes) {
		next := -1
		for i := range nodes {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, &CycleError{Path: findCycle(nodes, index, done)}
		}

		done[next] = true
		order = append(order, next)
		for _, d := range dependents[next] {
			indegree[d]--
		}
	}

	return order, nil
}

// findCycle walks the unsorted remainder of the graph until it revisits a node.
func findCycle(nodes []node, index map[string]int, done []bool) []string {
	const (
		unvisited = iota
		onStack
		finished
	)

	state := make([]int, len(nodes))
	var stack []int

	var visit func(i int) []string
	visit = func(i int) []string {
		state[i] = onStack
		stack = append(stack, i)
		for _, dep := range nodes[i].deps {
			j, ok := index[dep]
			if !ok || done[j] {
				continue
			}
			switch state[j] {
			case onStack:
				var path []string
				for k := len(stack) - 1; k >= 0; k-- {
					path = append([]string{nodes[stack[k]].name}, path...)
					if stack[k] == j {
						break
					}
				}
				return append(path, nodes[j].name)
			case unvisited:
				if cycle := visit(j); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[i] = finished
		return nil
	}

	for i := range nodes {
		if done[i] || state[i] != unvisited {
			continue
		}
		if cycle := visit(i); cycle != nil {
			return cycle
		}
	}
	return nil
}

// Order returns the artifacts and actions of p in execution order. Artifacts
// always run before actions.
func (p *DeploymentPlan) Order() ([]ArtifactSpec, []ConfigAction, error) {
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}

	artifactNodes := make([]node, len(p.Artifacts))
	for i, a := range p.Artifacts {
		artifactNodes[i] = node{name: a.Name, deps: a.DependsOn}
	}
	artifactOrder, err := topoSort(artifactNodes)
	if err != nil {
		return nil, nil, configError(p.Network, err)
	}

	actionNodes := make([]node, len(p.Actions))
	for i, a := range p.Actions {
		actionNodes[i] = node{name: a.Name, deps: a.DependsOn}
	}
	actionOrder, err := topoSort(actionNodes)
	if err != nil {
		return nil, nil, configError(p.Network, err)
	}

	artifacts := make([]ArtifactSpec, 0, len(artifactOrder))
	for _, i := range artifactOrder {
		artifacts = append(artifacts, p.Artifacts[i])
	}
	actions := make([]ConfigAction, 0, len(actionOrder))
	for _, i := range actionOrder {
		actions = append(actions, p.Actions[i])
	}

	return artifacts, actions, nil
}

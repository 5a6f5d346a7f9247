// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Graph errors.
var (
	// ErrCycle is returned by Finalize when the graph is not acyclic.
	ErrCycle = errors.New("pipeline: graph has a cycle")

	// ErrFinalized is returned when mutating a finalized graph.
	ErrFinalized = errors.New("pipeline: graph already finalized")

	// ErrNotFinalized is returned by Run before Finalize.
	ErrNotFinalized = errors.New("pipeline: graph not finalized")

	// ErrDuplicateNode is returned when a node name is reused.
	ErrDuplicateNode = errors.New("pipeline: duplicate node name")

	// ErrUnknownNode is returned when a port's node is not in the graph.
	ErrUnknownNode = errors.New("pipeline: node not in graph")
)

// Graph holds nodes with typed ports, validates connections, and executes
// passes in a cached topological order. Build the graph, Connect the ports,
// Finalize once, then Run once per pass.
type Graph struct {
	nodes     []Node
	index     map[string]int
	order     []Node
	finalized bool
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{index: make(map[string]int)}
}

// AddNode adds a node. Node names must be unique within the graph.
func (g *Graph) AddNode(n Node) error {
	if g.finalized {
		return ErrFinalized
	}
	if _, dup := g.index[n.Name()]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateNode, n.Name())
	}
	owner, ok := n.(portOwner)
	if !ok {
		return fmt.Errorf("pipeline: node %q does not embed Base", n.Name())
	}
	owner.adopt(n)
	g.index[n.Name()] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	return nil
}

// Connect links an output port to an input port. Both nodes must already be
// in the graph and the port tags must be identical; mismatches fail here,
// at link time.
func (g *Graph) Connect(out, in *Port) error {
	if g.finalized {
		return ErrFinalized
	}
	for _, p := range [...]*Port{out, in} {
		if p.node == nil {
			return fmt.Errorf("%w: port %q has no node", ErrUnknownNode, p.Name())
		}
		if i, ok := g.index[p.node.Name()]; !ok || g.nodes[i] != p.node {
			return fmt.Errorf("%w: %q", ErrUnknownNode, p.node.Name())
		}
	}
	return connect(out, in)
}

// Finalize computes and caches the execution order. The order is a
// topological sort over port-dependency edges; independent nodes keep their
// declaration order, so two builds of the same graph execute identically.
func (g *Graph) Finalize() error {
	if g.finalized {
		return ErrFinalized
	}

	n := len(g.nodes)
	indegree := make([]int, n)
	succs := make([][]int, n)
	for i, node := range g.nodes {
		for _, p := range node.Ports() {
			if p.dir != Input || p.upstream == nil {
				continue
			}
			from := g.index[p.upstream.node.Name()]
			succs[from] = append(succs[from], i)
			indegree[i]++
		}
	}

	// Kahn's algorithm with a sorted ready list: always pick the earliest
	// declared node among those with no remaining predecessors.
	var ready []int
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	order := make([]Node, 0, n)
	for len(ready) > 0 {
		min := 0
		for j := 1; j < len(ready); j++ {
			if ready[j] < ready[min] {
				min = j
			}
		}
		i := ready[min]
		ready = append(ready[:min], ready[min+1:]...)
		order = append(order, g.nodes[i])
		for _, s := range succs[i] {
			indegree[s]--
			if indegree[s] == 0 {
				ready = append(ready, s)
			}
		}
	}
	if len(order) != n {
		var stuck []string
		for i, d := range indegree {
			if d > 0 {
				stuck = append(stuck, g.nodes[i].Name())
			}
		}
		return fmt.Errorf("%w involving %s", ErrCycle, strings.Join(stuck, ", "))
	}

	g.order = order
	g.finalized = true
	return nil
}

// Order returns the cached execution order node names. Empty before
// Finalize.
func (g *Graph) Order() []string {
	names := make([]string, len(g.order))
	for i, n := range g.order {
		names[i] = n.Name()
	}
	return names
}

// Run executes one pass: every node exactly once in the cached order. The
// pass aborts on the first node error.
func (g *Graph) Run(ctx *Context) error {
	if !g.finalized {
		return ErrNotFinalized
	}
	for _, n := range g.order {
		if ctx.Log != nil {
			ctx.Log.Debug("running node", "node", n.Name())
		}
		if err := n.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}

package lockmgr

import (
	"sort"
	"sync"

	"DaemonDB/common"
)

// waitForGraph is the background detector's wait-for graph: an edge t1->t2
// means t1 is blocked waiting for a lock t2 currently holds. Mirrors
// util6-JadeDB's WaitGraph (map of txnID to the txnIDs it waits for) generalized
// to the BusTub-style exposed Add/Remove/HasCycle/GetEdgeList API.
type waitForGraph struct {
	mu    sync.Mutex
	edges map[common.TxnID]map[common.TxnID]bool
}

func newWaitForGraph() *waitForGraph {
	return &waitForGraph{edges: make(map[common.TxnID]map[common.TxnID]bool)}
}

// AddEdge adds an edge t1 -> t2: t1 waits for t2.
func (g *waitForGraph) AddEdge(t1, t2 common.TxnID) {
	if t1 == t2 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.edges[t1] == nil {
		g.edges[t1] = make(map[common.TxnID]bool)
	}
	g.edges[t1][t2] = true
}

// RemoveEdge removes the edge t1 -> t2, if present.
func (g *waitForGraph) RemoveEdge(t1, t2 common.TxnID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if out, ok := g.edges[t1]; ok {
		delete(out, t2)
		if len(out) == 0 {
			delete(g.edges, t1)
		}
	}
}

// setWaiting replaces txnID's outgoing edges with one edge to every
// currently-granted holder on the resource it is now blocked on.
func (g *waitForGraph) setWaiting(txnID common.TxnID, holders []common.TxnID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.edges, txnID)
	if len(holders) == 0 {
		return
	}
	out := make(map[common.TxnID]bool, len(holders))
	for _, h := range holders {
		if h != txnID {
			out[h] = true
		}
	}
	if len(out) > 0 {
		g.edges[txnID] = out
	}
}

// clearWaiting drops txnID's outgoing edges once it has been granted.
func (g *waitForGraph) clearWaiting(txnID common.TxnID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.edges, txnID)
}

// removeNode drops txnID from the graph entirely, as both source and
// target — called once a transaction is aborted or releases everything.
func (g *waitForGraph) removeNode(txnID common.TxnID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.edges, txnID)
	for t1, out := range g.edges {
		delete(out, txnID)
		if len(out) == 0 {
			delete(g.edges, t1)
		}
	}
}

// GetEdgeList returns a snapshot of every edge in the graph, sorted for
// deterministic inspection in tests.
func (g *waitForGraph) GetEdgeList() []([2]common.TxnID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var list []([2]common.TxnID)
	for t1, out := range g.edges {
		for t2 := range out {
			list = append(list, [2]common.TxnID{t1, t2})
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i][0] != list[j][0] {
			return list[i][0] < list[j][0]
		}
		return list[i][1] < list[j][1]
	})
	return list
}

// hasCycle runs DFS from every node; on finding a cycle it returns the
// highest transaction id in that cycle — the youngest, and therefore the
// victim per the resolution policy.
func (g *waitForGraph) hasCycle() (common.TxnID, bool) {
	g.mu.Lock()
	nodes := make([]common.TxnID, 0, len(g.edges))
	for t1 := range g.edges {
		nodes = append(nodes, t1)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	g.mu.Unlock()

	visited := make(map[common.TxnID]bool)
	for _, start := range nodes {
		if visited[start] {
			continue
		}
		if cycle := g.dfs(start, visited, make(map[common.TxnID]bool), nil); cycle != nil {
			victim := cycle[0]
			for _, t := range cycle {
				if t > victim {
					victim = t
				}
			}
			return victim, true
		}
	}
	return 0, false
}

func (g *waitForGraph) dfs(txnID common.TxnID, visited, onStack map[common.TxnID]bool, path []common.TxnID) []common.TxnID {
	visited[txnID] = true
	onStack[txnID] = true
	path = append(path, txnID)

	g.mu.Lock()
	neighbors := make([]common.TxnID, 0, len(g.edges[txnID]))
	for t2 := range g.edges[txnID] {
		neighbors = append(neighbors, t2)
	}
	g.mu.Unlock()
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i] < neighbors[j] })

	for _, next := range neighbors {
		if onStack[next] {
			cycleStart := 0
			for i, t := range path {
				if t == next {
					cycleStart = i
					break
				}
			}
			return path[cycleStart:]
		}
		if !visited[next] {
			if cycle := g.dfs(next, visited, onStack, path); cycle != nil {
				return cycle
			}
		}
	}
	onStack[txnID] = false
	return nil
}

// AddEdge, RemoveEdge, HasCycle and GetEdgeList on Manager expose the
// graph API BusTub's test suite drives directly, ahead of the background
// detector's own use of it.

// AddEdge adds t1 -> t2 to the waits-for graph.
func (m *Manager) AddEdge(t1, t2 common.TxnID) { m.graph.AddEdge(t1, t2) }

// RemoveEdge removes t1 -> t2 from the waits-for graph.
func (m *Manager) RemoveEdge(t1, t2 common.TxnID) { m.graph.RemoveEdge(t1, t2) }

// HasCycle reports whether the waits-for graph currently has a cycle,
// returning the would-be victim (highest id in the cycle) if so.
func (m *Manager) HasCycle() (common.TxnID, bool) { return m.graph.hasCycle() }

// GetEdgeList returns every edge currently in the waits-for graph.
func (m *Manager) GetEdgeList() []([2]common.TxnID) { return m.graph.GetEdgeList() }

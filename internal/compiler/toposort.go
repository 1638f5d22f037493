package compiler

import (
	"sort"

	"github.com/cbegin/synthgraph-go/internal/patch"
)

// topologicalOrder runs Kahn's algorithm over the node ids. Only edges whose
// endpoints both resolve to known nodes contribute to the indegrees; the
// initial zero-indegree set is sorted by id so the emitted order is
// deterministic for a given document. Returns false when a cycle remains.
func topologicalOrder(nodes []patch.Node, conns []patch.Connection, known map[string]*resolvedNode) ([]string, bool) {
	indegree := make(map[string]int, len(nodes))
	adjacency := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		indegree[n.ID] = 0
	}
	for _, c := range conns {
		if _, ok := known[c.FromNode]; !ok {
			continue
		}
		if _, ok := known[c.ToNode]; !ok {
			continue
		}
		adjacency[c.FromNode] = append(adjacency[c.FromNode], c.ToNode)
		indegree[c.ToNode]++
	}

	queue := make([]string, 0, len(nodes))
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	ordered := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		ordered = append(ordered, id)
		for _, next := range adjacency[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return ordered, len(ordered) == len(nodes)
}

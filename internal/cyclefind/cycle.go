// Package cyclefind enumerates unique length-3 directed cycles in a trade
// graph via depth-first search, deduplicating rotations of the same
// cycle.
package cyclefind

import (
	"sort"
	"strconv"
	"strings"

	"github.com/barterchain/chainengine/internal/domain"
	"github.com/barterchain/chainengine/internal/tradegraph"
)

// Cycle is an ordered edge list of length Depth whose last edge closes
// back to the first edge's FromUserID.
type Cycle struct {
	Edges []domain.Edge
}

// ParticipantIDs returns the cycle's participants in edge order.
func (c Cycle) ParticipantIDs() []int64 {
	ids := make([]int64, len(c.Edges))
	for i, e := range c.Edges {
		ids[i] = e.FromUserID
	}
	return ids
}

// canonicalKey is the sorted-participant-multiset key used to dedup
// rotations of the same cycle. Rotations share the same set of edges, so
// sorting by (FromUserID, ItemID) pairs is cheaper to compute than
// normalizing by edge ordering.
func canonicalKey(edges []domain.Edge) string {
	parts := make([]string, len(edges))
	for i, e := range edges {
		parts[i] = strconv.FormatInt(e.FromUserID, 10) + ":" + strconv.FormatInt(e.ItemID, 10)
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

// Find enumerates all distinct simple directed cycles of exactly `depth`
// edges in g. depth is expected to be 3 (config.EngineConfig.MaxChainDepth)
// but the search is not hardcoded to that value.
func Find(g *tradegraph.Graph, depth int) []Cycle {
	if depth < 1 {
		return nil
	}

	seen := make(map[string]bool)
	var results []Cycle

	var path []domain.Edge
	visited := make(map[int64]bool)

	var dfs func(start, current int64)
	dfs = func(start, current int64) {
		if len(path) == depth {
			return
		}
		for _, e := range g.Neighbors(current) {
			if len(path)+1 == depth {
				if e.ToUserID != start {
					continue // must close the cycle at exactly this depth
				}
			} else {
				if e.ToUserID == start || visited[e.ToUserID] {
					continue // would close early or revisit an intermediate node
				}
			}

			path = append(path, e)
			visited[e.ToUserID] = true

			if len(path) == depth {
				key := canonicalKey(path)
				if !seen[key] {
					seen[key] = true
					cycle := make([]domain.Edge, len(path))
					copy(cycle, path)
					results = append(results, Cycle{Edges: cycle})
				}
			} else {
				dfs(start, e.ToUserID)
			}

			visited[e.ToUserID] = false
			path = path[:len(path)-1]
		}
	}

	for start := range g.Meta {
		dfs(start, start)
	}

	return results
}

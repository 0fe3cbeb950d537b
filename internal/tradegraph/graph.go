// Package tradegraph builds the in-memory directed trade graph over a
// snapshot of users, items, and wishlist entries. The graph is rebuilt
// fresh for every discovery pass and is never mutated after construction.
package tradegraph

import "github.com/barterchain/chainengine/internal/domain"

// Graph is an immutable directed multigraph of give/want relationships.
// Edges[userID] holds every edge leaving that user; Meta[userID] holds
// the per-user data the validator needs.
type Graph struct {
	Edges map[int64][]domain.Edge
	Meta  map[int64]domain.UserMeta
}

// Snapshot is the raw input to the builder: current users, active items,
// and the wishlist relation.
type Snapshot struct {
	Users     []domain.User
	Items     []domain.Item
	Wishlists []domain.WishlistEntry
}

// Build produces a Graph from a snapshot. An edge A->B with (itemId,
// value, name) exists iff A owns an active item that B has wishlisted.
// Self-loops (a user wishlisting their own item) are never materialized.
func Build(snap Snapshot) *Graph {
	g := &Graph{
		Edges: make(map[int64][]domain.Edge),
		Meta:  make(map[int64]domain.UserMeta),
	}

	for _, u := range snap.Users {
		g.Meta[u.ID] = domain.UserMeta{
			Name:            u.DisplayName,
			Rating:          u.Rating,
			Region:          u.Region,
			CompletedTrades: u.CompletedTrades,
		}
	}

	itemsByID := make(map[int64]domain.Item, len(snap.Items))
	for _, it := range snap.Items {
		if it.Status != domain.ItemActive {
			continue
		}
		itemsByID[it.ID] = it
	}

	for _, w := range snap.Wishlists {
		item, ok := itemsByID[w.ItemID]
		if !ok {
			continue
		}
		if item.OwnerID == w.UserID {
			continue // a user never wishlists their own item
		}
		g.Edges[item.OwnerID] = append(g.Edges[item.OwnerID], domain.Edge{
			FromUserID: item.OwnerID,
			ToUserID:   w.UserID,
			ItemID:     item.ID,
			ItemName:   item.Name,
			ValueCents: item.ValueCents,
		})
	}

	return g
}

// Neighbors returns the outgoing edges for a user, or nil if the user has
// none.
func (g *Graph) Neighbors(userID int64) []domain.Edge {
	return g.Edges[userID]
}

// NodeCount returns the number of distinct users with known metadata.
func (g *Graph) NodeCount() int {
	return len(g.Meta)
}

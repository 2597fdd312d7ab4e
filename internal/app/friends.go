package app

import "github.com/focusduo/focusduo/internal/domain"

// FriendGraph is an undirected adjacency map over account ids. Edges are
// independent of liveness and survive reconnects because account ids are
// stable across identity rotation.
type FriendGraph struct {
	adj map[domain.AccountID]map[domain.AccountID]struct{}
}

func NewFriendGraph() *FriendGraph {
	return &FriendGraph{adj: make(map[domain.AccountID]map[domain.AccountID]struct{})}
}

// AddEdge inserts the symmetric relation. Re-adding is a no-op in effect.
func (g *FriendGraph) AddEdge(a, b domain.AccountID) {
	g.link(a, b)
	g.link(b, a)
}

func (g *FriendGraph) link(from, to domain.AccountID) {
	set, ok := g.adj[from]
	if !ok {
		set = make(map[domain.AccountID]struct{})
		g.adj[from] = set
	}
	set[to] = struct{}{}
}

func (g *FriendGraph) Friends(a domain.AccountID) []domain.AccountID {
	set := g.adj[a]
	out := make([]domain.AccountID, 0, len(set))
	for acct := range set {
		out = append(out, acct)
	}
	return out
}

// Snapshot returns the adjacency as account -> friend list, for persistence.
func (g *FriendGraph) Snapshot() map[domain.AccountID][]domain.AccountID {
	out := make(map[domain.AccountID][]domain.AccountID, len(g.adj))
	for acct := range g.adj {
		out[acct] = g.Friends(acct)
	}
	return out
}

func (g *FriendGraph) Load(edges map[domain.AccountID][]domain.AccountID) {
	for acct, friends := range edges {
		for _, f := range friends {
			g.AddEdge(acct, f)
		}
	}
}

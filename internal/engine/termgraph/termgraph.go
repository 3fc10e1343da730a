// Package termgraph groups related terms: each term pair is an undirected
// edge and every connected component is one group.
package termgraph

import (
	"errors"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/crimson-sun/clinote/internal/model"
)

// ErrEmptyTable is returned when there are no term pairs to group.
var ErrEmptyTable = errors.New("termgraph: term matching table is empty")

// Component is a set of mutually related terms, sorted.
type Component []string

// Components returns the connected components of the graph built from pairs.
// Duplicate pairs collapse into one edge and a term paired with itself is a
// node with no edges. Components are ordered by the first appearance of any
// of their terms; callers should not rely on that order.
func Components(pairs []model.TermPair) ([]Component, error) {
	if len(pairs) == 0 {
		return nil, ErrEmptyTable
	}

	g := simple.NewUndirectedGraph()
	ids := make(map[string]int64)
	var terms []string
	node := func(term string) graph.Node {
		id, ok := ids[term]
		if !ok {
			id = int64(len(terms))
			ids[term] = id
			terms = append(terms, term)
		}
		n := simple.Node(id)
		if g.Node(id) == nil {
			g.AddNode(n)
		}
		return n
	}

	for _, p := range pairs {
		a, b := node(p.Term1), node(p.Term2)
		if a.ID() == b.ID() {
			continue
		}
		g.SetEdge(g.NewEdge(a, b))
	}

	groups := topo.ConnectedComponents(g)
	type ranked struct {
		first int64
		comp  Component
	}
	out := make([]ranked, 0, len(groups))
	for _, nodes := range groups {
		r := ranked{first: -1}
		for _, n := range nodes {
			if r.first < 0 || n.ID() < r.first {
				r.first = n.ID()
			}
			r.comp = append(r.comp, terms[n.ID()])
		}
		sort.Strings(r.comp)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].first < out[j].first })

	comps := make([]Component, len(out))
	for i, r := range out {
		comps[i] = r.comp
	}
	return comps, nil
}
